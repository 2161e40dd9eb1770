package bucket

// Mmap is a bucket backed by a region of memory-mapped file content. It is
// treated like File for transfer purposes (spec.md §3: "Mmap: region of
// mapped memory; treated like File for transfer purposes") but never takes
// the mmap-disable path File does, since there is no secondary read-pool
// indirection to worry about.
type Mmap struct {
	data   []byte
	start  int64
	arena  Arena
	shared *int32
}

// NewMmap wraps a mapped region as a single-owner mmap bucket.
func NewMmap(data []byte) *Mmap {
	rc := int32(1)
	return &Mmap{data: data, shared: &rc}
}

func (m *Mmap) Kind() Kind                 { return KindMmap }
func (m *Mmap) Length() int64              { return int64(len(m.data)) - m.start }
func (m *Mmap) Start() int64               { return m.start }
func (m *Mmap) IsMetadata() bool           { return false }
func (m *Mmap) MetaKind() (MetaKind, bool) { return 0, false }
func (m *Mmap) Arena() Arena               { return m.arena }
func (m *Mmap) Read(bool) ([]byte, error)  { return m.data[m.start:], nil }

func (m *Mmap) Split(at int64) (Bucket, error) {
	if at < 0 || at > m.Length() {
		return nil, ErrNotSplittable
	}
	*m.shared++
	tail := &Mmap{data: m.data, start: m.start + at, arena: m.arena, shared: m.shared}
	m.data = m.data[:m.start+at]
	return tail, nil
}

func (m *Mmap) Setaside(a Arena) error {
	m.arena = a
	return nil
}

// CanBeam reports zero-copy eligibility; unlike File, Mmap carries no
// single-owner restriction in the original source (only copy_files gates
// it), since a memory mapping has no OS handle to rebind.
func (m *Mmap) CanBeam(copyFiles bool) bool { return !copyFiles }
