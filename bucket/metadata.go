package bucket

// Metadata is a control marker carrying no payload: end-of-stream, flush, or
// an error with status/detail, per spec.md §3.
type Metadata struct {
	kind   MetaKind
	status int
	detail string
	arena  Arena
}

// NewEOS creates an end-of-stream marker.
func NewEOS() *Metadata { return &Metadata{kind: MetaEOS} }

// NewFlush creates a flush marker.
func NewFlush() *Metadata { return &Metadata{kind: MetaFlush} }

// NewError creates an error marker carrying a status code and detail
// string, the Go analogue of ap_bucket_error.
func NewError(status int, detail string) *Metadata {
	return &Metadata{kind: MetaError, status: status, detail: detail}
}

func (m *Metadata) Kind() Kind        { return KindMetadata }
func (m *Metadata) Length() int64     { return 0 }
func (m *Metadata) Start() int64      { return 0 }
func (m *Metadata) IsMetadata() bool  { return true }
func (m *Metadata) Arena() Arena      { return m.arena }
func (m *Metadata) Status() int       { return m.status }
func (m *Metadata) Detail() string    { return m.detail }

func (m *Metadata) MetaKind() (MetaKind, bool) { return m.kind, true }

func (m *Metadata) Read(bool) ([]byte, error) { return nil, nil }

func (m *Metadata) Split(int64) (Bucket, error) { return nil, ErrNotSplittable }

// Setaside rebinds the marker's arena identity; metadata has no payload to
// move, so this only updates bookkeeping, matching apr_bucket_setaside on a
// metadata bucket in append_bucket's "Metadata" branch.
func (m *Metadata) Setaside(a Arena) error {
	m.arena = a
	return nil
}

// Clone returns a fresh Metadata bucket of the same kind, used by receive
// when reconstructing a receiver-side equivalent of a sender-side marker
// (spec.md §4.4 receive algorithm, step 3).
func (m *Metadata) Clone() *Metadata {
	return &Metadata{kind: m.kind, status: m.status, detail: m.detail}
}
