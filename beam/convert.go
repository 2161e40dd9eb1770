package beam

import (
	"sync"

	"github.com/aistore/beam2/bucket"
)

// ConverterFunc is an extension hook that attempts to turn src into one or
// more destination buckets during receive, before the generic proxy/rebind
// path runs — component C5 ("Converter/extension hook registry"). It
// returns ok=false to decline, leaving the generic path to handle src.
type ConverterFunc func(src bucket.Bucket) (out []bucket.Bucket, ok bool)

// converterEntry pairs a hook with a name for logging/inspection.
type converterEntry struct {
	name string
	fn   ConverterFunc
}

var (
	convertersMu sync.Mutex
	converters   []converterEntry
)

// RegisterConverter appends fn to the process-wide, append-only converter
// registry under the given name. Registration is lazy and global: any beam
// created after this call sees the hook; beams created before it do too,
// since the registry is consulted fresh on every receive, matching the
// original source's single process-wide h2_beam_mutex-guarded registration
// list rather than a per-beam copy.
func RegisterConverter(name string, fn ConverterFunc) {
	convertersMu.Lock()
	defer convertersMu.Unlock()
	converters = append(converters, converterEntry{name: name, fn: fn})
}

// runConverters offers src to each registered hook in registration order,
// stopping at the first one that accepts it.
func runConverters(src bucket.Bucket) ([]bucket.Bucket, bool) {
	convertersMu.Lock()
	entries := converters
	convertersMu.Unlock()
	for _, e := range entries {
		if out, ok := e.fn(src); ok {
			return out, true
		}
	}
	return nil, false
}

// clearConverters empties the registry, the shutdown-cleanup hook. It is
// unexported and nothing in this repository calls it.
func clearConverters() {
	convertersMu.Lock()
	converters = nil
	convertersMu.Unlock()
}
