// Package cos mirrors a small slice of aistore's cmn/cos grab-bag: generic
// helpers used pervasively across the call sites we ground this repo on.
package cos

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal marshals v to JSON, panicking on failure — used only for
// internal observability snapshots whose shape is controlled by this repo,
// never for data coming from a caller.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// NamedVal64 is a (name, value) pair used to report monotonic counters,
// mirroring aistore's own cos.NamedVal64 stats-reporting idiom.
type NamedVal64 struct {
	Name  string
	Value int64
}
