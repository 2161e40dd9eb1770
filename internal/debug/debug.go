// Package debug mirrors aistore's cmn/debug: assertions that compile away
// entirely in production builds and only run with `-tags debug`.
package debug

// Assert and AssertNoErr are defined in debug_on.go under the "debug" build
// tag and as no-op production defaults in debug_off.go otherwise.

var enabled bool

// Enabled reports whether debug assertions are compiled in.
func Enabled() bool { return enabled }
