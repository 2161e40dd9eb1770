//go:build !debug

package debug

// Assert is a no-op in production builds.
func Assert(cond bool, args ...any) {}

// AssertNoErr is a no-op in production builds.
func AssertNoErr(err error) {}
