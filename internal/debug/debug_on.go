//go:build debug

package debug

import "fmt"

func init() { enabled = true }

// Assert panics with args as context when cond is false.
func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

// AssertNoErr panics if err is non-nil.
func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
}
