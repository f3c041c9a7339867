package common

import "fmt"

// AlignedTo8 returns true if the integer is a multiple of 8.
func AlignedTo8(n int) bool {
	return n%8 == 0
}

// Assert checks a condition and panics if it is false.
//
// Assertions guard invariants of the engine itself: a tuple descriptor that
// does not match its tuple, a builder fed a batch of the wrong shape, an
// unpin without a pin. They are never used for conditions that depend on
// input data or on the caller's plan, which are reported as errors instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
