package debug

import "fmt"

// DEBUG gates both the assertion checks below and the instruction/stack
// tracing the VM and compiler log at logrus.Debug level. It's off by
// default; the CLI's --verbosity flag flips it on.
var DEBUG = false

func Assertf(b bool, format string, a ...any) {
	if DEBUG && !b {
		panic(fmt.Sprintf(format, a...))
	}
}

func AssertEq[T comparable](expected, got T) { Assertf(expected == got, "%v != %v", expected, got) }
