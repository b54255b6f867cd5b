package utils

// Box lifts a value onto the heap, handy for "pointer means optional" APIs
// like the compiler's parseVar (nil = local variable, non-nil = the
// constant-pool index of a global's name).
func Box[T any](t T) *T { return &t }
