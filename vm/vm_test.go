package vm_test

import (
	"io"
	"os"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/loxvm/loxvm/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything it printed. print is the only observable output channel in
// this language, so every end-to-end scenario is phrased this way.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

// runLines feeds each line to the same long-lived VM in order and returns
// the combined stdout. A non-empty errSubstr asserts the final line fails
// with a runtime or compile error containing that substring.
func runLines(t *testing.T, errSubstr string, lines ...string) string {
	t.Helper()
	vm_ := vm.NewVM()
	defer vm_.FreeVM()

	var lastErr error
	out := captureStdout(t, func() {
		for _, line := range lines {
			_, err := vm_.Interpret(line)
			lastErr = err
		}
	})

	if errSubstr == "" {
		assert.NoError(t, lastErr)
	} else {
		require.Error(t, lastErr)
		assert.Contains(t, lastErr.Error(), errSubstr)
	}
	return out
}

func TestArithmetic(t *testing.T) {
	out := runLines(t, "", `print 1 + 2 * 3;`)
	assert.Equal(t, "7\n", out)
}

func TestStringConcat(t *testing.T) {
	out := runLines(t, "", `print "foo" + "bar";`)
	assert.Equal(t, "foobar\n", out)
}

func TestComparisons(t *testing.T) {
	out := runLines(t, "",
		`let a = 1; let b = 2; print a == b; print a < b;`,
	)
	assert.Equal(t, "false\ntrue\n", out)
}

func TestBlockScopeShadowing(t *testing.T) {
	out := runLines(t, "",
		`{ let x = 10; { let x = 20; print x; } print x; }`,
	)
	assert.Equal(t, "20\n10\n", out)
}

func TestGlobalAssignmentIsExpression(t *testing.T) {
	out := runLines(t, "",
		`let x; print x; x = 5; print x;`,
	)
	assert.Equal(t, "null\n5\n", out)
}

func TestAddStringAndNumberIsRuntimeError(t *testing.T) {
	out := runLines(t, "operands to addition must be numbers or strings",
		`print 1 + "two";`,
	)
	assert.Equal(t, "", out)
}

func TestInvalidAssignmentTarget(t *testing.T) {
	runLines(t, "invalid assignment target", `a + b = 1;`)
}

func TestLocalVarOwnInitializer(t *testing.T) {
	runLines(t, "cannot read local variable in its own initializer",
		`{ let x = x; }`,
	)
}

func TestLocalRedeclarationSameScope(t *testing.T) {
	runLines(t, "variable with this name already declared in this scope",
		`{ let a; let a; }`,
	)
}

func TestUndefinedGlobalRead(t *testing.T) {
	runLines(t, "undefined variable 'nope'", `print nope;`)
}

func TestUndefinedGlobalAssign(t *testing.T) {
	runLines(t, "undefined variable 'nope'", `nope = 1;`)
}

func TestLogicalTruthiness(t *testing.T) {
	out := runLines(t, "",
		heredoc.Doc(`
			print !null;
			print !false;
			print !0;
			print !"";
		`),
	)
	assert.Equal(t, "true\ntrue\nfalse\nfalse\n", out)
}

func TestNestedExpressionPrecedence(t *testing.T) {
	out := runLines(t, "",
		`print -6 * (-4 + -3) == 6 * 4 + 2 * (((9)));`,
	)
	assert.Equal(t, "true\n", out)
}

func TestLocalSlotsSurviveShadowReassignment(t *testing.T) {
	out := runLines(t, "",
		heredoc.Doc(`
			let foo = 2;
		`),
		heredoc.Doc(`
			{
				foo = foo + 1;
				let bar;
				let foo1 = foo;
				foo1 = foo1 + 1;
				print foo1;
			}
		`),
		`print foo;`,
	)
	assert.Equal(t, "4\n3\n", out)
}

func TestPanicModeSuppressesCascadingErrors(t *testing.T) {
	vm_ := vm.NewVM()
	defer vm_.FreeVM()

	// "123" isn't a valid variable name, and nothing re-synchronizes
	// before the closing ';' - so the bogus "= 5" that follows must not
	// produce a second diagnostic.
	_, err := vm_.Interpret(`let 123 = 5;`)
	require.Error(t, err)

	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "expected a *multierror.Error")
	assert.Len(t, merr.Errors, 1)
}
