package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkCodeAndLinesStayParallel(t *testing.T) {
	c := NewChunk()
	idx := c.AddConst(VNum(1))
	c.Write(byte(OpConst), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(OpPrint), 2)
	c.Write(byte(OpReturn), 3)

	assert.Equal(t, len(c.code), len(c.lines), "every emitted byte must carry a line number")
	assert.Equal(t, []int{1, 1, 2, 3}, c.lines)
}

func TestChunkAddConstIsIndexStable(t *testing.T) {
	c := NewChunk()
	first := c.AddConst(VNum(10))
	second := c.AddConst(VNum(20))

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, VNum(10), c.consts[first])
	assert.Equal(t, VNum(20), c.consts[second])
}

func TestChunkDisassembleNullaryAndUnary(t *testing.T) {
	c := NewChunk()
	idx := c.AddConst(VNum(3))
	c.Write(byte(OpConst), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(OpReturn), 1)

	out := c.Disassemble("test chunk")
	assert.Contains(t, out, "== test chunk ==")
	assert.Contains(t, out, "OpConst")
	assert.Contains(t, out, "OpReturn")
	// Second line of the same instruction's source line reuses the "   |" marker.
	assert.True(t, strings.Contains(out, "   |"), "same-line instructions should collapse the line column")
}

func TestChunkDisassembleInstAdvancesByOperandWidth(t *testing.T) {
	c := NewChunk()
	idx := c.AddConst(VNum(7))
	c.Write(byte(OpConst), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(OpNeg), 1)

	_, next := c.DisassembleInst(0)
	assert.Equal(t, 2, next, "a const-taking instruction occupies opcode+operand")

	_, next = c.DisassembleInst(next)
	assert.Equal(t, 3, next, "a nullary instruction occupies a single byte")
}
