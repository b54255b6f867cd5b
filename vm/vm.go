package vm

import (
	"fmt"

	"github.com/loxvm/loxvm/debug"
	e "github.com/loxvm/loxvm/errors"
	"github.com/sirupsen/logrus"
)

// StackMax is the hard ceiling on the value stack, matching the reference
// VM's fixed-size array.
const StackMax = 1024

// InterpretResult is the tri-state outcome the reference driver switches
// on for its process exit code (0/65/70).
type InterpretResult int

const (
	ResultOK InterpretResult = iota
	ResultCompileError
	ResultRuntimeError
)

// VM is the whole runtime: a stack machine executing one Chunk at a time,
// plus the long-lived state that outlives any single Interpret call - the
// globals table, the string-interning table, and the object chain.
type VM struct {
	chunk *Chunk
	ip    int
	stack []Value

	globals *Table
	strings *Table
	// objects threads every live *ObjString, mirroring the reference's
	// intrusive "all objects" list; Go's GC makes it unnecessary for
	// memory safety, but FreeVM still clears it in one step for fidelity to
	// the bulk-teardown lifecycle the design assumes.
	objects []*ObjString
}

func NewVM() *VM {
	vm := &VM{globals: NewTable(), strings: NewTable()}
	return vm
}

// FreeVM releases everything the VM owns. After this call the VM must not
// be reused.
func (vm *VM) FreeVM() {
	vm.globals = nil
	vm.strings = nil
	vm.objects = nil
	vm.stack = nil
}

func (vm *VM) resetStack() { vm.stack = vm.stack[:0] }

func (vm *VM) push(val Value) error {
	if len(vm.stack) >= StackMax {
		return vm.runtimeError("stack overflow")
	}
	vm.stack = append(vm.stack, val)
	return nil
}

func (vm *VM) pop() (last Value) {
	len_ := len(vm.stack)
	vm.stack, last = vm.stack[:len_-1], vm.stack[len_-1]
	return
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// Interpret compiles src and, if compilation succeeds, runs the resulting
// chunk to completion. It returns both a tri-state result (for a driver's
// exit code) and a Go error carrying the diagnostic payload.
func (vm *VM) Interpret(src string) (InterpretResult, error) {
	parser := NewParser(vm)
	chunk, err := parser.Compile(src)
	if err != nil {
		return ResultCompileError, err
	}

	vm.chunk = chunk
	vm.ip = 0
	if err := vm.run(); err != nil {
		return ResultRuntimeError, err
	}
	return ResultOK, nil
}

func (vm *VM) runtimeError(format string, a ...any) error {
	reason := fmt.Sprintf(format, a...)
	line := vm.chunk.lines[vm.ip-1]
	vm.resetStack()
	return &e.RuntimeError{Line: line, Reason: reason}
}

func (vm *VM) run() error {
	readByte := func() (res byte) {
		res = vm.chunk.code[vm.ip]
		vm.ip++
		return
	}
	readConst := func() Value { return vm.chunk.consts[readByte()] }

	for {
		if debug.DEBUG {
			logrus.Debugln(vm.stackTrace())
			instDump, _ := vm.chunk.DisassembleInst(vm.ip)
			logrus.Debugln(instDump)
		}

		switch inst := OpCode(readByte()); inst {
		case OpConst:
			if err := vm.push(readConst()); err != nil {
				return err
			}

		case OpNil:
			if err := vm.push(VNil{}); err != nil {
				return err
			}
		case OpTrue:
			if err := vm.push(VBool(true)); err != nil {
				return err
			}
		case OpFalse:
			if err := vm.push(VBool(false)); err != nil {
				return err
			}

		case OpPop:
			vm.pop()

		case OpGetLocal:
			slot := readByte()
			if err := vm.push(vm.stack[slot]); err != nil {
				return err
			}
		case OpSetLocal:
			slot := readByte()
			vm.stack[slot] = vm.peek(0)

		case OpGetGlobal:
			name := readConst().(*ObjString)
			val, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("undefined variable '%s'", name)
			}
			if err := vm.push(val); err != nil {
				return err
			}
		case OpDefGlobal:
			name := readConst().(*ObjString)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case OpSetGlobal:
			name := readConst().(*ObjString)
			if vm.globals.Set(name, vm.peek(0)) {
				// The insert was new, meaning the global didn't already
				// exist: undo it and fail. Assignment can't create globals.
				vm.globals.Delete(name)
				return vm.runtimeError("undefined variable '%s'", name)
			}

		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			if err := vm.push(VEq(a, b)); err != nil {
				return err
			}
		case OpGreater:
			if err := vm.binaryNumOp(VGreater, "operands must be numbers"); err != nil {
				return err
			}
		case OpLess:
			if err := vm.binaryNumOp(VLess, "operands must be numbers"); err != nil {
				return err
			}

		case OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case OpSub:
			if err := vm.binaryNumOp(VSub, "operands must be numbers"); err != nil {
				return err
			}
		case OpMul:
			if err := vm.binaryNumOp(VMul, "operands must be numbers"); err != nil {
				return err
			}
		case OpDiv:
			if err := vm.binaryNumOp(VDiv, "operands must be numbers"); err != nil {
				return err
			}

		case OpNot:
			if err := vm.push(VBool(!VTruthy(vm.pop()))); err != nil {
				return err
			}
		case OpNeg:
			v, ok := VNeg(vm.peek(0))
			if !ok {
				return vm.runtimeError("operand must be a number")
			}
			vm.pop()
			if err := vm.push(v); err != nil {
				return err
			}

		case OpPrint:
			fmt.Printf("%s\n", vm.pop())

		case OpReturn:
			// A correctly-compiled script always balances its stack: every
			// block's locals are popped by endScope, every expression
			// statement's result by its trailing OP_POP.
			debug.AssertEq(0, len(vm.stack))
			return nil

		default:
			return vm.runtimeError("unknown instruction '%d'", inst)
		}
	}
}

// binaryNumOp implements the shared shape of every numeric binary opcode:
// pop b then a, require both numbers, push op(a, b).
func (vm *VM) binaryNumOp(op func(a, b Value) (Value, bool), errMsg string) error {
	b := vm.pop()
	a := vm.pop()
	res, ok := op(a, b)
	if !ok {
		return vm.runtimeError(errMsg)
	}
	return vm.push(res)
}

// add is ADD's polymorphism: numeric addition or string concatenation,
// whichever the operand types support.
func (vm *VM) add() error {
	bStr, bIsStr := vm.peek(0).(*ObjString)
	aStr, aIsStr := vm.peek(1).(*ObjString)
	if aIsStr && bIsStr {
		vm.pop()
		vm.pop()
		return vm.push(vm.takeString(aStr.chars + bStr.chars))
	}
	return vm.binaryNumOp(VAdd, "operands to addition must be numbers or strings")
}

func (vm *VM) stackTrace() string {
	res := "          "
	for _, slot := range vm.stack {
		res += fmt.Sprintf("[ %s ]", slot)
	}
	return res
}
