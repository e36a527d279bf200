// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"context"
	"testing"

	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vmState is the observable result of running straight-line code.
type vmState struct {
	stack  []int
	locals [7]int
}

// interpret runs the tiny subset of the instruction set the peephole tests
// use, from the first instruction to RET.
func interpret(t *testing.T, s *script.Script) vmState {
	t.Helper()
	var st vmState
	pop := func() int {
		require.NotEmpty(t, st.stack, "stack underflow")
		v := st.stack[len(st.stack)-1]
		st.stack = st.stack[:len(st.stack)-1]
		return v
	}
	for i := 0; i < s.Len(); i++ {
		ins := s.At(i)
		switch op := ins.OpCode; {
		case op >= opcode.PUSH0 && op <= opcode.PUSH16:
			st.stack = append(st.stack, int(op-opcode.PUSH0))
		case op == opcode.PUSHINT8:
			st.stack = append(st.stack, int(int8(ins.Operand[0])))
		case op == opcode.DUP:
			v := pop()
			st.stack = append(st.stack, v, v)
		case op == opcode.DROP:
			pop()
		case op >= opcode.STLOC0 && op <= opcode.STLOC6:
			st.locals[op-opcode.STLOC0] = pop()
		case op >= opcode.LDLOC0 && op <= opcode.LDLOC6:
			st.stack = append(st.stack, st.locals[op-opcode.LDLOC0])
		case op == opcode.RET:
			return st
		default:
			t.Fatalf("interpreter does not support %s", op)
		}
	}
	return st
}

func TestDupDropEquivalence(t *testing.T) {
	for _, x := range []int8{-128, -1, 0, 1, 42, 127} {
		c := newContract(t, script.NewAssembler().
			Op(opcode.PUSH3).
			Op(opcode.PUSHINT8, byte(x)).
			Op(opcode.DUP).
			Op(opcode.STLOC2).
			Op(opcode.DROP).
			Op(opcode.LDLOC2).
			Op(opcode.RET), nil)

		out, err := RemoveDupDrop{}.Apply(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []opcode.OpCode{
			opcode.PUSH3, opcode.PUSHINT8, opcode.STLOC2, opcode.LDLOC2, opcode.RET,
		}, opcodes(out.Script))
		assert.Equal(t, interpret(t, c.Script), interpret(t, out.Script), "x=%d", x)
	}
}

func TestDupDropWithStackOperators(t *testing.T) {
	for _, op := range []opcode.OpCode{opcode.DUP, opcode.DROP} {
		c := newContract(t, script.NewAssembler().
			Op(opcode.PUSH1).
			Op(opcode.PUSH2).
			Op(opcode.DUP).
			Op(op).
			Op(opcode.DROP).
			Op(opcode.RET), nil)

		out, err := RemoveDupDrop{}.Apply(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, 4, out.Script.Len(), op.String())
		assert.Equal(t, interpret(t, c.Script), interpret(t, out.Script), op.String())
	}
}

func TestDupDropRedirectsReferencesToDup(t *testing.T) {
	c := newContract(t, script.NewAssembler().
		Op(opcode.PUSH1).
		Jump(opcode.JMPIF, "assign").
		Op(opcode.PUSH2).
		Label("assign").Op(opcode.DUP).
		Op(opcode.STLOC0).
		Op(opcode.DROP).
		Op(opcode.RET), nil)

	out, err := RemoveDupDrop{}.Apply(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, 5, out.Script.Len())
	assert.Equal(t, 3, out.Script.At(1).Target)
	assert.Equal(t, opcode.STLOC0, out.Script.At(3).OpCode)
}

func TestDupDropKeepsReferencedDrop(t *testing.T) {
	c := newContract(t, script.NewAssembler().
		Jump(opcode.JMPIF, "drop").
		Op(opcode.PUSH1).
		Op(opcode.DUP).
		Op(opcode.STLOC0).
		Label("drop").Op(opcode.DROP).
		Op(opcode.RET), nil)

	out, err := RemoveDupDrop{}.Apply(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, c.Script.Len(), out.Script.Len())
}

func TestDupDropIgnoresOtherOperators(t *testing.T) {
	c := newContract(t, script.NewAssembler().
		Op(opcode.PUSH1).
		Op(opcode.DUP).
		Op(opcode.INC).
		Op(opcode.DROP).
		Op(opcode.RET), nil)

	out, err := RemoveDupDrop{}.Apply(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Script.Len())
}

func TestCompressJumpsShrinks(t *testing.T) {
	s, err := script.NewAssembler().
		Try(opcode.TRY_L, "catch", "").
		Jump(opcode.JMP_L, "end").
		Label("catch").Jump(opcode.ENDTRY_L, "end").
		Label("end").Op(opcode.RET).
		Script()
	require.NoError(t, err)

	out, stats := CompressJumps(s)
	assert.Equal(t, 3, stats.Shortened)
	assert.Equal(t, []opcode.OpCode{opcode.TRY, opcode.JMP, opcode.ENDTRY, opcode.RET}, opcodes(out))
	assert.Equal(t, 8, out.Size())
	assert.Equal(t, opcode.TRY_L, s.At(0).OpCode, "input is left untouched")

	assertSameTargets(t, s, out)
}

func TestCompressJumpsWidens(t *testing.T) {
	a := script.NewAssembler().
		Jump(opcode.JMPIF, "far").
		Jump(opcode.JMP_L, "near")
	for i := 0; i < 200; i++ {
		a.Op(opcode.NOP)
	}
	a.Label("near").Label("far").Op(opcode.RET)
	s, err := a.Script()
	require.NoError(t, err)

	_, err = s.Clone().Bytes()
	require.Error(t, err, "the short form overflows before compression")

	out, stats := CompressJumps(s)
	assert.Equal(t, 1, stats.Widened)
	assert.Equal(t, opcode.JMPIF_L, out.At(0).OpCode)
	assert.Equal(t, opcode.JMP_L, out.At(1).OpCode)

	assertSameTargets(t, s, out)
}

// assertSameTargets checks that the encoding of out decodes back to the
// targets of orig.
func assertSameTargets(t *testing.T, orig, out *script.Script) {
	t.Helper()
	code, err := out.Bytes()
	require.NoError(t, err)
	decoded, err := script.Decode(code)
	require.NoError(t, err)
	require.Equal(t, orig.Len(), decoded.Len())
	for i := range orig.Instructions {
		assert.Equal(t, orig.At(i).Target, decoded.At(i).Target, "instruction %d", i)
		assert.Equal(t, orig.At(i).Target2, decoded.At(i).Target2, "instruction %d", i)
	}
}
