// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperandSizes(t *testing.T) {
	tests := []struct {
		op     OpCode
		size   int
		prefix int
	}{
		{PUSHINT8, 1, 0},
		{PUSHINT256, 32, 0},
		{PUSHA, 4, 0},
		{PUSHDATA1, 0, 1},
		{PUSHDATA4, 0, 4},
		{JMP, 1, 0},
		{JMP_L, 4, 0},
		{TRY, 2, 0},
		{TRY_L, 8, 0},
		{ENDTRY_L, 4, 0},
		{CALLT, 2, 0},
		{INITSLOT, 2, 0},
		{STLOC, 1, 0},
		{RET, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			assert.Equal(t, tt.size, tt.op.OperandSize())
			assert.Equal(t, tt.prefix, tt.op.PrefixSize())
		})
	}
}

func TestValidAndString(t *testing.T) {
	assert.True(t, NOP.Valid())
	assert.Equal(t, "ENDFINALLY", ENDFINALLY.String())
	assert.False(t, OpCode(0x06).Valid())
	assert.Equal(t, "UNKNOWN(0x06)", OpCode(0x06).String())

	op, ok := Parse("JMPIFNOT_L")
	require.True(t, ok)
	assert.Equal(t, JMPIFNOT_L, op)

	_, ok = Parse("NOPE")
	assert.False(t, ok)
}

func TestClassification(t *testing.T) {
	tests := []struct {
		op    OpCode
		class Class
	}{
		{PUSH5, ClassPush},
		{PUSHA, ClassPush},
		{JMP_L, ClassJump},
		{JMPLE, ClassConditionalJump},
		{JMPIF_L, ClassConditionalJump},
		{CALL, ClassCall},
		{CALLA, ClassIndirectCall},
		{TRY_L, ClassTry},
		{ENDTRY, ClassEndTry},
		{ENDFINALLY, ClassEndFinally},
		{THROW, ClassThrow},
		{ABORTMSG, ClassAbort},
		{RET, ClassReturn},
		{LDLOC3, ClassSlotLoad},
		{LDSFLD, ClassSlotLoad},
		{STARG, ClassSlotStore},
		{STSFLD6, ClassSlotStore},
		{STLOC0, ClassSlotStore},
		{ADD, ClassOther},
		{CALLT, ClassOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.class, tt.op.Class(), tt.op.String())
	}
}

func TestTargets(t *testing.T) {
	assert.True(t, JMP.HasTarget())
	assert.True(t, CALL_L.HasTarget())
	assert.True(t, ENDTRY.HasTarget())
	assert.True(t, PUSHA.HasTarget())
	assert.False(t, CALLA.HasTarget())
	assert.False(t, TRY.HasTarget())
	assert.True(t, TRY.HasTargets())
	assert.False(t, RET.HasTargets())

	assert.Equal(t, 1, TRY.DisplacementSize())
	assert.Equal(t, 4, TRY_L.DisplacementSize())
	assert.Equal(t, 4, PUSHA.DisplacementSize())
	assert.Equal(t, 1, JMPEQ.DisplacementSize())
	assert.Equal(t, 0, ADD.DisplacementSize())
}

func TestShortLongForms(t *testing.T) {
	for long, short := range longToShort {
		assert.True(t, long.IsLong(), long.String())
		assert.False(t, short.IsLong(), short.String())
		assert.Equal(t, short, long.ShortForm())
		assert.Equal(t, long, short.LongForm())
		assert.Equal(t, 4*short.OperandSize(), long.OperandSize(), long.String())
	}
	assert.Equal(t, PUSHA, PUSHA.ShortForm())
	assert.Equal(t, RET, RET.LongForm())
}

func TestTerminates(t *testing.T) {
	for _, op := range []OpCode{JMP, JMP_L, ENDTRY, ENDFINALLY, THROW, ABORT, ABORTMSG, RET} {
		assert.True(t, op.Terminates(), op.String())
	}
	for _, op := range []OpCode{JMPIF, CALL, CALLA, TRY, NOP, ASSERT} {
		assert.False(t, op.Terminates(), op.String())
	}
}
