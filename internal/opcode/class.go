// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package opcode

// Class is the semantic group an opcode belongs to.
type Class uint8

const (
	ClassOther Class = iota
	ClassPush
	ClassJump
	ClassConditionalJump
	ClassCall
	ClassIndirectCall
	ClassTry
	ClassEndTry
	ClassEndFinally
	ClassThrow
	ClassAbort
	ClassReturn
	ClassSlotLoad
	ClassSlotStore
)

func (c Class) String() string {
	switch c {
	case ClassPush:
		return "push"
	case ClassJump:
		return "jump"
	case ClassConditionalJump:
		return "conditional-jump"
	case ClassCall:
		return "call"
	case ClassIndirectCall:
		return "indirect-call"
	case ClassTry:
		return "try"
	case ClassEndTry:
		return "end-try"
	case ClassEndFinally:
		return "end-finally"
	case ClassThrow:
		return "throw"
	case ClassAbort:
		return "abort"
	case ClassReturn:
		return "return"
	case ClassSlotLoad:
		return "slot-load"
	case ClassSlotStore:
		return "slot-store"
	default:
		return "other"
	}
}

// Class returns the semantic group of op.
func (op OpCode) Class() Class {
	switch {
	case op <= PUSH16:
		return ClassPush
	case op == JMP || op == JMP_L:
		return ClassJump
	case op >= JMPIF && op <= JMPLE_L:
		return ClassConditionalJump
	case op == CALL || op == CALL_L:
		return ClassCall
	case op == CALLA:
		return ClassIndirectCall
	case op == TRY || op == TRY_L:
		return ClassTry
	case op == ENDTRY || op == ENDTRY_L:
		return ClassEndTry
	case op == ENDFINALLY:
		return ClassEndFinally
	case op == THROW:
		return ClassThrow
	case op == ABORT || op == ABORTMSG:
		return ClassAbort
	case op == RET:
		return ClassReturn
	case isSlot(op, LDSFLD0), isSlot(op, LDLOC0), isSlot(op, LDARG0):
		return ClassSlotLoad
	case isSlot(op, STSFLD0), isSlot(op, STLOC0), isSlot(op, STARG0):
		return ClassSlotStore
	default:
		return ClassOther
	}
}

// isSlot reports whether op is one of the eight opcodes of a slot family
// starting at base (base..base+6 and the indexed form base+7).
func isSlot(op, base OpCode) bool {
	return op >= base && op <= base+7
}

func (op OpCode) IsJump() bool            { return op.Class() == ClassJump }
func (op OpCode) IsConditionalJump() bool { return op.Class() == ClassConditionalJump }
func (op OpCode) IsCall() bool            { return op.Class() == ClassCall }
func (op OpCode) IsTry() bool             { return op.Class() == ClassTry }
func (op OpCode) IsEndTry() bool          { return op.Class() == ClassEndTry }
func (op OpCode) IsPush() bool            { return op.Class() == ClassPush }
func (op OpCode) IsSlotLoad() bool        { return op.Class() == ClassSlotLoad }
func (op OpCode) IsSlotStore() bool       { return op.Class() == ClassSlotStore }

// HasTarget reports whether op carries exactly one statically resolvable
// address operand: jumps, direct calls, ENDTRY and PUSHA. TRY carries two and
// CALLA none.
func (op OpCode) HasTarget() bool {
	switch op.Class() {
	case ClassJump, ClassConditionalJump, ClassCall, ClassEndTry:
		return true
	}
	return op == PUSHA
}

// HasTargets reports whether op carries any address operand.
func (op OpCode) HasTargets() bool {
	return op.HasTarget() || op.IsTry()
}

// IsLong reports whether op is the 32-bit displacement form of an opcode that
// also has an 8-bit form.
func (op OpCode) IsLong() bool {
	_, ok := longToShort[op]
	return ok
}

// Terminates reports whether control never falls through to the next
// instruction after op.
func (op OpCode) Terminates() bool {
	switch op.Class() {
	case ClassJump, ClassEndTry, ClassEndFinally, ClassThrow, ClassAbort, ClassReturn:
		return true
	}
	return false
}

var longToShort = map[OpCode]OpCode{
	JMP_L:      JMP,
	JMPIF_L:    JMPIF,
	JMPIFNOT_L: JMPIFNOT,
	JMPEQ_L:    JMPEQ,
	JMPNE_L:    JMPNE,
	JMPGT_L:    JMPGT,
	JMPGE_L:    JMPGE,
	JMPLT_L:    JMPLT,
	JMPLE_L:    JMPLE,
	CALL_L:     CALL,
	TRY_L:      TRY,
	ENDTRY_L:   ENDTRY,
}

var shortToLong = func() map[OpCode]OpCode {
	m := make(map[OpCode]OpCode, len(longToShort))
	for l, s := range longToShort {
		m[s] = l
	}
	return m
}()

// ShortForm returns the 8-bit form of a long opcode, or op itself when it has
// none.
func (op OpCode) ShortForm() OpCode {
	if s, ok := longToShort[op]; ok {
		return s
	}
	return op
}

// LongForm returns the 32-bit form of a short opcode, or op itself when it has
// none.
func (op OpCode) LongForm() OpCode {
	if l, ok := shortToLong[op]; ok {
		return l
	}
	return op
}

// DisplacementSize returns the width of one displacement for opcodes with
// address operands (1 or 4), or zero.
func (op OpCode) DisplacementSize() int {
	switch {
	case op == PUSHA:
		return 4
	case op.IsTry():
		return op.OperandSize() / 2
	case op.HasTarget():
		return op.OperandSize()
	}
	return 0
}
