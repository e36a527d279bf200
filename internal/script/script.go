// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package script models a decoded instruction stream.
//
// Instructions live in a slice owned by a Script. Jump-like instructions
// refer to their targets by index into that slice, so retargeting is an index
// rewrite and "same target" is index equality. Byte offsets are derived data:
// Layout recomputes them and Bytes re-encodes every displacement from the
// target indices.
package script

import (
	"fmt"
	"sort"

	"github.com/dotandev/stackopt/internal/opcode"
)

// NoTarget marks an empty target slot.
const NoTarget = -1

// Instruction is a single decoded instruction.
type Instruction struct {
	OpCode opcode.OpCode
	// Operand is the raw operand, including the length prefix of PUSHDATA
	// opcodes. For opcodes with address operands it is only meaningful right
	// after decoding; Bytes derives the encoding from Target and Target2.
	Operand []byte
	// Offset is the byte offset inside the current layout.
	Offset int
	// Origin is the offset in the script this instruction was decoded from,
	// or -1 for synthesized instructions.
	Origin int
	// Target is the index of the jump, call, ENDTRY or PUSHA target, and the
	// catch block of TRY.
	Target int
	// Target2 is the index of the finally block of TRY.
	Target2 int
}

// Size returns the encoded size in bytes.
func (ins *Instruction) Size() int {
	return 1 + len(ins.Operand)
}

// SetOpCode changes the opcode, resizing the operand of address-carrying
// opcodes to the new width.
func (ins *Instruction) SetOpCode(op opcode.OpCode) {
	ins.OpCode = op
	if op.HasTargets() {
		if len(ins.Operand) != op.OperandSize() {
			ins.Operand = make([]byte, op.OperandSize())
		}
		return
	}
	if op.PrefixSize() == 0 && len(ins.Operand) != op.OperandSize() {
		ins.Operand = make([]byte, op.OperandSize())
	}
	ins.Target, ins.Target2 = NoTarget, NoTarget
}

func (ins *Instruction) String() string {
	if len(ins.Operand) == 0 || ins.OpCode.HasTargets() {
		return ins.OpCode.String()
	}
	return fmt.Sprintf("%s %x", ins.OpCode, ins.Operand)
}

// Script is an ordered instruction stream.
type Script struct {
	Instructions []Instruction
}

// New builds a script from instructions and lays it out.
func New(ins []Instruction) *Script {
	s := &Script{Instructions: ins}
	s.Layout()
	return s
}

// Len returns the number of instructions.
func (s *Script) Len() int {
	return len(s.Instructions)
}

// At returns the instruction at index i.
func (s *Script) At(i int) *Instruction {
	return &s.Instructions[i]
}

// Layout recomputes every instruction offset and returns the script size.
func (s *Script) Layout() int {
	off := 0
	for i := range s.Instructions {
		s.Instructions[i].Offset = off
		off += s.Instructions[i].Size()
	}
	return off
}

// Size returns the encoded size according to the current layout.
func (s *Script) Size() int {
	if len(s.Instructions) == 0 {
		return 0
	}
	last := &s.Instructions[len(s.Instructions)-1]
	return last.Offset + last.Size()
}

// IndexOf returns the index of the instruction starting at offset.
func (s *Script) IndexOf(offset int) (int, bool) {
	i := sort.Search(len(s.Instructions), func(i int) bool {
		return s.Instructions[i].Offset >= offset
	})
	if i < len(s.Instructions) && s.Instructions[i].Offset == offset {
		return i, true
	}
	return 0, false
}

// Clone returns a deep copy.
func (s *Script) Clone() *Script {
	out := make([]Instruction, len(s.Instructions))
	for i, ins := range s.Instructions {
		ins.Operand = append([]byte(nil), ins.Operand...)
		out[i] = ins
	}
	return &Script{Instructions: out}
}

// Offsets returns the offset of every instruction, in order.
func (s *Script) Offsets() []int {
	out := make([]int, len(s.Instructions))
	for i := range s.Instructions {
		out[i] = s.Instructions[i].Offset
	}
	return out
}

// HasOpCode reports whether any instruction uses op.
func (s *Script) HasOpCode(op opcode.OpCode) bool {
	for i := range s.Instructions {
		if s.Instructions[i].OpCode == op {
			return true
		}
	}
	return false
}
