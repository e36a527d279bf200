// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"encoding/binary"
	"fmt"

	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/opcode"
)

// Assembler builds scripts with symbolic labels. It is used by front ends
// emitting code and by tests building fixtures.
//
//	s, err := script.NewAssembler().
//		Try(opcode.TRY, "catch", "").
//		Op(opcode.THROW).
//		Label("catch").
//		Jump(opcode.ENDTRY, "end").
//		Label("end").
//		Op(opcode.RET).
//		Script()
type Assembler struct {
	ins    []Instruction
	labels map[string]int
	fixups []fixup
	err    error
}

type fixup struct {
	index int
	slot  int
	label string
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

// Label names the next emitted instruction.
func (a *Assembler) Label(name string) *Assembler {
	if _, dup := a.labels[name]; dup && a.err == nil {
		a.err = fmt.Errorf("duplicate label %q", name)
	}
	a.labels[name] = len(a.ins)
	return a
}

// Op emits an instruction with a literal operand.
func (a *Assembler) Op(op opcode.OpCode, operand ...byte) *Assembler {
	if op.HasTargets() && a.err == nil {
		a.err = fmt.Errorf("%s needs a label operand", op)
	}
	a.emit(op, operand)
	return a
}

// Jump emits an instruction with a single address operand: a jump, CALL,
// ENDTRY or PUSHA.
func (a *Assembler) Jump(op opcode.OpCode, label string) *Assembler {
	if !op.HasTarget() && a.err == nil {
		a.err = fmt.Errorf("%s takes no single address operand", op)
	}
	a.fixups = append(a.fixups, fixup{index: len(a.ins), label: label})
	a.emit(op, make([]byte, op.OperandSize()))
	return a
}

// Try emits TRY or TRY_L. An empty label leaves that block absent.
func (a *Assembler) Try(op opcode.OpCode, catch, finally string) *Assembler {
	if !op.IsTry() && a.err == nil {
		a.err = fmt.Errorf("%s is not a try opcode", op)
	}
	if catch != "" {
		a.fixups = append(a.fixups, fixup{index: len(a.ins), label: catch})
	}
	if finally != "" {
		a.fixups = append(a.fixups, fixup{index: len(a.ins), slot: 1, label: finally})
	}
	a.emit(op, make([]byte, op.OperandSize()))
	return a
}

// PushData emits the smallest PUSHDATA form holding b.
func (a *Assembler) PushData(b []byte) *Assembler {
	switch {
	case len(b) <= 0xff:
		return a.Op(opcode.PUSHDATA1, append([]byte{byte(len(b))}, b...)...)
	case len(b) <= 0xffff:
		prefix := make([]byte, 2)
		binary.LittleEndian.PutUint16(prefix, uint16(len(b)))
		return a.Op(opcode.PUSHDATA2, append(prefix, b...)...)
	default:
		prefix := make([]byte, 4)
		binary.LittleEndian.PutUint32(prefix, uint32(len(b)))
		return a.Op(opcode.PUSHDATA4, append(prefix, b...)...)
	}
}

func (a *Assembler) emit(op opcode.OpCode, operand []byte) {
	if a.err == nil && op.PrefixSize() == 0 && len(operand) != op.OperandSize() {
		a.err = fmt.Errorf("%s takes %d operand bytes, got %d", op, op.OperandSize(), len(operand))
	}
	a.ins = append(a.ins, Instruction{
		OpCode:  op,
		Operand: operand,
		Origin:  -1,
		Target:  NoTarget,
		Target2: NoTarget,
	})
}

// Script resolves labels and returns the laid-out script. Origins are set to
// the laid-out offsets, as if the script had been decoded.
func (a *Assembler) Script() (*Script, error) {
	if a.err != nil {
		return nil, a.err
	}

	ins := make([]Instruction, len(a.ins))
	for i, in := range a.ins {
		in.Operand = append([]byte(nil), in.Operand...)
		ins[i] = in
	}

	for _, f := range a.fixups {
		idx, ok := a.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		if idx >= len(ins) {
			return nil, errors.WrapInvalidJumpTarget(f.index, idx)
		}
		if f.slot == 0 {
			ins[f.index].Target = idx
		} else {
			ins[f.index].Target2 = idx
		}
	}

	s := New(ins)
	for i := range s.Instructions {
		s.Instructions[i].Origin = s.Instructions[i].Offset
	}
	return s, nil
}

// Bytes assembles straight to bytecode.
func (a *Assembler) Bytes() ([]byte, error) {
	s, err := a.Script()
	if err != nil {
		return nil, err
	}
	return s.Bytes()
}

// Index returns the instruction index a label points to.
func (a *Assembler) Index(label string) int {
	idx, ok := a.labels[label]
	if !ok {
		return NoTarget
	}
	return idx
}
