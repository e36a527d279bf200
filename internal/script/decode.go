// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"encoding/binary"
	"fmt"

	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/opcode"
)

// Decode parses raw bytecode into a Script with resolved target indices.
func Decode(code []byte) (*Script, error) {
	var ins []Instruction
	offsets := make(map[int]int)

	for pos := 0; pos < len(code); {
		op := opcode.OpCode(code[pos])
		if !op.Valid() {
			return nil, errors.WrapUnknownOpcode(pos, code[pos])
		}

		n, err := operandLength(code, pos, op)
		if err != nil {
			return nil, err
		}

		offsets[pos] = len(ins)
		ins = append(ins, Instruction{
			OpCode:  op,
			Operand: append([]byte(nil), code[pos+1:pos+1+n]...),
			Offset:  pos,
			Origin:  pos,
			Target:  NoTarget,
			Target2: NoTarget,
		})
		pos += 1 + n
	}

	for i := range ins {
		in := &ins[i]
		if !in.OpCode.HasTargets() {
			continue
		}
		first, second, err := ResolveTargets(in.Offset, in.OpCode, in.Operand)
		if err != nil {
			return nil, err
		}
		if in.Target, err = lookup(offsets, in.Offset, first); err != nil {
			return nil, err
		}
		if in.Target2, err = lookup(offsets, in.Offset, second); err != nil {
			return nil, err
		}
	}

	return &Script{Instructions: ins}, nil
}

func lookup(offsets map[int]int, from, addr int) (int, error) {
	if addr == NoTarget {
		return NoTarget, nil
	}
	idx, ok := offsets[addr]
	if !ok {
		return NoTarget, errors.WrapInvalidJumpTarget(from, addr)
	}
	return idx, nil
}

// operandLength returns the operand length of the instruction at pos,
// checking that it fits in code.
func operandLength(code []byte, pos int, op opcode.OpCode) (int, error) {
	avail := len(code) - pos - 1
	prefix := op.PrefixSize()
	if prefix == 0 {
		n := op.OperandSize()
		if n > avail {
			return 0, errors.WrapTruncated(pos, n, avail)
		}
		return n, nil
	}

	if prefix > avail {
		return 0, errors.WrapTruncated(pos, prefix, avail)
	}
	var size uint64
	switch prefix {
	case 1:
		size = uint64(code[pos+1])
	case 2:
		size = uint64(binary.LittleEndian.Uint16(code[pos+1:]))
	case 4:
		size = uint64(binary.LittleEndian.Uint32(code[pos+1:]))
	}
	if size > uint64(avail-prefix) {
		return 0, errors.WrapTruncated(pos, prefix+int(size), avail)
	}
	return prefix + int(size), nil
}

// ResolveTargets computes the absolute target addresses of the instruction
// at offset. TRY and TRY_L yield (catch, finally), where a zero displacement
// means the block is absent and yields NoTarget. Every other address-carrying
// opcode yields a single target and NoTarget. CALLA has no static target and
// is rejected like any opcode without an address operand.
func ResolveTargets(offset int, op opcode.OpCode, operand []byte) (int, int, error) {
	if !op.HasTargets() {
		return NoTarget, NoTarget, errors.WrapInvariant(fmt.Sprintf("%s at %d has no address operand", op, offset))
	}
	if len(operand) != op.OperandSize() {
		return NoTarget, NoTarget, errors.WrapTruncated(offset, op.OperandSize(), len(operand))
	}

	width := op.DisplacementSize()
	if !op.IsTry() {
		return offset + displacement(operand[:width]), NoTarget, nil
	}

	first, second := NoTarget, NoTarget
	if d := displacement(operand[:width]); d != 0 {
		first = offset + d
	}
	if d := displacement(operand[width : 2*width]); d != 0 {
		second = offset + d
	}
	return first, second, nil
}

func displacement(b []byte) int {
	if len(b) == 1 {
		return int(int8(b[0]))
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}
