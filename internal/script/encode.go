// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dotandev/stackopt/internal/errors"
)

// Bytes lays the script out and encodes it. Displacements are computed from
// the target indices; a displacement that does not fit the opcode's operand
// width is an error (see optimizer.CompressJumps, which picks widths).
func (s *Script) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(s.Layout())

	for i := range s.Instructions {
		ins := &s.Instructions[i]
		buf.WriteByte(byte(ins.OpCode))
		if !ins.OpCode.HasTargets() {
			buf.Write(ins.Operand)
			continue
		}

		operand, err := s.encodeTargets(i)
		if err != nil {
			return nil, err
		}
		buf.Write(operand)
	}
	return buf.Bytes(), nil
}

func (s *Script) encodeTargets(i int) ([]byte, error) {
	ins := &s.Instructions[i]
	width := ins.OpCode.DisplacementSize()
	out := make([]byte, ins.OpCode.OperandSize())

	slots := []int{ins.Target}
	if ins.OpCode.IsTry() {
		slots = append(slots, ins.Target2)
	}

	for n, t := range slots {
		if t == NoTarget {
			if !ins.OpCode.IsTry() {
				return nil, errors.WrapInvariant(fmt.Sprintf("%s at %d has no target", ins.OpCode, ins.Offset))
			}
			continue
		}
		if t < 0 || t >= len(s.Instructions) {
			return nil, errors.WrapInvariant(fmt.Sprintf("%s at %d targets index %d of %d", ins.OpCode, ins.Offset, t, len(s.Instructions)))
		}
		d := s.Instructions[t].Offset - ins.Offset
		if ins.OpCode.IsTry() && d == 0 {
			return nil, errors.WrapInvariant(fmt.Sprintf("%s at %d cannot target itself", ins.OpCode, ins.Offset))
		}
		if !Fits(d, width) {
			return nil, errors.WrapInvariant(fmt.Sprintf("displacement %d does not fit %s at %d", d, ins.OpCode, ins.Offset))
		}
		putDisplacement(out[n*width:(n+1)*width], d)
	}
	return out, nil
}

// Displacements returns the current displacement of every target slot of the
// instruction at i, according to the current layout. Absent TRY slots report 0.
func (s *Script) Displacements(i int) []int {
	ins := &s.Instructions[i]
	slots := []int{ins.Target}
	if ins.OpCode.IsTry() {
		slots = append(slots, ins.Target2)
	}
	out := make([]int, 0, len(slots))
	for _, t := range slots {
		if t == NoTarget {
			out = append(out, 0)
			continue
		}
		out = append(out, s.Instructions[t].Offset-ins.Offset)
	}
	return out
}

// Fits reports whether displacement d is encodable in width bytes.
func Fits(d, width int) bool {
	switch width {
	case 1:
		return d >= math.MinInt8 && d <= math.MaxInt8
	case 4:
		return d >= math.MinInt32 && d <= math.MaxInt32
	}
	return false
}

func putDisplacement(b []byte, d int) {
	if len(b) == 1 {
		b[0] = byte(int8(d))
		return
	}
	binary.LittleEndian.PutUint32(b, uint32(int32(d)))
}
