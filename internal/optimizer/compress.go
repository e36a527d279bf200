// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"github.com/dotandev/stackopt/internal/script"
)

// CompressJumps returns a copy of s where every address-carrying
// instruction uses the shortest encoding its displacements fit in.
//
// Short forms whose displacement no longer fits a signed byte are widened
// first, until no short form overflows. Long forms are then shrunk until no
// instruction changes size. Shrinking only brings instructions closer
// together, so a displacement that fit keeps fitting.
func CompressJumps(s *script.Script) (*script.Script, CompressStats) {
	out := s.Clone()
	var stats CompressStats

	for {
		out.Layout()
		changed := false
		for i := range out.Instructions {
			ins := out.At(i)
			if !ins.OpCode.HasTargets() || ins.OpCode.DisplacementSize() != 1 {
				continue
			}
			if !allFit(out.Displacements(i), 1) {
				ins.SetOpCode(ins.OpCode.LongForm())
				stats.Widened++
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for {
		out.Layout()
		changed := false
		for i := range out.Instructions {
			ins := out.At(i)
			if !ins.OpCode.IsLong() {
				continue
			}
			if allFit(out.Displacements(i), 1) {
				ins.SetOpCode(ins.OpCode.ShortForm())
				stats.Shortened++
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	out.Layout()
	return out, stats
}

// CompressStats counts the encoding changes CompressJumps made.
type CompressStats struct {
	Widened   int
	Shortened int
}

func allFit(ds []int, width int) bool {
	for _, d := range ds {
		if !script.Fits(d, width) {
			return false
		}
	}
	return true
}
