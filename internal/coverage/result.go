// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package coverage

import "github.com/dotandev/stackopt/internal/script"

// Result is the outcome of Analyze. Indices refer to the analyzed script.
type Result struct {
	script   *script.Script
	coverage []BranchType

	// Entries are the seeds the walk started from, entry points and
	// indirect-call candidates alike.
	Entries []int
	// Bodies maps the first instruction of each discovered block to the
	// instructions it covers, sorted.
	Bodies map[int][]int
	// Falls lists instructions whose fall-through to the next instruction
	// crosses a block boundary.
	Falls []int
	// Jumps maps an instruction to the targets it transfers control to:
	// jump targets plus the handlers it can raise into.
	Jumps map[int][]int
}

// Script returns the analyzed script.
func (r *Result) Script() *script.Script {
	return r.script
}

// At returns the coverage of instruction i, merged over every finally
// context it was reached in.
func (r *Result) At(i int) BranchType {
	if i < 0 || i >= len(r.coverage) {
		return UNCOVERED
	}
	return r.coverage[i]
}

// Covered reports whether instruction i is reachable.
func (r *Result) Covered(i int) bool {
	return r.At(i) != UNCOVERED
}

// Coverage returns the classification keyed by instruction offset.
func (r *Result) Coverage() map[int]BranchType {
	out := make(map[int]BranchType, len(r.coverage))
	for i, b := range r.coverage {
		out[r.script.At(i).Offset] = b
	}
	return out
}

// Count returns how many instructions have classification b.
func (r *Result) Count(b BranchType) int {
	n := 0
	for _, c := range r.coverage {
		if c == b {
			n++
		}
	}
	return n
}

// Len returns the number of analyzed instructions.
func (r *Result) Len() int {
	return len(r.coverage)
}
