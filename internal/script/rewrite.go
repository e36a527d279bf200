// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"fmt"

	"github.com/dotandev/stackopt/internal/errors"
)

// Redirects maps removed or replaced instruction indices to the index that
// takes over their references. Chains are followed.
type Redirects map[int]int

// Resolve follows the redirect chain starting at i.
func (r Redirects) Resolve(i int) (int, error) {
	if i == NoTarget {
		return NoTarget, nil
	}
	seen := 0
	for {
		next, ok := r[i]
		if !ok {
			return i, nil
		}
		i = next
		seen++
		if seen > len(r) {
			return NoTarget, errors.WrapInvariant(fmt.Sprintf("redirect cycle through index %d", i))
		}
	}
}

// Redirect rewrites every target slot through r.
func (s *Script) Redirect(r Redirects) error {
	if len(r) == 0 {
		return nil
	}
	for i := range s.Instructions {
		ins := &s.Instructions[i]
		var err error
		if ins.Target, err = r.Resolve(ins.Target); err != nil {
			return err
		}
		if ins.Target2, err = r.Resolve(ins.Target2); err != nil {
			return err
		}
	}
	return nil
}

// Compact returns a new script holding only the instructions marked in keep,
// with target indices renumbered, and the old-to-new index map (NoTarget for
// dropped instructions). Every retained reference must point at a retained
// instruction; redirect first.
func (s *Script) Compact(keep []bool) (*Script, []int, error) {
	if len(keep) != len(s.Instructions) {
		return nil, nil, errors.WrapInvariant(fmt.Sprintf("keep mask has %d entries for %d instructions", len(keep), len(s.Instructions)))
	}

	remap := make([]int, len(s.Instructions))
	n := 0
	for i, k := range keep {
		if k {
			remap[i] = n
			n++
		} else {
			remap[i] = NoTarget
		}
	}

	out := make([]Instruction, 0, n)
	for i := range s.Instructions {
		if !keep[i] {
			continue
		}
		ins := s.Instructions[i]
		ins.Operand = append([]byte(nil), ins.Operand...)
		for _, slot := range []*int{&ins.Target, &ins.Target2} {
			if *slot == NoTarget {
				continue
			}
			if remap[*slot] == NoTarget {
				return nil, nil, errors.WrapInvariant(fmt.Sprintf("%s at %d references removed instruction %d", ins.OpCode, ins.Offset, *slot))
			}
			*slot = remap[*slot]
		}
		out = append(out, ins)
	}

	return New(out), remap, nil
}

// Validate checks that every reference points at an instruction of s and
// that every address-carrying instruction has the targets its opcode needs.
func (s *Script) Validate() error {
	n := len(s.Instructions)
	inRange := func(t int) bool { return t >= 0 && t < n }

	for i := range s.Instructions {
		ins := &s.Instructions[i]
		switch {
		case ins.OpCode.IsTry():
			if ins.Target == NoTarget && ins.Target2 == NoTarget {
				return errors.WrapMalformedTry(ins.Offset)
			}
			for _, t := range []int{ins.Target, ins.Target2} {
				if t != NoTarget && !inRange(t) {
					return errors.WrapInvariant(fmt.Sprintf("%s at %d targets index %d", ins.OpCode, ins.Offset, t))
				}
			}
		case ins.OpCode.HasTarget():
			if !inRange(ins.Target) {
				return errors.WrapInvariant(fmt.Sprintf("%s at %d targets index %d", ins.OpCode, ins.Offset, ins.Target))
			}
			if ins.Target2 != NoTarget {
				return errors.WrapInvariant(fmt.Sprintf("%s at %d has a second target", ins.OpCode, ins.Offset))
			}
		default:
			if ins.Target != NoTarget || ins.Target2 != NoTarget {
				return errors.WrapInvariant(fmt.Sprintf("%s at %d has a target", ins.OpCode, ins.Offset))
			}
		}
	}
	return nil
}
