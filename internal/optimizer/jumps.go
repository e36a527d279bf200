// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"context"

	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
)

const (
	NameRemoveUnnecessaryJumps = "remove-unnecessary-jumps"
	NameReplaceJumpWithRet     = "replace-jump-with-ret"
)

// RemoveUnnecessaryJumps deletes unconditional jumps to the next
// instruction. References to a deleted jump move to that instruction.
type RemoveUnnecessaryJumps struct{}

func (RemoveUnnecessaryJumps) Name() string  { return NameRemoveUnnecessaryJumps }
func (RemoveUnnecessaryJumps) Priority() int { return 400 }

func (RemoveUnnecessaryJumps) Apply(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	cur := c
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s := cur.Script
		keep := contract.KeepAll(s.Len())
		redirects := script.Redirects{}
		for i := 0; i < s.Len(); i++ {
			if ins := s.At(i); ins.OpCode.IsJump() && ins.Target == i+1 {
				keep[i] = false
				redirects[i] = i + 1
			}
		}
		if len(redirects) == 0 {
			break
		}

		// Removing a jump can make the jump before it redundant, hence the
		// loop.
		next, err := cur.Rewrite(keep, redirects)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	if cur == c {
		return c.Clone(), nil
	}
	return cur, nil
}

// ReplaceJumpWithRet turns an unconditional jump to a RET into a RET.
// References to the jump stay on the replacement.
type ReplaceJumpWithRet struct{}

func (ReplaceJumpWithRet) Name() string  { return NameReplaceJumpWithRet }
func (ReplaceJumpWithRet) Priority() int { return 300 }

func (ReplaceJumpWithRet) Apply(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	work := c.Clone()
	s := work.Script

	replaced := 0
	for changed := true; changed; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed = false
		for i := 0; i < s.Len(); i++ {
			ins := s.At(i)
			if ins.OpCode.IsJump() && s.At(ins.Target).OpCode == opcode.RET {
				ins.SetOpCode(opcode.RET)
				changed = true
				replaced++
			}
		}
	}
	if replaced == 0 {
		return work, nil
	}

	// Offsets of work still describe the input layout, which is what the
	// debug info remap needs.
	return work.Rewrite(contract.KeepAll(s.Len()), nil)
}
