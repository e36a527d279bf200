// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"context"

	"github.com/dotandev/stackopt/internal/blocks"
	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/coverage"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
)

const NameRemoveDupDrop = "remove-dup-drop"

// RemoveDupDrop rewrites DUP <op> DROP to <op> inside a basic block when
// <op> consumes the value DUP copied and leaves nothing the DROP could
// observe. This is the shape an assignment expression whose value is
// discarded compiles to. References to the DUP move to <op>.
type RemoveDupDrop struct{}

func (RemoveDupDrop) Name() string  { return NameRemoveDupDrop }
func (RemoveDupDrop) Priority() int { return 100 }

// dupDropSafe reports whether DUP op DROP is equivalent to op.
func dupDropSafe(op opcode.OpCode) bool {
	if op.IsSlotStore() {
		return true
	}
	switch op {
	case opcode.DUP, opcode.DROP, opcode.REVERSEITEMS, opcode.CLEARITEMS, opcode.ABORTMSG:
		return true
	}
	return false
}

func (RemoveDupDrop) Apply(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := c.Script
	res, err := coverage.Analyze(s, c.EntryIndices())
	if err != nil {
		return nil, err
	}
	g, err := blocks.Build(s, res)
	if err != nil {
		return nil, err
	}
	refs := referenced(c, script.BuildJumpMaps(s))

	keep := contract.KeepAll(s.Len())
	redirects := script.Redirects{}
	for _, b := range g.Blocks {
		ins := b.Instructions
		for k := 0; k+2 < len(ins); k++ {
			dup, op, drop := ins[k], ins[k+1], ins[k+2]
			if s.At(dup).OpCode != opcode.DUP || s.At(drop).OpCode != opcode.DROP {
				continue
			}
			if !dupDropSafe(s.At(op).OpCode) || refs[op] || refs[drop] {
				continue
			}
			keep[dup] = false
			keep[drop] = false
			redirects[dup] = op
			k += 2
		}
	}

	if len(redirects) == 0 {
		return c.Clone(), nil
	}
	return c.Rewrite(keep, redirects)
}
