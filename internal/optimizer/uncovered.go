// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"context"

	"github.com/dotandev/stackopt/internal/blocks"
	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/coverage"
	"github.com/dotandev/stackopt/internal/logger"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
)

const NameRemoveUncoveredInstructions = "remove-uncovered-instructions"

// RemoveUncoveredInstructions deletes every instruction coverage analysis
// classifies UNCOVERED.
//
// A reference to a deleted instruction moves forward to the next retained
// instruction that is not a NOP. So does a reference to a retained NOP that
// is also reached by falling through; a NOP reached only through its
// references keeps them, or it would stop being covered.
type RemoveUncoveredInstructions struct{}

func (RemoveUncoveredInstructions) Name() string  { return NameRemoveUncoveredInstructions }
func (RemoveUncoveredInstructions) Priority() int { return 200 }

func (RemoveUncoveredInstructions) Apply(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
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

	n := s.Len()
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = res.Covered(i)
	}

	jm := script.BuildJumpMaps(s)
	refs := referenced(c, jm)
	for {
		redirects, missing := forwardRedirects(s, g, keep, refs)
		if missing == script.NoTarget {
			removed := 0
			for _, k := range keep {
				if !k {
					removed++
				}
			}
			if removed == 0 && len(redirects) == 0 {
				return c.Clone(), nil
			}
			logger.Logger.Debug("removing uncovered instructions", "contract", c.Name, "removed", removed, "redirected", len(redirects))
			return c.Rewrite(keep, redirects)
		}
		// Nothing retained follows a referenced instruction: keep it so the
		// reference stays valid.
		logger.Logger.Debug("keeping referenced uncovered instruction", "contract", c.Name, "index", missing, "sources", jm.SourcesOf(missing))
		keep[missing] = true
	}
}

// referenced marks every instruction some retained reference can point at:
// targets in jm and entry points.
func referenced(c *contract.Contract, jm *script.JumpMaps) []bool {
	refs := make([]bool, c.Script.Len())
	for i := range refs {
		refs[i] = jm.IsTarget(i)
	}
	for _, e := range c.Entries {
		refs[e.Index] = true
	}
	return refs
}

// forwardRedirects computes the redirects for deleted targets and for
// fall-through NOP targets. It reports the first referenced deleted
// instruction with no retained successor, or NoTarget.
func forwardRedirects(s *script.Script, g *blocks.Graph, keep, refs []bool) (script.Redirects, int) {
	n := s.Len()

	// next[i] is the first retained non-NOP instruction at or after i.
	next := make([]int, n+1)
	next[n] = script.NoTarget
	for i := n - 1; i >= 0; i-- {
		if keep[i] && s.At(i).OpCode != opcode.NOP {
			next[i] = i
		} else {
			next[i] = next[i+1]
		}
	}

	redirects := script.Redirects{}
	for i := 0; i < n; i++ {
		if !refs[i] {
			continue
		}
		switch {
		case !keep[i]:
			if next[i] == script.NoTarget {
				return nil, i
			}
			redirects[i] = next[i]
		case s.At(i).OpCode == opcode.NOP && fallsInto(g, i) && next[i] != script.NoTarget:
			redirects[i] = next[i]
		}
	}
	return redirects, script.NoTarget
}

// fallsInto reports whether control reaches covered instruction i by
// falling through from i-1.
func fallsInto(g *blocks.Graph, i int) bool {
	b := g.BlockOf(i)
	if b == nil {
		return false
	}
	if b.Start != i {
		return true
	}
	return b.Prev != nil
}
