// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package blocks builds the control-flow graph of a script from the block
// bodies and edges discovered by coverage analysis.
package blocks

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dotandev/stackopt/internal/coverage"
	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
)

// BasicBlock is a maximal straight-line run of covered instructions.
// Blocks are identified by the index of their first instruction.
type BasicBlock struct {
	Start        int
	Instructions []int
	Prev         *BasicBlock
	Next         *BasicBlock
	JumpTargets  mapset.Set[int]
	JumpSources  mapset.Set[int]
	BranchType   coverage.BranchType
}

// Last returns the index of the block's final instruction.
func (b *BasicBlock) Last() int {
	return b.Instructions[len(b.Instructions)-1]
}

// Contains reports whether instruction i belongs to b.
func (b *BasicBlock) Contains(i int) bool {
	return len(b.Instructions) > 0 && i >= b.Start && i <= b.Last()
}

// Graph is the set of basic blocks of one script, ordered by start.
type Graph struct {
	Script *script.Script
	Blocks []*BasicBlock
	owner  []*BasicBlock
}

// Block returns the block starting at instruction start.
func (g *Graph) Block(start int) (*BasicBlock, bool) {
	b := g.BlockOf(start)
	if b == nil || b.Start != start {
		return nil, false
	}
	return b, true
}

// BlockOf returns the block containing instruction i, or nil when i is not
// covered.
func (g *Graph) BlockOf(i int) *BasicBlock {
	if i < 0 || i >= len(g.owner) {
		return nil
	}
	return g.owner[i]
}

// Build partitions the covered instructions of s into basic blocks.
func Build(s *script.Script, res *coverage.Result) (*Graph, error) {
	if res.Len() != s.Len() {
		return nil, errors.WrapInvariant(fmt.Sprintf("coverage of %d instructions for a script of %d", res.Len(), s.Len()))
	}

	n := s.Len()
	covered := make([]bool, n)
	leader := make([]bool, n+1)
	flows := make([]bool, n)

	starts := make([]int, 0, len(res.Bodies))
	for start := range res.Bodies {
		starts = append(starts, start)
	}
	sort.Ints(starts)

	for _, start := range starts {
		body := res.Bodies[start]
		if len(body) == 0 {
			continue
		}
		leader[start] = true
		for k, i := range body {
			if i < 0 || i >= n {
				return nil, errors.WrapInvariant(fmt.Sprintf("block body index %d out of range", i))
			}
			covered[i] = true
			if k > 0 && body[k-1] == i-1 {
				flows[i-1] = true
			}
		}
	}

	for _, j := range res.Falls {
		if j < 0 || j >= n {
			return nil, errors.WrapInvariant(fmt.Sprintf("continuation edge from %d out of range", j))
		}
		flows[j] = true
		leader[j+1] = true
	}

	for from, targets := range res.Jumps {
		if from < 0 || from >= n {
			return nil, errors.WrapInvariant(fmt.Sprintf("jump edge from %d out of range", from))
		}
		leader[from+1] = true
		for _, t := range targets {
			if t < 0 || t >= n || !covered[t] {
				return nil, errors.WrapInvariant(fmt.Sprintf("jump edge %d -> %d leads to an uncovered instruction", from, t))
			}
			leader[t] = true
		}
	}

	for i := 0; i < n; i++ {
		op := s.At(i).OpCode
		if covered[i] && (op.Terminates() || op.IsConditionalJump() || op.IsTry()) {
			leader[i+1] = true
		}
	}

	g := &Graph{Script: s, owner: make([]*BasicBlock, n)}
	var cur *BasicBlock
	for i := 0; i < n; i++ {
		if !covered[i] {
			cur = nil
			continue
		}
		if cur == nil || leader[i] {
			cur = &BasicBlock{
				Start:       i,
				JumpTargets: mapset.NewThreadUnsafeSet[int](),
				JumpSources: mapset.NewThreadUnsafeSet[int](),
			}
			g.Blocks = append(g.Blocks, cur)
		}
		cur.Instructions = append(cur.Instructions, i)
		g.owner[i] = cur
	}

	for _, b := range g.Blocks {
		last := b.Last()
		if flows[last] && last+1 < n {
			next := g.owner[last+1]
			if next == nil {
				return nil, errors.WrapInvariant(fmt.Sprintf("fall-through from %d into an uncovered instruction", last))
			}
			b.Next = next
			next.Prev = b
		}
		b.BranchType = branchTypeOf(s, res, b)
	}

	for from, targets := range res.Jumps {
		src := g.owner[from]
		if src == nil {
			return nil, errors.WrapInvariant(fmt.Sprintf("jump edge from uncovered instruction %d", from))
		}
		for _, t := range targets {
			dst := g.owner[t]
			src.JumpTargets.Add(dst.Start)
			dst.JumpSources.Add(src.Start)
		}
	}

	return g, nil
}

func branchTypeOf(s *script.Script, res *coverage.Result, b *BasicBlock) coverage.BranchType {
	for _, i := range b.Instructions {
		if s.At(i).OpCode != opcode.NOP {
			return res.At(i)
		}
	}
	return res.At(b.Start)
}
