// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package blocks

import (
	"testing"

	"github.com/dotandev/stackopt/internal/coverage"
	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, a *script.Assembler) *Graph {
	t.Helper()
	s, err := a.Script()
	require.NoError(t, err)
	res, err := coverage.Analyze(s, []int{0})
	require.NoError(t, err)
	g, err := Build(s, res)
	require.NoError(t, err)
	return g
}

func starts(g *Graph) []int {
	out := make([]int, len(g.Blocks))
	for i, b := range g.Blocks {
		out[i] = b.Start
	}
	return out
}

func TestStraightLineIsOneBlock(t *testing.T) {
	g := build(t, script.NewAssembler().
		Op(opcode.PUSH1).
		Op(opcode.NOP).
		Op(opcode.RET))

	require.Len(t, g.Blocks, 1)
	assert.Equal(t, []int{0, 1, 2}, g.Blocks[0].Instructions)
	assert.Equal(t, coverage.OK, g.Blocks[0].BranchType)
	assert.Nil(t, g.Blocks[0].Next)
}

func TestTryCatchFinallyBlocks(t *testing.T) {
	g := build(t, script.NewAssembler().
		Try(opcode.TRY, "catch", "finally").
		Op(opcode.THROW).
		Label("catch").Op(opcode.NOP).
		Jump(opcode.ENDTRY, "end").
		Label("finally").Op(opcode.RET).
		Op(opcode.ENDFINALLY).
		Label("end").Op(opcode.RET))

	assert.Equal(t, []int{0, 1, 2, 4}, starts(g))

	try, ok := g.Block(0)
	require.True(t, ok)
	throw, ok := g.Block(1)
	require.True(t, ok)
	catch, ok := g.Block(2)
	require.True(t, ok)

	assert.Same(t, throw, try.Next)
	assert.Same(t, try, throw.Prev)
	assert.Equal(t, []int{2, 3}, catch.Instructions)
	assert.True(t, throw.JumpTargets.Contains(2))
	assert.True(t, catch.JumpSources.Contains(1))
	assert.True(t, catch.JumpTargets.Contains(4))
	assert.Nil(t, g.BlockOf(5), "ENDFINALLY is never reached")
	assert.Nil(t, g.BlockOf(6))
}

func TestConditionalBlocks(t *testing.T) {
	g := build(t, script.NewAssembler().
		Jump(opcode.JMPIF, "ret").
		Op(opcode.THROW).
		Label("ret").Op(opcode.RET))

	require.Equal(t, []int{0, 1, 2}, starts(g))
	head := g.Blocks[0]
	assert.Same(t, g.Blocks[1], head.Next)
	assert.Equal(t, []int{2}, head.JumpTargets.ToSlice())
	assert.Equal(t, coverage.THROW, g.Blocks[1].BranchType)
	assert.Equal(t, coverage.OK, head.BranchType)
}

func TestBranchTypeSkipsLeadingNops(t *testing.T) {
	g := build(t, script.NewAssembler().
		Jump(opcode.JMPIF, "abort").
		Op(opcode.RET).
		Label("abort").Op(opcode.NOP).
		Op(opcode.ABORT))

	b, ok := g.Block(2)
	require.True(t, ok)
	assert.Equal(t, coverage.ABORT, b.BranchType)
	assert.True(t, b.Contains(3))
}

func TestBuildRejectsMismatchedCoverage(t *testing.T) {
	s, err := script.NewAssembler().Op(opcode.RET).Script()
	require.NoError(t, err)
	other, err := script.NewAssembler().Op(opcode.NOP).Op(opcode.RET).Script()
	require.NoError(t, err)

	res, err := coverage.Analyze(other, []int{0})
	require.NoError(t, err)
	_, err = Build(s, res)
	assert.ErrorIs(t, err, errors.ErrInvariant)
}

func TestDOT(t *testing.T) {
	g := build(t, script.NewAssembler().
		Jump(opcode.JMPIF, "ret").
		Op(opcode.THROW).
		Label("ret").Op(opcode.RET))

	dot := g.DOT("main")
	assert.Contains(t, dot, "digraph \"main\" {")
	assert.Contains(t, dot, "b0 -> b1;")
	assert.Contains(t, dot, "b0 -> b2 [style=dashed];")
	assert.Contains(t, dot, "fillcolor=lightsalmon")
}
