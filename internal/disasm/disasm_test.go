// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package disasm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/coverage"
	"github.com/dotandev/stackopt/internal/debuginfo"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
)

func sample(t *testing.T) *contract.Contract {
	t.Helper()
	code, err := script.NewAssembler().
		Jump(opcode.JMP, "end").
		Op(opcode.PUSH1).
		Label("end").Op(opcode.RET).
		Bytes()
	require.NoError(t, err)
	c, err := contract.Decode("token", code, []contract.EntryPoint{{Name: "main", Offset: 0}}, &debuginfo.Info{
		Documents: []string{"token.cs"},
		Methods: []debuginfo.Method{{
			Name: "main", Start: 0, End: 3,
			SequencePoints: []debuginfo.SequencePoint{{Offset: 0, Line: 4, Column: 9}},
		}},
	})
	require.NoError(t, err)
	return c
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestListingPlain(t *testing.T) {
	off := false
	out := NewPrinter(Options{Color: &off}).String(sample(t))

	got := lines(out)
	require.Len(t, got, 4)
	assert.Equal(t, "main (method):", got[0])
	assert.True(t, strings.HasPrefix(got[1], "0000  JMP"), got[1])
	assert.Contains(t, got[1], "-> 0003")
	assert.Contains(t, got[1], "; token.cs:4:9")
	assert.True(t, strings.HasPrefix(got[2], "0002  PUSH1"), got[2])
	assert.Contains(t, got[3], "RET")
	assert.NotContains(t, out, "\x1b[")
}

func TestListingWithCoverage(t *testing.T) {
	c := sample(t)
	res, err := coverage.Analyze(c.Script, c.EntryIndices())
	require.NoError(t, err)

	off := false
	got := lines(NewPrinter(Options{Coverage: res, Color: &off}).String(c))
	require.Len(t, got, 4)
	assert.Contains(t, got[1], "OK")
	assert.Contains(t, got[2], "UNCOVERED")

	hidden := lines(NewPrinter(Options{Coverage: res, Color: &off, HideUncovered: true}).String(c))
	assert.Len(t, hidden, 3)
	for _, l := range hidden {
		assert.NotContains(t, l, "PUSH1")
	}
}

func TestListingColor(t *testing.T) {
	c := sample(t)
	res, err := coverage.Analyze(c.Script, c.EntryIndices())
	require.NoError(t, err)

	on := true
	out := NewPrinter(Options{Coverage: res, Color: &on}).String(c)
	assert.Contains(t, out, "\x1b[")
}

func TestTryOperands(t *testing.T) {
	code, err := script.NewAssembler().
		Try(opcode.TRY, "catch", "").
		Op(opcode.RET).
		Label("catch").Op(opcode.RET).
		Bytes()
	require.NoError(t, err)
	c, err := contract.Decode("t", code, nil, nil)
	require.NoError(t, err)

	off := false
	got := lines(NewPrinter(Options{Color: &off}).String(c))
	assert.Contains(t, got[0], "catch=0004 finally=-")
}
