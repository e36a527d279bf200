// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package contract

import (
	"testing"

	"github.com/dotandev/stackopt/internal/debuginfo"
	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 0 JMP end; 2 PUSH1; 3 RET (end)
func sample(t *testing.T) *Contract {
	t.Helper()
	code, err := script.NewAssembler().
		Jump(opcode.JMP, "end").
		Op(opcode.PUSH1).
		Label("end").Op(opcode.RET).
		Bytes()
	require.NoError(t, err)

	c, err := Decode("token", code, []EntryPoint{
		{Name: "main", Offset: 0},
		{Name: "_deploy", Offset: 3},
	}, &debuginfo.Info{
		Methods: []debuginfo.Method{{
			Name: "main", Start: 0, End: 3,
			SequencePoints: []debuginfo.SequencePoint{{Offset: 2, Line: 4}, {Offset: 3, Line: 5}},
		}},
	})
	require.NoError(t, err)
	return c
}

func TestDecode(t *testing.T) {
	c := sample(t)
	assert.Equal(t, []int{0, 2}, c.EntryIndices())
	assert.Equal(t, KindMethod, c.Entries[0].Kind)
	assert.Equal(t, KindDeploy, c.Entries[1].Kind)
	assert.True(t, c.IsEntry(2))
	assert.False(t, c.IsEntry(1))
	require.NoError(t, c.Validate())
}

func TestDecodeRejectsMisalignedEntry(t *testing.T) {
	_, err := Decode("x", []byte{0x22, 0x02, 0x40}, []EntryPoint{{Name: "main", Offset: 1}}, nil)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInitializer, KindOf("_initialize"))
	assert.Equal(t, KindDeploy, KindOf("_deploy"))
	assert.Equal(t, KindMethod, KindOf("transfer"))
}

func TestRewrite(t *testing.T) {
	c := sample(t)

	keep := KeepAll(c.Script.Len())
	keep[1] = false
	out, err := c.Rewrite(keep, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Script.Len())
	assert.Equal(t, 1, out.Script.At(0).Target)
	assert.Equal(t, []EntryPoint{
		{Name: "main", Kind: KindMethod, Offset: 0},
		{Name: "_deploy", Kind: KindDeploy, Offset: 2},
	}, out.EntryPoints())

	require.Len(t, out.Debug.Methods, 1)
	m := out.Debug.Methods[0]
	assert.Equal(t, 0, m.Start)
	assert.Equal(t, 2, m.End)
	assert.Equal(t, []debuginfo.SequencePoint{{Offset: 2, Line: 5}}, m.SequencePoints)
	require.NoError(t, out.Validate())

	assert.Equal(t, 3, c.Script.Len(), "input is left untouched")
}

func TestRewriteRedirectsEntries(t *testing.T) {
	c := sample(t)

	keep := KeepAll(c.Script.Len())
	keep[0] = false
	out, err := c.Rewrite(keep, script.Redirects{0: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, out.EntryIndices())
}

func TestRewriteRejectsRemovedEntry(t *testing.T) {
	c := sample(t)

	keep := KeepAll(c.Script.Len())
	keep[2] = false
	_, err := c.Rewrite(keep, nil)
	assert.ErrorIs(t, err, errors.ErrInvariant)
}

func TestClone(t *testing.T) {
	c := sample(t)
	d := c.Clone()
	d.Script.At(0).SetOpCode(opcode.RET)
	d.Entries[0].Name = "other"
	assert.Equal(t, opcode.JMP, c.Script.At(0).OpCode)
	assert.Equal(t, "main", c.Entries[0].Name)
}

func TestHash(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))

	c, err := Decode("x", []byte{0x40}, nil, nil)
	require.NoError(t, err)
	h, err := c.Hash()
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte{0x40}), h)
}
