// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package contract bundles a script with its exported entry points and
// debug information, the unit every optimization strategy transforms.
package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dotandev/stackopt/internal/debuginfo"
	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/script"
)

// EntryKind distinguishes exported methods from the lifecycle hooks the VM
// calls on its own.
type EntryKind string

const (
	KindMethod      EntryKind = "method"
	KindInitializer EntryKind = "initializer"
	KindDeploy      EntryKind = "deploy"
)

// KindOf returns the kind implied by a method name.
func KindOf(name string) EntryKind {
	switch name {
	case "_initialize":
		return KindInitializer
	case "_deploy":
		return KindDeploy
	default:
		return KindMethod
	}
}

// Entry is an exported entry point. Index refers to the contract script.
type Entry struct {
	Name  string
	Kind  EntryKind
	Index int
}

// EntryPoint is an entry point addressed by byte offset, as found in
// manifests and artifact files.
type EntryPoint struct {
	Name   string    `cbor:"name" json:"name"`
	Kind   EntryKind `cbor:"kind" json:"kind"`
	Offset int       `cbor:"offset" json:"offset"`
}

// Contract is one compiled contract.
type Contract struct {
	Name    string
	Script  *script.Script
	Entries []Entry
	Debug   *debuginfo.Info
}

// Decode decodes code and resolves entry point offsets to instructions.
func Decode(name string, code []byte, entries []EntryPoint, debug *debuginfo.Info) (*Contract, error) {
	s, err := script.Decode(code)
	if err != nil {
		return nil, err
	}
	c := &Contract{Name: name, Script: s, Debug: debug}
	for _, ep := range entries {
		idx, ok := s.IndexOf(ep.Offset)
		if !ok {
			return nil, errors.WrapValidationError(fmt.Sprintf("entry point %s at %d is not an instruction boundary", ep.Name, ep.Offset))
		}
		kind := ep.Kind
		if kind == "" {
			kind = KindOf(ep.Name)
		}
		c.Entries = append(c.Entries, Entry{Name: ep.Name, Kind: kind, Index: idx})
	}
	if err := debug.Validate(s.Offsets()); err != nil {
		return nil, errors.WrapValidationError(err.Error())
	}
	return c, nil
}

// Clone returns a deep copy.
func (c *Contract) Clone() *Contract {
	return &Contract{
		Name:    c.Name,
		Script:  c.Script.Clone(),
		Entries: append([]Entry(nil), c.Entries...),
		Debug:   c.Debug.Clone(),
	}
}

// EntryIndices returns the instruction index of every entry point.
func (c *Contract) EntryIndices() []int {
	out := make([]int, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Index
	}
	return out
}

// EntryPoints returns the entry points addressed by their current offsets.
func (c *Contract) EntryPoints() []EntryPoint {
	out := make([]EntryPoint, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = EntryPoint{Name: e.Name, Kind: e.Kind, Offset: c.Script.At(e.Index).Offset}
	}
	return out
}

// IsEntry reports whether instruction i is an entry point.
func (c *Contract) IsEntry(i int) bool {
	for _, e := range c.Entries {
		if e.Index == i {
			return true
		}
	}
	return false
}

// Bytes encodes the script.
func (c *Contract) Bytes() ([]byte, error) {
	return c.Script.Bytes()
}

// Hash returns the hex SHA-256 of the encoded script.
func (c *Contract) Hash() (string, error) {
	code, err := c.Bytes()
	if err != nil {
		return "", err
	}
	return HashBytes(code), nil
}

// HashBytes returns the hex SHA-256 of code.
func HashBytes(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}

// Validate checks that every reference of the contract points at one of
// its instructions.
func (c *Contract) Validate() error {
	if err := c.Script.Validate(); err != nil {
		return err
	}
	for _, e := range c.Entries {
		if e.Index < 0 || e.Index >= c.Script.Len() {
			return errors.WrapInvariant(fmt.Sprintf("entry point %s targets index %d", e.Name, e.Index))
		}
	}
	if err := c.Debug.Validate(c.Script.Offsets()); err != nil {
		return errors.WrapInvariant(err.Error())
	}
	return nil
}

// Rewrite returns a new contract holding the instructions marked in keep.
// References, entry points included, are first redirected through r and
// must then land on kept instructions. Debug info is remapped from the
// offsets c.Script currently records to the new layout.
func (c *Contract) Rewrite(keep []bool, r script.Redirects) (*Contract, error) {
	s := c.Script.Clone()
	if err := s.Redirect(r); err != nil {
		return nil, err
	}
	out, remap, err := s.Compact(keep)
	if err != nil {
		return nil, err
	}

	next := &Contract{Name: c.Name, Script: out}
	for _, e := range c.Entries {
		idx, err := r.Resolve(e.Index)
		if err != nil {
			return nil, err
		}
		if remap[idx] == script.NoTarget {
			return nil, errors.WrapInvariant(fmt.Sprintf("entry point %s references removed instruction %d", e.Name, idx))
		}
		e.Index = remap[idx]
		next.Entries = append(next.Entries, e)
	}

	offsets := debuginfo.OffsetMap{Old: c.Script.Offsets(), New: make(map[int]int, out.Len())}
	for i, n := range remap {
		if n != script.NoTarget {
			offsets.New[c.Script.At(i).Offset] = out.At(n).Offset
		}
	}
	next.Debug = c.Debug.Remap(offsets)
	return next, nil
}

// Relayout returns a contract using s, which must hold the instructions of
// c.Script in the same order with possibly different encodings. Debug info
// follows the new offsets.
func (c *Contract) Relayout(s *script.Script) (*Contract, error) {
	if s.Len() != c.Script.Len() {
		return nil, errors.WrapInvariant(fmt.Sprintf("relayout with %d instructions for %d", s.Len(), c.Script.Len()))
	}
	offsets := debuginfo.OffsetMap{Old: c.Script.Offsets(), New: make(map[int]int, s.Len())}
	for i := range s.Instructions {
		offsets.New[c.Script.At(i).Offset] = s.At(i).Offset
	}
	return &Contract{
		Name:    c.Name,
		Script:  s,
		Entries: append([]Entry(nil), c.Entries...),
		Debug:   c.Debug.Remap(offsets),
	}, nil
}

// KeepAll returns a keep mask retaining all n instructions.
func KeepAll(n int) []bool {
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	return keep
}
