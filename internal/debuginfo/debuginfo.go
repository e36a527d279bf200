// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package debuginfo holds the source mapping of a contract script: method
// ranges and sequence points keyed by instruction offset. Rewrites keep it
// consistent by remapping it through an OffsetMap.
package debuginfo

import (
	"fmt"
	"sort"
)

// SequencePoint maps the instruction at Offset to a source range.
type SequencePoint struct {
	Offset    int `cbor:"offset" json:"offset"`
	Document  int `cbor:"document" json:"document"`
	Line      int `cbor:"line" json:"line"`
	Column    int `cbor:"column" json:"column"`
	EndLine   int `cbor:"end_line" json:"end_line"`
	EndColumn int `cbor:"end_column" json:"end_column"`
}

// Method covers the instructions from Start to End, both inclusive.
type Method struct {
	Name           string          `cbor:"name" json:"name"`
	Start          int             `cbor:"start" json:"start"`
	End            int             `cbor:"end" json:"end"`
	SequencePoints []SequencePoint `cbor:"sequence_points" json:"sequence_points"`
}

// Info is the debug information of one script.
type Info struct {
	Documents []string `cbor:"documents" json:"documents"`
	Methods   []Method `cbor:"methods" json:"methods"`
}

// OffsetMap describes a rewrite: Old lists every instruction offset before
// the rewrite in ascending order, New maps the retained ones to their
// offsets after it.
type OffsetMap struct {
	Old []int
	New map[int]int
}

// Lookup returns the new offset of the instruction previously at old.
func (m OffsetMap) Lookup(old int) (int, bool) {
	n, ok := m.New[old]
	return n, ok
}

// Clone returns a deep copy of i. A nil Info clones to nil.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	out := &Info{
		Documents: append([]string(nil), i.Documents...),
		Methods:   make([]Method, len(i.Methods)),
	}
	for k, m := range i.Methods {
		m.SequencePoints = append([]SequencePoint(nil), m.SequencePoints...)
		out.Methods[k] = m
	}
	return out
}

// Remap returns i rewritten through m. Sequence points of deleted
// instructions are dropped. Method ranges shrink to their first and last
// retained instruction; methods left without any are dropped.
func (i *Info) Remap(m OffsetMap) *Info {
	if i == nil {
		return nil
	}
	out := &Info{Documents: append([]string(nil), i.Documents...)}

	for _, method := range i.Methods {
		lo := sort.SearchInts(m.Old, method.Start)
		first, last := -1, -1
		for k := lo; k < len(m.Old) && m.Old[k] <= method.End; k++ {
			if n, ok := m.New[m.Old[k]]; ok {
				if first < 0 {
					first = n
				}
				last = n
			}
		}
		if first < 0 {
			continue
		}

		nm := Method{Name: method.Name, Start: first, End: last}
		for _, sp := range method.SequencePoints {
			if n, ok := m.New[sp.Offset]; ok {
				sp.Offset = n
				nm.SequencePoints = append(nm.SequencePoints, sp)
			}
		}
		out.Methods = append(out.Methods, nm)
	}
	return out
}

// MethodAt returns the method whose range contains offset.
func (i *Info) MethodAt(offset int) (*Method, bool) {
	if i == nil {
		return nil, false
	}
	for k := range i.Methods {
		if m := &i.Methods[k]; offset >= m.Start && offset <= m.End {
			return m, true
		}
	}
	return nil, false
}

// Locate returns the source position of the closest sequence point at or
// before offset within its method, formatted as document:line:column.
func (i *Info) Locate(offset int) (string, bool) {
	m, ok := i.MethodAt(offset)
	if !ok {
		return "", false
	}
	var best *SequencePoint
	for k := range m.SequencePoints {
		sp := &m.SequencePoints[k]
		if sp.Offset <= offset && (best == nil || sp.Offset > best.Offset) {
			best = sp
		}
	}
	if best == nil {
		return "", false
	}
	doc := fmt.Sprintf("#%d", best.Document)
	if best.Document >= 0 && best.Document < len(i.Documents) {
		doc = i.Documents[best.Document]
	}
	return fmt.Sprintf("%s:%d:%d", doc, best.Line, best.Column), true
}

// Validate checks that every method range and sequence point refers to an
// instruction offset in offsets (ascending).
func (i *Info) Validate(offsets []int) error {
	if i == nil {
		return nil
	}
	has := func(off int) bool {
		k := sort.SearchInts(offsets, off)
		return k < len(offsets) && offsets[k] == off
	}
	for _, m := range i.Methods {
		if !has(m.Start) || !has(m.End) || m.End < m.Start {
			return fmt.Errorf("method %s range %d-%d does not match instruction boundaries", m.Name, m.Start, m.End)
		}
		for _, sp := range m.SequencePoints {
			if !has(sp.Offset) {
				return fmt.Errorf("method %s sequence point at %d is not an instruction", m.Name, sp.Offset)
			}
		}
	}
	return nil
}
