// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// JumpMaps indexes every address reference in a script by instruction index.
// The maps are a snapshot: rebuild them after any change to the sequence.
type JumpMaps struct {
	// Targets maps single-target instructions (jumps, calls, ENDTRY, PUSHA)
	// to their target.
	Targets map[int]int
	// TryTargets maps TRY instructions to their (catch, finally) pair.
	TryTargets map[int][2]int
	// Sources is the reverse index: target to every instruction
	// referencing it through any slot.
	Sources map[int]mapset.Set[int]
}

// BuildJumpMaps indexes the references of s.
func BuildJumpMaps(s *Script) *JumpMaps {
	m := &JumpMaps{
		Targets:    make(map[int]int),
		TryTargets: make(map[int][2]int),
		Sources:    make(map[int]mapset.Set[int]),
	}

	for i := range s.Instructions {
		ins := &s.Instructions[i]
		switch {
		case ins.OpCode.IsTry():
			m.TryTargets[i] = [2]int{ins.Target, ins.Target2}
			m.addSource(ins.Target, i)
			m.addSource(ins.Target2, i)
		case ins.OpCode.HasTarget():
			m.Targets[i] = ins.Target
			m.addSource(ins.Target, i)
		}
	}
	return m
}

func (m *JumpMaps) addSource(target, source int) {
	if target == NoTarget {
		return
	}
	set, ok := m.Sources[target]
	if !ok {
		set = mapset.NewThreadUnsafeSet[int]()
		m.Sources[target] = set
	}
	set.Add(source)
}

// IsTarget reports whether any instruction references i.
func (m *JumpMaps) IsTarget(i int) bool {
	set, ok := m.Sources[i]
	return ok && set.Cardinality() > 0
}

// SourcesOf returns the instructions referencing i in ascending order.
func (m *JumpMaps) SourcesOf(i int) []int {
	set, ok := m.Sources[i]
	if !ok {
		return nil
	}
	out := set.ToSlice()
	sort.Ints(out)
	return out
}
