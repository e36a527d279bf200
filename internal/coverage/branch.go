// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package coverage

// BranchType classifies what can happen once control reaches an address.
// The order matters: OK < THROW < ABORT < UNCOVERED.
type BranchType uint8

const (
	// OK: at least one path from here returns normally.
	OK BranchType = iota
	// THROW: every path raises, but an enclosing region may catch it.
	THROW
	// ABORT: every path ends in an uncatchable abort.
	ABORT
	// UNCOVERED: never reached from an entry point.
	UNCOVERED
)

func (b BranchType) String() string {
	switch b {
	case OK:
		return "OK"
	case THROW:
		return "THROW"
	case ABORT:
		return "ABORT"
	default:
		return "UNCOVERED"
	}
}

// Merge combines the outcomes of two alternative continuations. Only one
// taken path has to succeed, so the more optimistic outcome wins.
func Merge(a, b BranchType) BranchType {
	if a < b {
		return a
	}
	return b
}
