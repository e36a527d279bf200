// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package coverage

import (
	"strings"

	"github.com/dotandev/stackopt/internal/script"
)

// RegionKind is the kind of exception-handling region a frame represents.
type RegionKind uint8

const (
	ENTRY RegionKind = iota
	TRY
	CATCH
	FINALLY
)

func (k RegionKind) String() string {
	switch k {
	case TRY:
		return "TRY"
	case CATCH:
		return "CATCH"
	case FINALLY:
		return "FINALLY"
	default:
		return "ENTRY"
	}
}

// Frame is one active exception-handling region. Catch, Finally and Resume
// are instruction indices or script.NoTarget. On a FINALLY frame, Finally is
// the finally block being run.
type Frame struct {
	Catch   int
	Finally int
	Kind    RegionKind
	// ContinueAfterFinally is set on FINALLY frames entered by ENDTRY: the
	// matching ENDFINALLY resumes at Resume. Otherwise the finally runs on
	// behalf of a propagating exception, which is raised again afterwards.
	ContinueAfterFinally bool
	Resume               int
}

var entryFrame = Frame{Catch: script.NoTarget, Finally: script.NoTarget, Resume: script.NoTarget, Kind: ENTRY}

// TryStack is a persistent stack of frames. Push and Pop return new stacks
// and never modify the receiver, so snapshots can be shared freely between
// pending continuations.
type TryStack struct {
	top    Frame
	parent *TryStack
	depth  int
	// scope identifies the chain of frames on the stack; see engine.push.
	scope int
}

// NewTryStack returns a stack holding only the ENTRY frame.
func NewTryStack() *TryStack {
	return &TryStack{top: entryFrame, depth: 1}
}

// Top returns the innermost frame.
func (s *TryStack) Top() Frame {
	return s.top
}

// Len returns the number of frames, ENTRY included.
func (s *TryStack) Len() int {
	return s.depth
}

// Push returns a new stack with f on top.
func (s *TryStack) Push(f Frame) *TryStack {
	return &TryStack{top: f, parent: s, depth: s.depth + 1, scope: s.scope}
}

// Pop returns the stack below the top frame. The ENTRY frame is never
// popped.
func (s *TryStack) Pop() *TryStack {
	if s.parent == nil {
		return s
	}
	return s.parent
}

// Frames returns the frames from bottom to top.
func (s *TryStack) Frames() []Frame {
	out := make([]Frame, s.depth)
	for n, i := s, s.depth-1; n != nil; n, i = n.parent, i-1 {
		out[i] = n.top
	}
	return out
}

// String renders the frame kinds from bottom to top, as in "ENTRY>TRY>CATCH".
func (s *TryStack) String() string {
	frames := s.Frames()
	kinds := make([]string, len(frames))
	for i, f := range frames {
		kinds[i] = f.Kind.String()
	}
	return strings.Join(kinds, ">")
}

// hasHandlers reports whether any frame above ENTRY is active.
func (s *TryStack) hasHandlers() bool {
	return s.depth > 1
}
