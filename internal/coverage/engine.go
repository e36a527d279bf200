// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package coverage computes, for every instruction of a script, what can
// happen once control reaches it (see BranchType), modelling nested
// try/catch/finally regions with an explicit TryStack.
//
// The walk is depth first and memoized. It is driven by an explicit LIFO
// work list of continuations instead of native recursion, so the Go stack
// stays shallow no matter how long or deeply nested the script is. Basic
// block bodies and control-flow edges are recorded as the walk discovers
// them.
package coverage

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/logger"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/script"
)

// cont receives the outcome of a visit.
type cont func(BranchType)

type memoKey struct {
	index int
	scope int
}

// scopeKey is one handler frame on top of an interned stack of frames.
type scopeKey struct {
	parent int
	frame  Frame
}

type options struct {
	indirect    []int
	hasIndirect bool
}

// Option customizes Analyze.
type Option func(*options)

// WithIndirectTargets overrides the CALLA candidates inferred by
// InferIndirectTargets.
func WithIndirectTargets(targets []int) Option {
	return func(o *options) {
		o.indirect = append([]int(nil), targets...)
		o.hasIndirect = true
	}
}

type engine struct {
	s        *script.Script
	indirect []int

	memo      map[memoKey]BranchType
	scopes    map[scopeKey]int
	scopeInfo []scopeKey

	bodies map[int]mapset.Set[int]
	falls  mapset.Set[int]
	jumps  map[int]mapset.Set[int]

	work []func()
	err  error
}

// walk is one basic block being scanned.
type walk struct {
	start int
	first int // first non-NOP instruction, already checked against the memo
	st    *TryStack
	k     cont
	body  []int
}

// Analyze classifies every instruction of s reachable from entries
// (instruction indices) and from the indirect-call candidates.
func Analyze(s *script.Script, entries []int, opts ...Option) (*Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if !o.hasIndirect {
		o.indirect = InferIndirectTargets(s)
	}

	e := &engine{
		s:        s,
		indirect: sortedUnique(o.indirect),
		memo:     make(map[memoKey]BranchType),
		scopes:   make(map[scopeKey]int),
		bodies:   make(map[int]mapset.Set[int]),
		falls:    mapset.NewThreadUnsafeSet[int](),
		jumps:    make(map[int]mapset.Set[int]),
	}

	seeds := sortedUnique(append(append([]int(nil), entries...), e.indirect...))
	for _, seed := range seeds {
		if seed < 0 || seed >= s.Len() {
			return nil, errors.WrapInvariant(fmt.Sprintf("entry point index %d out of range", seed))
		}
		e.visit(seed, NewTryStack(), func(BranchType) {})
		e.run()
		if e.err != nil {
			return nil, e.err
		}
	}

	logger.Logger.Debug("coverage analysis finished",
		"instructions", s.Len(),
		"entries", len(seeds),
		"scopes", len(e.scopeInfo)+1,
		"states", len(e.memo),
	)
	return e.result(seeds), nil
}

// InferIndirectTargets returns the PUSHA targets of s when s contains at
// least one CALLA, since a pointer can only be produced by PUSHA.
func InferIndirectTargets(s *script.Script) []int {
	if !s.HasOpCode(opcode.CALLA) {
		return nil
	}
	var out []int
	for i := range s.Instructions {
		if ins := s.At(i); ins.OpCode == opcode.PUSHA {
			out = append(out, ins.Target)
		}
	}
	return sortedUnique(out)
}

// =============================================================================
// Work list
// =============================================================================

func (e *engine) run() {
	for len(e.work) > 0 && e.err == nil {
		n := len(e.work) - 1
		task := e.work[n]
		e.work[n] = nil
		e.work = e.work[:n]
		task()
	}
}

func (e *engine) schedule(task func()) {
	if e.err == nil {
		e.work = append(e.work, task)
	}
}

// failIn stops the walk on a malformed region found under st.
func (e *engine) failIn(st *TryStack, err error) {
	logger.Logger.Debug("malformed exception region", "stack", st.String(), "error", err)
	e.fail(err)
}

func (e *engine) fail(err error) {
	if e.err == nil {
		e.err = err
	}
	e.work = nil
}

// visit computes the outcome of index i under st and passes it to k.
func (e *engine) visit(i int, st *TryStack, k cont) {
	e.schedule(func() { e.enter(i, st, k) })
}

// finish passes r to k once the current task returns.
func (e *engine) finish(k cont, r BranchType) {
	e.schedule(func() { k(r) })
}

func (e *engine) key(i int, st *TryStack) memoKey {
	return memoKey{index: i, scope: st.scope}
}

// lookup returns the memoized outcome of i. Running off the end of the
// script is an implicit RET.
func (e *engine) lookup(i int, st *TryStack) (BranchType, bool) {
	if i >= e.s.Len() {
		return OK, true
	}
	r, ok := e.memo[e.key(i, st)]
	return r, ok
}

// =============================================================================
// Block walk
// =============================================================================

func (e *engine) enter(start int, st *TryStack, k cont) {
	i := start
	for i < e.s.Len() && e.s.At(i).OpCode == opcode.NOP {
		if _, seen := e.memo[e.key(i, st)]; seen {
			break
		}
		i++
	}

	if r, ok := e.lookup(i, st); ok {
		if i > start {
			nops := make([]int, 0, i-start)
			for j := start; j < i; j++ {
				nops = append(nops, j)
				e.memo[e.key(j, st)] = r
			}
			e.addBody(start, nops)
			e.falls.Add(i - 1)
		}
		e.finish(k, r)
		return
	}

	w := &walk{start: start, first: i, st: st, k: k}
	for j := start; j < i; j++ {
		w.body = append(w.body, j)
		e.memo[e.key(j, st)] = OK
	}
	e.step(w, i)
}

// step scans forward from i until the block's outcome depends on another
// visit or is known.
func (e *engine) step(w *walk, i int) {
	for {
		if i >= e.s.Len() {
			e.close(w, OK)
			return
		}
		if i != w.first {
			if r, ok := e.memo[e.key(i, w.st)]; ok {
				e.falls.Add(i - 1)
				e.close(w, r)
				return
			}
		}

		w.body = append(w.body, i)
		// Optimistic while in progress, so loops back into this block
		// terminate.
		e.memo[e.key(i, w.st)] = OK

		at := i
		ins := e.s.At(at)
		switch ins.OpCode.Class() {
		case opcode.ClassAbort:
			e.handleAbort(at, w.st, e.closer(w))
			return

		case opcode.ClassCall:
			e.visit(ins.Target, w.st, e.afterCall(w, at))
			return

		case opcode.ClassIndirectCall:
			if len(e.indirect) == 0 {
				// Nothing in the script produces a pointer, so the call
				// faults at runtime.
				e.handleThrow(at, w.st, e.closer(w))
				return
			}
			e.visitAll(e.indirect, w.st, e.afterCall(w, at))
			return

		case opcode.ClassReturn:
			if !w.st.hasHandlers() {
				e.close(w, OK)
				return
			}
			e.handleThrow(at, w.st, func(BranchType) { e.close(w, OK) })
			return

		case opcode.ClassTry:
			if ins.Target == script.NoTarget && ins.Target2 == script.NoTarget {
				e.fail(errors.WrapMalformedTry(ins.Offset))
				return
			}
			inner := e.push(w.st, Frame{
				Kind:                 TRY,
				Catch:                ins.Target,
				Finally:              ins.Target2,
				ContinueAfterFinally: true,
				Resume:               script.NoTarget,
			})
			e.falls.Add(at)
			e.visit(at+1, inner, e.closer(w))
			return

		case opcode.ClassThrow:
			e.handleThrow(at, w.st, e.closer(w))
			return

		case opcode.ClassEndTry:
			e.endTry(w, at)
			return

		case opcode.ClassEndFinally:
			top := w.st.Top()
			if top.Kind != FINALLY {
				e.failIn(w.st, errors.WrapUnmatchedEndFinally(ins.Offset))
				return
			}
			outer := w.st.Pop()
			if top.ContinueAfterFinally {
				e.jump(at, top.Resume)
				e.visit(top.Resume, outer, e.closer(w))
				return
			}
			// The finally ran for a propagating exception: raise it again.
			e.handleThrow(at, outer, e.closer(w))
			return

		case opcode.ClassJump:
			e.jump(at, ins.Target)
			e.visit(ins.Target, w.st, e.closer(w))
			return

		case opcode.ClassConditionalJump:
			target := ins.Target
			e.falls.Add(at)
			e.jump(at, target)
			e.visit(at+1, w.st, func(taken BranchType) {
				e.visit(target, w.st, func(other BranchType) {
					e.close(w, Merge(taken, other))
				})
			})
			return

		default:
			i++
		}
	}
}

// afterCall continues w after a call at index at returned r.
func (e *engine) afterCall(w *walk, at int) cont {
	return func(r BranchType) {
		switch r {
		case OK:
			e.step(w, at+1)
		case THROW:
			e.handleThrow(at, w.st, e.closer(w))
		default:
			e.handleAbort(at, w.st, e.closer(w))
		}
	}
}

func (e *engine) endTry(w *walk, at int) {
	ins := e.s.At(at)
	top := w.st.Top()
	if top.Kind != TRY && top.Kind != CATCH {
		e.failIn(w.st, errors.WrapUnmatchedEndTry(ins.Offset))
		return
	}

	end := ins.Target
	// A runtime exception may still be raised right at the region boundary.
	e.handleThrow(at, w.st, func(BranchType) {
		outer := w.st.Pop()
		if top.Finally != script.NoTarget {
			e.jump(at, top.Finally)
			e.visit(top.Finally, e.enterFinally(outer, top.Finally, end, true), e.closer(w))
			return
		}
		e.jump(at, end)
		e.visit(end, outer, e.closer(w))
	})
}

// close records the finished block and reports its outcome.
func (e *engine) close(w *walk, r BranchType) {
	for _, j := range w.body {
		e.memo[e.key(j, w.st)] = r
	}
	e.addBody(w.start, w.body)
	e.finish(w.k, r)
}

func (e *engine) closer(w *walk) cont {
	return func(r BranchType) { e.close(w, r) }
}

// visitAll visits every target in order and reports the merged outcome.
func (e *engine) visitAll(targets []int, st *TryStack, k cont) {
	acc := UNCOVERED
	var next func(n int)
	next = func(n int) {
		if n == len(targets) {
			e.finish(k, acc)
			return
		}
		e.visit(targets[n], st, func(r BranchType) {
			acc = Merge(acc, r)
			next(n + 1)
		})
	}
	next(0)
}

// =============================================================================
// Exception propagation
// =============================================================================

// handleThrow unwinds st from the instruction at index from to the nearest
// handler and reports the outcome of running it. An exception nobody
// catches is THROW.
func (e *engine) handleThrow(from int, st *TryStack, k cont) {
	for st.hasHandlers() {
		f := st.Top()
		st = st.Pop()

		switch f.Kind {
		case TRY:
			if f.Catch != script.NoTarget {
				e.jump(from, f.Catch)
				e.visit(f.Catch, e.push(st, Frame{
					Kind:    CATCH,
					Catch:   script.NoTarget,
					Finally: f.Finally,
					Resume:  script.NoTarget,
				}), k)
				return
			}
			if f.Finally == script.NoTarget {
				e.fail(errors.WrapMalformedTry(e.s.At(from).Offset))
				return
			}
			e.jump(from, f.Finally)
			e.visit(f.Finally, e.enterFinally(st, f.Finally, script.NoTarget, false), k)
			return

		case CATCH:
			if f.Finally != script.NoTarget {
				e.jump(from, f.Finally)
				e.visit(f.Finally, e.enterFinally(st, f.Finally, script.NoTarget, false), k)
				return
			}
			// No finally: the exception leaves the catch block.

		case FINALLY:
			// An exception raised inside a finally replaces the pending one.
		}
	}
	e.finish(k, THROW)
}

// handleAbort reports ABORT unless the innermost region is a TRY with a
// catch or a CATCH with a finally, which a runtime exception raised before
// the abort could still reach.
func (e *engine) handleAbort(from int, st *TryStack, k cont) {
	top := st.Top()
	switch {
	case top.Kind == TRY && top.Catch != script.NoTarget,
		top.Kind == CATCH && top.Finally != script.NoTarget:
		e.handleThrow(from, st, k)
	default:
		e.finish(k, ABORT)
	}
}

// enterFinally pushes the FINALLY frame opened by ENDTRY (cont set) or by a
// propagating exception. The two get different scopes, so a block first
// walked for a propagating exception is walked again when ENDTRY enters it
// with a resume address.
func (e *engine) enterFinally(st *TryStack, finally, resume int, cont bool) *TryStack {
	return e.push(st, Frame{
		Kind:                 FINALLY,
		Catch:                script.NoTarget,
		Finally:              finally,
		ContinueAfterFinally: cont,
		Resume:               resume,
	})
}

// push returns st with f on top and gives the new stack the scope of its
// whole handler chain. Addresses are memoized per scope: the same block
// reached under different handlers is walked once for each.
func (e *engine) push(st *TryStack, f Frame) *TryStack {
	n := st.Push(f)
	n.scope = e.scopeOf(st.scope, f)
	return n
}

// scopeOf interns the chain parent+f. A frame already present in the chain
// reuses that scope, which bounds the number of scopes when a region
// recursively calls back into itself.
func (e *engine) scopeOf(parent int, f Frame) int {
	for s := parent; s != 0; s = e.scopeInfo[s-1].parent {
		if e.scopeInfo[s-1].frame == f {
			return s
		}
	}
	key := scopeKey{parent: parent, frame: f}
	if id, ok := e.scopes[key]; ok {
		return id
	}
	e.scopeInfo = append(e.scopeInfo, key)
	id := len(e.scopeInfo)
	e.scopes[key] = id
	return id
}

// =============================================================================
// Discoveries
// =============================================================================

func (e *engine) addBody(start int, body []int) {
	set, ok := e.bodies[start]
	if !ok {
		set = mapset.NewThreadUnsafeSet[int]()
		e.bodies[start] = set
	}
	for _, i := range body {
		set.Add(i)
	}
}

func (e *engine) jump(from, to int) {
	if to == script.NoTarget {
		return
	}
	set, ok := e.jumps[from]
	if !ok {
		set = mapset.NewThreadUnsafeSet[int]()
		e.jumps[from] = set
	}
	set.Add(to)
}

func (e *engine) result(seeds []int) *Result {
	cov := make([]BranchType, e.s.Len())
	for i := range cov {
		cov[i] = UNCOVERED
	}
	for k, r := range e.memo {
		cov[k.index] = Merge(cov[k.index], r)
	}

	res := &Result{
		script:   e.s,
		coverage: cov,
		Entries:  seeds,
		Bodies:   make(map[int][]int, len(e.bodies)),
		Falls:    sortedSet(e.falls),
		Jumps:    make(map[int][]int, len(e.jumps)),
	}
	for start, set := range e.bodies {
		res.Bodies[start] = sortedSet(set)
	}
	for from, set := range e.jumps {
		res.Jumps[from] = sortedSet(set)
	}
	return res
}

func sortedSet(s mapset.Set[int]) []int {
	out := s.ToSlice()
	sort.Ints(out)
	return out
}

func sortedUnique(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	out := append([]int(nil), in...)
	sort.Ints(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
