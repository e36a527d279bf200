// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package optimizer rewrites contract scripts: it deletes code coverage
// analysis proves unreachable, simplifies redundant control flow and picks
// the shortest jump encodings, without changing observable behavior.
package optimizer

import (
	"context"
	"sort"
	"sync"

	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/errors"
)

// Strategy is one rewrite pass.
type Strategy interface {
	// Name returns the pass identifier used in configuration.
	Name() string

	// Priority orders passes; higher runs first.
	Priority() int

	// Apply returns a rewritten copy of c. The input is never modified.
	// Applying a strategy to its own output changes nothing.
	Apply(ctx context.Context, c *contract.Contract) (*contract.Contract, error)
}

// Registry holds the available strategies by name.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(RemoveUnnecessaryJumps{})
	r.Register(ReplaceJumpWithRet{})
	r.Register(RemoveUncoveredInstructions{})
	r.Register(RemoveDupDrop{})
	return r
}

// Register adds s, replacing any strategy with the same name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Lookup returns the strategy called name.
func (r *Registry) Lookup(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, errors.WrapUnknownStrategy(name)
	}
	return s, nil
}

// Resolve looks up every name in order.
func (r *Registry) Resolve(names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// List returns the registered strategies, highest priority first.
func (r *Registry) List() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// DefaultPasses is the pass order used when none is configured: the
// strategies by priority, followed by another round of the two cheap jump
// cleanups, which the deletions tend to enable.
var DefaultPasses = []string{
	NameRemoveUnnecessaryJumps,
	NameReplaceJumpWithRet,
	NameRemoveUncoveredInstructions,
	NameRemoveDupDrop,
	NameRemoveUnnecessaryJumps,
	NameReplaceJumpWithRet,
}
