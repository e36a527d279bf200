// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package shutdown runs cleanup hooks, such as flushing traces and closing
// the report store, once when the process exits or is interrupted.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dotandev/stackopt/internal/logger"
)

type HookFunc func(context.Context) error

type hook struct {
	name string
	fn   HookFunc
}

// Coordinator runs registered shutdown hooks exactly once in LIFO order.
type Coordinator struct {
	mu    sync.Mutex
	hooks []hook
	ran   bool
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Register adds a hook. It reports false when fn is nil or the hooks have
// already run.
func (c *Coordinator) Register(name string, fn HookFunc) bool {
	if fn == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ran {
		return false
	}
	c.hooks = append(c.hooks, hook{name: name, fn: fn})
	return true
}

// Run calls every hook, newest first, splitting the deadline of ctx evenly
// among the hooks still to run. A panicking hook is reported as an error.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return nil
	}
	c.ran = true
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]

		hookCtx, cancel := perHookContext(ctx, i+1)
		err := call(hookCtx, h.fn)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		logger.Logger.Debug("shutdown hook done", "hook", h.name)
	}

	return errors.Join(errs...)
}

func call(ctx context.Context, fn HookFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func perHookContext(ctx context.Context, hooksRemaining int) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || hooksRemaining <= 0 {
		return ctx, func() {}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return context.WithTimeout(ctx, time.Millisecond)
	}
	return context.WithTimeout(ctx, remaining/time.Duration(hooksRemaining))
}
