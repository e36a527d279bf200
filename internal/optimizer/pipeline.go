// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/logger"
	"github.com/dotandev/stackopt/internal/telemetry"
)

// PassStats records the effect of one pass.
type PassStats struct {
	Name   string
	Before int
	After  int
}

// Stats summarizes an optimization run.
type Stats struct {
	OriginalSize          int
	OptimizedSize         int
	OriginalInstructions  int
	OptimizedInstructions int
	Passes                []PassStats
	Compress              CompressStats
	Duration              time.Duration
}

// Removed returns the number of deleted instructions.
func (s Stats) Removed() int {
	return s.OriginalInstructions - s.OptimizedInstructions
}

// Result is the outcome of an optimization run.
type Result struct {
	// Bytes is the encoded optimized script.
	Bytes []byte
	// Contract is the optimized contract, entry points and debug info
	// remapped.
	Contract *contract.Contract
	// AddressMap maps the input offset of every retained instruction to its
	// output offset.
	AddressMap map[int]int
	// Deleted holds the input offsets of deleted instructions.
	Deleted mapset.Set[int]
	Stats   Stats
	// Fallback is set when TryOptimize gave up and returned the input
	// unchanged; Err says why.
	Fallback bool
	Err      error
}

type pipelineOptions struct {
	registry *Registry
	passes   []string
	compress bool
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

// WithPasses replaces the default pass order.
func WithPasses(names ...string) Option {
	return func(o *pipelineOptions) {
		o.passes = append([]string(nil), names...)
	}
}

// WithCompressJumps toggles the final jump compression step.
func WithCompressJumps(enabled bool) Option {
	return func(o *pipelineOptions) {
		o.compress = enabled
	}
}

// WithRegistry resolves pass names against r instead of the built-ins.
func WithRegistry(r *Registry) Option {
	return func(o *pipelineOptions) {
		o.registry = r
	}
}

// Pipeline runs an ordered list of strategies.
type Pipeline struct {
	passes   []Strategy
	compress bool
}

// NewPipeline resolves the configured passes.
func NewPipeline(opts ...Option) (*Pipeline, error) {
	o := pipelineOptions{passes: DefaultPasses, compress: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	passes, err := o.registry.Resolve(o.passes)
	if err != nil {
		return nil, err
	}
	return &Pipeline{passes: passes, compress: o.compress}, nil
}

// Passes returns the pass names in run order.
func (p *Pipeline) Passes() []string {
	out := make([]string, len(p.passes))
	for i, s := range p.passes {
		out[i] = s.Name()
	}
	return out
}

// Optimize runs every pass on c, validating the contract after each one.
// c is not modified.
func (p *Pipeline) Optimize(ctx context.Context, c *contract.Contract) (*Result, error) {
	start := time.Now()
	ctx, span := telemetry.GetTracer().Start(ctx, "optimize",
		trace.WithAttributes(
			attribute.String("contract", c.Name),
			attribute.Int("instructions", c.Script.Len()),
		),
	)
	defer span.End()

	if err := c.Validate(); err != nil {
		return nil, failSpan(span, err)
	}

	// Origins identify input instructions across every rewrite.
	input := c.Clone()
	input.Script.Layout()
	for i := range input.Script.Instructions {
		ins := input.Script.At(i)
		ins.Origin = ins.Offset
	}

	stats := Stats{
		OriginalSize:         input.Script.Size(),
		OriginalInstructions: input.Script.Len(),
	}

	cur := input
	for _, pass := range p.passes {
		next, err := p.apply(ctx, pass, cur)
		if err != nil {
			return nil, failSpan(span, err)
		}
		stats.Passes = append(stats.Passes, PassStats{Name: pass.Name(), Before: cur.Script.Len(), After: next.Script.Len()})
		cur = next
	}

	if p.compress {
		s, cs := CompressJumps(cur.Script)
		next, err := cur.Relayout(s)
		if err != nil {
			return nil, failSpan(span, err)
		}
		stats.Compress = cs
		cur = next
	}

	code, err := cur.Bytes()
	if err != nil {
		return nil, failSpan(span, err)
	}

	res := &Result{
		Bytes:      code,
		Contract:   cur,
		AddressMap: make(map[int]int, cur.Script.Len()),
		Deleted:    mapset.NewThreadUnsafeSet[int](),
	}
	for i := range cur.Script.Instructions {
		ins := cur.Script.At(i)
		if ins.Origin >= 0 {
			res.AddressMap[ins.Origin] = ins.Offset
		}
	}
	for i := range input.Script.Instructions {
		off := input.Script.At(i).Offset
		if _, ok := res.AddressMap[off]; !ok {
			res.Deleted.Add(off)
		}
	}

	stats.OptimizedSize = len(code)
	stats.OptimizedInstructions = cur.Script.Len()
	stats.Duration = time.Since(start)
	res.Stats = stats

	span.SetAttributes(
		attribute.Int("removed", stats.Removed()),
		attribute.Int("size.before", stats.OriginalSize),
		attribute.Int("size.after", stats.OptimizedSize),
	)
	logger.Logger.Info("Contract optimized",
		"contract", c.Name,
		"instructions_before", stats.OriginalInstructions,
		"instructions_after", stats.OptimizedInstructions,
		"size_before", stats.OriginalSize,
		"size_after", stats.OptimizedSize,
	)
	return res, nil
}

func (p *Pipeline) apply(ctx context.Context, pass Strategy, c *contract.Contract) (*contract.Contract, error) {
	ctx, span := telemetry.GetTracer().Start(ctx, "pass "+pass.Name())
	defer span.End()

	next, err := pass.Apply(ctx, c)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		failSpan(span, err)
		if errors.IsStructural(err) || isContextErr(err) {
			return nil, err
		}
		return nil, errors.WrapOptimizationFailed(pass.Name(), err)
	}

	span.SetAttributes(attribute.Int("before", c.Script.Len()), attribute.Int("after", next.Script.Len()))
	logger.Logger.Debug("pass applied", "pass", pass.Name(), "contract", c.Name, "before", c.Script.Len(), "after", next.Script.Len())
	return next, nil
}

// TryOptimize is the best-effort boundary around Optimize. A pass failure,
// panics included, is logged and the input is returned unchanged with
// Fallback set. Malformed input and cancellation are still returned as
// errors.
func (p *Pipeline) TryOptimize(ctx context.Context, c *contract.Contract) (*Result, error) {
	res, err := p.safeOptimize(ctx, c)
	if err == nil {
		return res, nil
	}
	if errors.IsStructural(err) || isContextErr(err) {
		return nil, err
	}

	logger.Logger.Warn("Optimization failed, keeping the unoptimized contract", "contract", c.Name, "error", err)
	return fallback(c, err)
}

func (p *Pipeline) safeOptimize(ctx context.Context, c *contract.Contract) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = errors.WrapOptimizationFailed("pipeline", fmt.Errorf("panic: %v", r))
		}
	}()
	res, err = p.Optimize(ctx, c)
	if err != nil && !stderrors.Is(err, errors.ErrOptimizationFailed) && !errors.IsStructural(err) && !isContextErr(err) {
		err = errors.WrapOptimizationFailed("pipeline", err)
	}
	return res, err
}

func fallback(c *contract.Contract, cause error) (*Result, error) {
	orig := c.Clone()
	code, err := orig.Bytes()
	if err != nil {
		return nil, err
	}
	res := &Result{
		Bytes:      code,
		Contract:   orig,
		AddressMap: make(map[int]int, orig.Script.Len()),
		Deleted:    mapset.NewThreadUnsafeSet[int](),
		Fallback:   true,
		Err:        cause,
		Stats: Stats{
			OriginalSize:          len(code),
			OptimizedSize:         len(code),
			OriginalInstructions:  orig.Script.Len(),
			OptimizedInstructions: orig.Script.Len(),
		},
	}
	for _, off := range orig.Script.Offsets() {
		res.AddressMap[off] = off
	}
	return res, nil
}

func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// Optimize runs the default pipeline.
func Optimize(ctx context.Context, c *contract.Contract) (*Result, error) {
	p, err := NewPipeline()
	if err != nil {
		return nil, err
	}
	return p.Optimize(ctx, c)
}

// TryOptimize runs the default pipeline behind the best-effort boundary.
func TryOptimize(ctx context.Context, c *contract.Contract) (*Result, error) {
	p, err := NewPipeline()
	if err != nil {
		return nil, err
	}
	return p.TryOptimize(ctx, c)
}

// failSpan records err on span, marks it failed and returns err.
func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
