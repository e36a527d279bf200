// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package batch optimizes independent contracts in parallel.
package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/logger"
	"github.com/dotandev/stackopt/internal/optimizer"
)

// DefaultCacheSize is the number of results kept when none is configured.
const DefaultCacheSize = 256

var debugEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("batch: failed to create CBOR enc mode: %v", err))
	}
	debugEncMode = em
}

// Config holds runner configuration
type Config struct {
	// Workers bounds the number of contracts optimized at once. Zero means
	// one per CPU.
	Workers int
	// CacheSize is the number of results kept in memory. Zero uses
	// DefaultCacheSize, a negative value disables caching.
	CacheSize int
	// BestEffort falls back to the unoptimized contract when a pass fails.
	BestEffort bool
}

// Outcome is the result of optimizing one contract.
type Outcome struct {
	Name   string
	Hash   string
	Result *optimizer.Result
	Err    error
	Cached bool
}

// Runner optimizes contracts on a worker pool and caches results by
// content.
type Runner struct {
	pipeline *optimizer.Pipeline
	config   Config
	cache    *lru.Cache[string, *optimizer.Result]
}

// NewRunner creates a runner using p for every contract.
func NewRunner(p *optimizer.Pipeline, config Config) (*Runner, error) {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	r := &Runner{pipeline: p, config: config}

	if config.CacheSize >= 0 {
		size := config.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		cache, err := lru.New[string, *optimizer.Result](size)
		if err != nil {
			return nil, fmt.Errorf("creating result cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Run optimizes every contract and returns one outcome per input, in input
// order. Once ctx is cancelled no further contract is started; the ones not
// started report the context error.
func (r *Runner) Run(ctx context.Context, contracts []*contract.Contract) ([]Outcome, error) {
	pool, err := ants.NewPool(r.config.Workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	outcomes := make([]Outcome, len(contracts))
	var wg sync.WaitGroup
	for i, c := range contracts {
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{Name: c.Name, Err: err}
			continue
		}

		i, c := i, c
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = r.one(ctx, c)
		}); err != nil {
			wg.Done()
			outcomes[i] = Outcome{Name: c.Name, Err: fmt.Errorf("submitting %s: %w", c.Name, err)}
		}
	}
	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	logger.Logger.Info("Batch finished", "contracts", len(contracts), "failed", failed, "workers", r.config.Workers)
	return outcomes, nil
}

func (r *Runner) one(ctx context.Context, c *contract.Contract) Outcome {
	out := Outcome{Name: c.Name}

	key, hash, err := r.Key(c)
	if err != nil {
		out.Err = err
		return out
	}
	out.Hash = hash

	if r.cache != nil {
		if res, ok := r.cache.Get(key); ok {
			logger.Logger.Debug("batch cache hit", "contract", c.Name, "hash", hash)
			out.Result, out.Cached = res, true
			return out
		}
	}

	var res *optimizer.Result
	if r.config.BestEffort {
		res, err = r.pipeline.TryOptimize(ctx, c)
	} else {
		res, err = r.pipeline.Optimize(ctx, c)
	}
	if err != nil {
		out.Err = err
		return out
	}

	if r.cache != nil {
		r.cache.Add(key, res)
	}
	out.Result = res
	return out
}

// Key returns the cache key of c and the hash of its script. The cached
// result carries the contract name and remapped debug info, so both are part
// of the key along with the script, entry points and pass list.
func (r *Runner) Key(c *contract.Contract) (key, hash string, err error) {
	hash, err = c.Hash()
	if err != nil {
		return "", "", err
	}
	debug, err := debugEncMode.Marshal(c.Debug)
	if err != nil {
		return "", "", fmt.Errorf("encoding debug info of %s: %w", c.Name, err)
	}

	var sb strings.Builder
	sb.WriteString(hash)
	fmt.Fprintf(&sb, "|%q|%x", c.Name, sha256.Sum256(debug))
	for _, ep := range c.EntryPoints() {
		fmt.Fprintf(&sb, "|%s:%s:%d", ep.Name, ep.Kind, ep.Offset)
	}
	fmt.Fprintf(&sb, "|%s|%t", strings.Join(r.pipeline.Passes(), ","), r.config.BestEffort)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:]), hash, nil
}
