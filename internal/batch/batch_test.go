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

package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/debuginfo"
	"github.com/dotandev/stackopt/internal/opcode"
	"github.com/dotandev/stackopt/internal/optimizer"
	"github.com/dotandev/stackopt/internal/script"
)

// deadCode returns a contract with n unreachable PUSH1 instructions after
// its RET.
func deadCode(t *testing.T, name string, n int) *contract.Contract {
	t.Helper()
	a := script.NewAssembler().Op(opcode.PUSH0).Op(opcode.DROP).Op(opcode.RET)
	for i := 0; i < n; i++ {
		a.Op(opcode.PUSH1)
	}
	code, err := a.Bytes()
	require.NoError(t, err)
	c, err := contract.Decode(name, code, []contract.EntryPoint{{Name: "main", Offset: 0}}, nil)
	require.NoError(t, err)
	return c
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	p, err := optimizer.NewPipeline()
	require.NoError(t, err)
	r, err := NewRunner(p, cfg)
	require.NoError(t, err)
	return r
}

func TestRunPreservesOrder(t *testing.T) {
	r := newRunner(t, Config{Workers: 4})

	var contracts []*contract.Contract
	for i := 0; i < 20; i++ {
		contracts = append(contracts, deadCode(t, fmt.Sprintf("c%d", i), i))
	}

	outcomes, err := r.Run(context.Background(), contracts)
	require.NoError(t, err)
	require.Len(t, outcomes, len(contracts))

	for i, o := range outcomes {
		require.NoError(t, o.Err, o.Name)
		assert.Equal(t, fmt.Sprintf("c%d", i), o.Name)
		assert.Equal(t, 3, o.Result.Contract.Script.Len(), o.Name)
		assert.Equal(t, i, o.Result.Stats.Removed(), o.Name)
		assert.False(t, o.Cached)
	}
}

func TestRunCachesByContent(t *testing.T) {
	r := newRunner(t, Config{Workers: 1})

	first, err := r.Run(context.Background(), []*contract.Contract{deadCode(t, "a", 2)})
	require.NoError(t, err)
	require.NoError(t, first[0].Err)
	assert.False(t, first[0].Cached)

	second, err := r.Run(context.Background(), []*contract.Contract{deadCode(t, "a", 2)})
	require.NoError(t, err)
	require.NoError(t, second[0].Err)
	assert.True(t, second[0].Cached)
	assert.Equal(t, first[0].Hash, second[0].Hash)
	assert.Same(t, first[0].Result, second[0].Result)
}

func TestRunKeepsNameAndDebugOfIdenticalScripts(t *testing.T) {
	r := newRunner(t, Config{Workers: 1})

	withDoc := func(name, doc string) *contract.Contract {
		c := deadCode(t, name, 2)
		c.Debug = &debuginfo.Info{
			Documents: []string{doc},
			Methods:   []debuginfo.Method{{Name: "main", Start: 0, End: 2}},
		}
		return c
	}

	var outcomes []Outcome
	for _, c := range []*contract.Contract{withDoc("tokenA", "a.cs"), withDoc("tokenB", "b.cs")} {
		out, err := r.Run(context.Background(), []*contract.Contract{c})
		require.NoError(t, err)
		require.NoError(t, out[0].Err)
		outcomes = append(outcomes, out[0])
	}

	assert.Equal(t, outcomes[0].Hash, outcomes[1].Hash)
	assert.False(t, outcomes[1].Cached)
	assert.Equal(t, "tokenB", outcomes[1].Result.Contract.Name)
	assert.Equal(t, []string{"b.cs"}, outcomes[1].Result.Contract.Debug.Documents)
	assert.Equal(t, "tokenA", outcomes[0].Result.Contract.Name)
}

func TestRunCacheDisabled(t *testing.T) {
	r := newRunner(t, Config{Workers: 1, CacheSize: -1})

	for i := 0; i < 2; i++ {
		out, err := r.Run(context.Background(), []*contract.Contract{deadCode(t, "a", 1)})
		require.NoError(t, err)
		assert.False(t, out[0].Cached)
	}
}

func TestKeyDependsOnContent(t *testing.T) {
	r := newRunner(t, Config{})
	c := deadCode(t, "a", 0)

	k1, h1, err := r.Key(c)
	require.NoError(t, err)

	other := c.Clone()
	other.Entries = append(other.Entries, contract.Entry{Name: "extra", Kind: contract.KindMethod, Index: 1})
	k2, h2, err := r.Key(other)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, k1, k2)

	renamed := c.Clone()
	renamed.Name = "b"
	k4, _, err := r.Key(renamed)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)

	documented := c.Clone()
	documented.Debug = &debuginfo.Info{Documents: []string{"a.cs"}}
	k5, _, err := r.Key(documented)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k5)

	p, err := optimizer.NewPipeline(optimizer.WithPasses(optimizer.NameRemoveDupDrop))
	require.NoError(t, err)
	r2, err := NewRunner(p, Config{})
	require.NoError(t, err)
	k3, _, err := r2.Key(c)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestRunCancelled(t *testing.T) {
	r := newRunner(t, Config{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := r.Run(ctx, []*contract.Contract{deadCode(t, "a", 1), deadCode(t, "b", 1)})
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
		assert.Nil(t, o.Result)
	}
}

func TestOutcomeHashMatchesScript(t *testing.T) {
	r := newRunner(t, Config{Workers: 1})
	c := deadCode(t, "a", 3)
	want, err := c.Hash()
	require.NoError(t, err)

	out, err := r.Run(context.Background(), []*contract.Contract{c})
	require.NoError(t, err)
	assert.Equal(t, want, out[0].Hash)
}
