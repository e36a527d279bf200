// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/stackopt/internal/artifact"
	"github.com/dotandev/stackopt/internal/config"
	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/errors"
)

// PUSH0 RET DROP PUSH1; everything after RET is dead.
const deadCode = "10404511"

// run executes the root command with args against an empty config file and
// returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, nil, 0o600))
	t.Setenv(config.EnvConfigPath, cfgPath)
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores flag variables, which cobra keeps across executions.
func resetFlags() {
	optimizeInput, analyzeInput, blocksInput = inputFlags{}, inputFlags{}, inputFlags{}
	optimizeOutput, optimizePasses, optimizeStrict, optimizeNoCompact, optimizePrintHex = "", nil, false, false, false
	analyzeHideUncovered, analyzeNoIndirect = false, false
	blocksDOT = false
	batchOutDir, batchWorkers, batchPasses, batchStrict = "", 0, nil, false
	historyName, historyHash, historyLimit, historyFallback, historyPrune, historyDryRun = "", "", 20, false, 0, false
	ConfigFlag, LogLevelFlag, NoColorFlag = "", "", false
	unchange := func(f *pflag.Flag) { f.Changed = false }
	rootCmd.PersistentFlags().VisitAll(unchange)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(unchange)
	}
	appConfig = config.DefaultConfig()
}

func saveArtifact(t *testing.T, dir, name, hexCode string) string {
	t.Helper()
	in := inputFlags{hex: hexCode, name: name}
	c, err := in.load(nil)
	require.NoError(t, err)
	path := filepath.Join(dir, name+".nef.cbor")
	require.NoError(t, artifact.Save(path, c))
	return path
}

func TestParseEntries(t *testing.T) {
	entries, err := parseEntries(nil)
	require.NoError(t, err)
	assert.Equal(t, []contract.EntryPoint{{Name: "main", Kind: contract.KindMethod, Offset: 0}}, entries)

	entries, err = parseEntries([]string{"transfer@0x10", "_deploy@4", "7"})
	require.NoError(t, err)
	assert.Equal(t, []contract.EntryPoint{
		{Name: "transfer", Kind: contract.KindMethod, Offset: 16},
		{Name: "_deploy", Kind: contract.KindDeploy, Offset: 4},
		{Name: "entry2", Kind: contract.KindMethod, Offset: 7},
	}, entries)

	for _, bad := range []string{"main@", "@3", "main@-1", "main@x"} {
		_, err := parseEntries([]string{bad})
		assert.ErrorIs(t, err, errors.ErrValidation, bad)
	}
}

func TestInputFlagsLoad(t *testing.T) {
	c, err := (&inputFlags{hex: "0x" + deadCode}).load(nil)
	require.NoError(t, err)
	assert.Equal(t, "script", c.Name)
	assert.Equal(t, 4, c.Script.Len())

	_, err = (&inputFlags{}).load(nil)
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = (&inputFlags{hex: deadCode}).load([]string{"a.cbor"})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = (&inputFlags{hex: "zz"}).load(nil)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestOptimizeCommandPrintsHex(t *testing.T) {
	out, err := run(t, "optimize", "--hex", deadCode, "--print-hex")
	require.NoError(t, err)
	assert.Equal(t, "1040\n", out)
}

func TestOptimizeCommandWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	in := saveArtifact(t, dir, "token", deadCode)
	outPath := filepath.Join(dir, "token.opt.cbor")

	out, err := run(t, "optimize", in, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "remove-uncovered-instructions")
	assert.Contains(t, out, "removed 2 instructions")

	c, err := artifact.Load(outPath)
	require.NoError(t, err)
	assert.Equal(t, "token", c.Name)
	assert.Equal(t, 2, c.Script.Len())
}

func TestOptimizeCommandRecordsReport(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reports.db")
	t.Setenv("STACKOPT_STORE_ENABLED", "true")
	t.Setenv("STACKOPT_STORE_PATH", dbPath)

	_, err := run(t, "optimize", "--hex", deadCode, "--name", "token")
	require.NoError(t, err)

	out, err := run(t, "history", "--name", "^tok")
	require.NoError(t, err)
	assert.Contains(t, out, "token")
	assert.Contains(t, out, "4 -> 2")
}

func TestHistoryRequiresStore(t *testing.T) {
	_, err := run(t, "history")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := run(t, "analyze", "--hex", deadCode)
	require.NoError(t, err)
	assert.Contains(t, out, "UNCOVERED")
	assert.Contains(t, out, "4 instructions: 2 ok, 0 throw, 0 abort, 2 uncovered")
}

func TestBlocksCommand(t *testing.T) {
	out, err := run(t, "blocks", "--hex", deadCode, "--dot")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `digraph "script"`))

	resetFlags()
	out, err = run(t, "blocks", "--hex", deadCode)
	require.NoError(t, err)
	assert.Contains(t, out, "BRANCH")
	assert.Contains(t, out, "OK")
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	a := saveArtifact(t, dir, "a", deadCode)
	b := saveArtifact(t, dir, "b", "1040")
	outDir := filepath.Join(dir, "opt")

	out, err := run(t, "batch", a, b, "--out-dir", outDir, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "4 -> 2")

	c, err := artifact.Load(filepath.Join(outDir, "a.nef.cbor"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Script.Len())
}

func TestBatchCommandReportsFailures(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "batch", filepath.Join(dir, "missing.cbor"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.cbor")
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "[optimizer]")
	assert.Contains(t, out, "# loaded from")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stackopt version "+Version)
	assert.Contains(t, out, artifact.FormatVersion)
}

func TestInvalidLogLevelFlag(t *testing.T) {
	_, err := run(t, "version", "--log-level", "loud")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.ErrValidation))
	assert.Equal(t, InterruptExitCode, ExitCode(fmt.Errorf("%w: interrupt", ErrInterrupted)))
	assert.True(t, IsCancellation(fmt.Errorf("stopped: %w", context.Canceled)))
}
