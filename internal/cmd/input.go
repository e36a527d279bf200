// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/artifact"
	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/db"
	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/optimizer"
)

// inputFlags selects the contract a command works on: an artifact path
// argument, or raw bytecode given with --hex.
type inputFlags struct {
	hex     string
	entries []string
	name    string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.hex, "hex", "", "Raw script bytecode as hex instead of an artifact file")
	cmd.Flags().StringSliceVar(&f.entries, "entry", nil, "Entry point for --hex input as name@offset or offset (repeatable, default main@0)")
	cmd.Flags().StringVar(&f.name, "name", "", "Contract name for --hex input")
}

func (f *inputFlags) load(args []string) (*contract.Contract, error) {
	if f.hex == "" {
		if len(args) != 1 {
			return nil, errors.WrapValidationError("expected one artifact path or --hex")
		}
		return artifact.Load(args[0])
	}
	if len(args) != 0 {
		return nil, errors.WrapValidationError("--hex cannot be combined with an artifact path")
	}

	code, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(f.hex), "0x"))
	if err != nil {
		return nil, errors.WrapValidationError(fmt.Sprintf("--hex is not valid hex: %v", err))
	}
	entries, err := parseEntries(f.entries)
	if err != nil {
		return nil, err
	}
	name := f.name
	if name == "" {
		name = "script"
	}
	return contract.Decode(name, code, entries, nil)
}

// parseEntries parses name@offset or bare offset values. None means a single
// "main" entry at offset 0.
func parseEntries(values []string) ([]contract.EntryPoint, error) {
	if len(values) == 0 {
		return []contract.EntryPoint{{Name: "main", Kind: contract.KindMethod, Offset: 0}}, nil
	}
	out := make([]contract.EntryPoint, 0, len(values))
	for i, v := range values {
		name, off := fmt.Sprintf("entry%d", i), v
		if at := strings.LastIndex(v, "@"); at >= 0 {
			name, off = v[:at], v[at+1:]
		}
		offset, err := strconv.ParseInt(off, 0, 32)
		if err != nil || offset < 0 || name == "" {
			return nil, errors.WrapValidationError(fmt.Sprintf("bad entry point %q, want name@offset", v))
		}
		out = append(out, contract.EntryPoint{Name: name, Kind: contract.KindOf(name), Offset: int(offset)})
	}
	return out, nil
}

// newPipeline builds the pipeline the configuration describes, with passes
// overriding the configured list when not empty.
func newPipeline(passes []string, extra ...optimizer.Option) (*optimizer.Pipeline, error) {
	opts := appConfig.PipelineOptions()
	if len(passes) > 0 {
		opts = append(opts, optimizer.WithPasses(passes...))
	}
	return optimizer.NewPipeline(append(opts, extra...)...)
}

// openStore opens the report store when it is enabled, and returns nil
// otherwise. The caller closes it.
func openStore() (*db.Store, error) {
	if !appConfig.Store.Enabled {
		return nil, nil
	}
	path := appConfig.Store.Path
	if path == "" {
		var err error
		if path, err = db.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return db.InitDB(path)
}
