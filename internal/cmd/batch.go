// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/artifact"
	"github.com/dotandev/stackopt/internal/batch"
	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/db"
	"github.com/dotandev/stackopt/internal/logger"
)

var (
	batchOutDir  string
	batchWorkers int
	batchPasses  []string
	batchStrict  bool
)

var batchCmd = &cobra.Command{
	Use:     "batch <artifact>...",
	GroupID: "core",
	Short:   "Optimize many contracts in parallel",
	Long: `Optimize several contract artifacts on a worker pool. Contracts with
identical scripts and entry points are optimized once.

Examples:
  stackopt batch build/*.cbor
  stackopt batch build/*.cbor --out-dir opt/ --workers 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contracts := make([]*contract.Contract, len(args))
		for i, path := range args {
			c, err := artifact.Load(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			contracts[i] = c
		}

		p, err := newPipeline(batchPasses)
		if err != nil {
			return err
		}
		workers := appConfig.Batch.Workers
		if batchWorkers > 0 {
			workers = batchWorkers
		}
		runner, err := batch.NewRunner(p, batch.Config{
			Workers:    workers,
			CacheSize:  appConfig.Batch.CacheSize,
			BestEffort: appConfig.Optimizer.BestEffort && !batchStrict,
		})
		if err != nil {
			return err
		}

		outcomes, err := runner.Run(cmd.Context(), contracts)
		if err != nil {
			return err
		}

		if batchOutDir != "" {
			if err := os.MkdirAll(batchOutDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		failed := 0
		for i, o := range outcomes {
			if o.Err != nil {
				failed++
				continue
			}
			if batchOutDir != "" {
				path := filepath.Join(batchOutDir, filepath.Base(args[i]))
				if err := artifact.Save(path, o.Result.Contract); err != nil {
					return err
				}
			}
		}
		recordOutcomes(outcomes, p.Passes())

		printOutcomes(cmd.OutOrStdout(), outcomes)
		if failed > 0 {
			return fmt.Errorf("%d of %d contracts failed", failed, len(outcomes))
		}
		return nil
	},
}

func recordOutcomes(outcomes []batch.Outcome, passes []string) {
	store, err := openStore()
	if err != nil {
		logger.Logger.Warn("Report store unavailable", "error", err)
		return
	}
	if store == nil {
		return
	}
	defer store.Close()

	for _, o := range outcomes {
		if o.Cached || o.Hash == "" {
			continue
		}
		if err := store.SaveReport(db.NewReport(o.Name, o.Hash, passes, o.Result, o.Err)); err != nil {
			logger.Logger.Warn("Failed to save report", "contract", o.Name, "error", err)
		}
	}
}

func outcomeStatus(o batch.Outcome) string {
	switch {
	case o.Err != nil:
		return "error: " + o.Err.Error()
	case o.Result.Fallback:
		return "unchanged"
	case o.Cached:
		return "cached"
	default:
		return "ok"
	}
}

func printOutcomes(w io.Writer, outcomes []batch.Outcome) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Contract", "Hash", "Size", "Removed", "Status"})
	table.SetAutoWrapText(false)
	for _, o := range outcomes {
		hash := o.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		size, removed := "-", "-"
		if o.Result != nil {
			st := o.Result.Stats
			size = fmt.Sprintf("%d -> %d", st.OriginalSize, st.OptimizedSize)
			removed = strconv.Itoa(st.Removed())
		}
		table.Append([]string{o.Name, hash, size, removed, outcomeStatus(o)})
	}
	table.Render()
}

func init() {
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "", "Write optimized artifacts to this directory under their input file names")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "Number of parallel workers (default from config, one per CPU)")
	batchCmd.Flags().StringSliceVar(&batchPasses, "passes", nil, "Comma-separated pass list overriding the configured one")
	batchCmd.Flags().BoolVar(&batchStrict, "strict", false, "Fail contracts instead of falling back to the unoptimized version")

	rootCmd.AddCommand(batchCmd)
}
