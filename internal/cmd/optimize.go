// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/artifact"
	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/db"
	"github.com/dotandev/stackopt/internal/logger"
	"github.com/dotandev/stackopt/internal/optimizer"
)

var (
	optimizeInput     inputFlags
	optimizeOutput    string
	optimizePasses    []string
	optimizeStrict    bool
	optimizeNoCompact bool
	optimizePrintHex  bool
)

var optimizeCmd = &cobra.Command{
	Use:     "optimize [artifact]",
	GroupID: "core",
	Short:   "Optimize one contract",
	Long: `Run the optimization pipeline on a contract artifact or on raw bytecode.

By default a pass that fails leaves the contract unoptimized and the command
still succeeds; --strict turns such failures into errors.

Examples:
  stackopt optimize token.nef.cbor -o token.opt.cbor
  stackopt optimize --hex 10454011 --entry main@0 --print-hex
  stackopt optimize token.nef.cbor --passes remove-uncovered-instructions`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := optimizeInput.load(args)
		if err != nil {
			return err
		}
		var extra []optimizer.Option
		if optimizeNoCompact {
			extra = append(extra, optimizer.WithCompressJumps(false))
		}
		p, err := newPipeline(optimizePasses, extra...)
		if err != nil {
			return err
		}

		strict := optimizeStrict || !appConfig.Optimizer.BestEffort
		var res *optimizer.Result
		if strict {
			res, err = p.Optimize(cmd.Context(), c)
		} else {
			res, err = p.TryOptimize(cmd.Context(), c)
		}
		recordReport(c, p.Passes(), res, err)
		if err != nil {
			return err
		}

		if optimizeOutput != "" {
			if err := artifact.Save(optimizeOutput, res.Contract); err != nil {
				return err
			}
			logger.Logger.Info("Optimized artifact written", "path", optimizeOutput)
		}

		out := cmd.OutOrStdout()
		if optimizePrintHex {
			fmt.Fprintln(out, hex.EncodeToString(res.Bytes))
			return nil
		}
		printStats(out, c.Name, res)
		return nil
	},
}

// recordReport stores the outcome when the report store is enabled. A store
// failure never fails the command.
func recordReport(c *contract.Contract, passes []string, res *optimizer.Result, runErr error) {
	store, err := openStore()
	if err != nil {
		logger.Logger.Warn("Report store unavailable", "error", err)
		return
	}
	if store == nil {
		return
	}
	defer store.Close()

	hash, err := c.Hash()
	if err != nil {
		return
	}
	if err := store.SaveReport(db.NewReport(c.Name, hash, passes, res, runErr)); err != nil {
		logger.Logger.Warn("Failed to save report", "error", err)
	}
}

func printStats(w io.Writer, name string, res *optimizer.Result) {
	st := res.Stats
	if res.Fallback {
		fmt.Fprintf(w, "%s: optimization failed, contract left unchanged: %v\n", name, res.Err)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Pass", "Instructions Before", "Instructions After"})
	table.SetAutoWrapText(false)
	for _, ps := range st.Passes {
		table.Append([]string{ps.Name, strconv.Itoa(ps.Before), strconv.Itoa(ps.After)})
	}
	table.SetFooter([]string{"total", strconv.Itoa(st.OriginalInstructions), strconv.Itoa(st.OptimizedInstructions)})
	table.Render()

	fmt.Fprintf(w, "size: %d -> %d bytes, removed %d instructions", st.OriginalSize, st.OptimizedSize, st.Removed())
	if st.Compress.Shortened+st.Compress.Widened > 0 {
		fmt.Fprintf(w, ", %d jumps shortened, %d widened", st.Compress.Shortened, st.Compress.Widened)
	}
	fmt.Fprintln(w)
}

func init() {
	optimizeInput.register(optimizeCmd)
	optimizeCmd.Flags().StringVarP(&optimizeOutput, "output", "o", "", "Write the optimized contract artifact to this path")
	optimizeCmd.Flags().StringSliceVar(&optimizePasses, "passes", nil, "Comma-separated pass list overriding the configured one")
	optimizeCmd.Flags().BoolVar(&optimizeStrict, "strict", false, "Fail instead of falling back to the unoptimized contract")
	optimizeCmd.Flags().BoolVar(&optimizeNoCompact, "no-compress", false, "Skip jump compression")
	optimizeCmd.Flags().BoolVar(&optimizePrintHex, "print-hex", false, "Print the optimized bytecode as hex instead of statistics")

	rootCmd.AddCommand(optimizeCmd)
}
