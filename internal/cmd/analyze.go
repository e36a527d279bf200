// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/coverage"
	"github.com/dotandev/stackopt/internal/disasm"
)

var (
	analyzeInput         inputFlags
	analyzeHideUncovered bool
	analyzeNoIndirect    bool
)

var analyzeCmd = &cobra.Command{
	Use:     "analyze [artifact]",
	GroupID: "core",
	Short:   "Show branch coverage of every instruction",
	Long: `Disassemble a contract and classify every instruction by how control
leaves it: OK (returns), THROW, ABORT, or UNCOVERED when no entry point
reaches it.

Examples:
  stackopt analyze token.nef.cbor
  stackopt analyze --hex 10454011 --hide-uncovered`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := analyzeInput.load(args)
		if err != nil {
			return err
		}

		var opts []coverage.Option
		if analyzeNoIndirect {
			opts = append(opts, coverage.WithIndirectTargets(nil))
		}
		res, err := coverage.Analyze(c.Script, c.EntryIndices(), opts...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		p := disasm.NewPrinter(disasm.Options{Coverage: res, HideUncovered: analyzeHideUncovered})
		if err := p.Fprint(out, c); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d instructions: %d ok, %d throw, %d abort, %d uncovered\n",
			c.Script.Len(),
			res.Count(coverage.OK), res.Count(coverage.THROW),
			res.Count(coverage.ABORT), res.Count(coverage.UNCOVERED))
		return nil
	},
}

func init() {
	analyzeInput.register(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeHideUncovered, "hide-uncovered", false, "Omit instructions no entry point reaches")
	analyzeCmd.Flags().BoolVar(&analyzeNoIndirect, "no-indirect", false, "Do not treat PUSHA targets as indirect call candidates")

	rootCmd.AddCommand(analyzeCmd)
}
