// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/blocks"
	"github.com/dotandev/stackopt/internal/coverage"
)

var (
	blocksInput inputFlags
	blocksDOT   bool
)

var blocksCmd = &cobra.Command{
	Use:     "blocks [artifact]",
	GroupID: "core",
	Short:   "List the basic blocks of a contract",
	Long: `Split the covered instructions of a contract into basic blocks and list
them with their successors, or render the graph in Graphviz format.

Examples:
  stackopt blocks token.nef.cbor
  stackopt blocks --dot token.nef.cbor | dot -Tsvg > token.svg`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := blocksInput.load(args)
		if err != nil {
			return err
		}
		res, err := coverage.Analyze(c.Script, c.EntryIndices())
		if err != nil {
			return err
		}
		g, err := blocks.Build(c.Script, res)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if blocksDOT {
			fmt.Fprint(out, g.DOT(c.Name))
			return nil
		}
		printBlocks(out, g)
		return nil
	},
}

func printBlocks(w io.Writer, g *blocks.Graph) {
	offset := func(i int) string {
		return fmt.Sprintf("%04x", g.Script.At(i).Offset)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Start", "End", "Instructions", "Branch", "Next", "Jumps"})
	table.SetAutoWrapText(false)
	for _, b := range g.Blocks {
		next := "-"
		if b.Next != nil {
			next = offset(b.Next.Start)
		}
		targets := b.JumpTargets.ToSlice()
		sort.Ints(targets)
		jumps := make([]string, len(targets))
		for k, t := range targets {
			jumps[k] = offset(t)
		}
		table.Append([]string{
			offset(b.Start),
			offset(b.Last()),
			strconv.Itoa(len(b.Instructions)),
			b.BranchType.String(),
			next,
			strings.Join(jumps, " "),
		})
	}
	table.Render()
}

func init() {
	blocksInput.register(blocksCmd)
	blocksCmd.Flags().BoolVar(&blocksDOT, "dot", false, "Render the block graph in Graphviz DOT format")

	rootCmd.AddCommand(blocksCmd)
}
