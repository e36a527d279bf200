// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/db"
	"github.com/dotandev/stackopt/internal/errors"
)

var (
	historyName     string
	historyHash     string
	historyLimit    int
	historyFallback bool
	historyPrune    time.Duration
	historyDryRun   bool
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "utility",
	Short:   "Search past optimization reports",
	Long: `Search the report store for past optimization runs, or prune old reports.
Reports are only recorded while the store is enabled in the configuration.

Examples:
  stackopt history --name '^token'
  stackopt history --fallback --limit 5
  stackopt history --prune 720h --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if store == nil {
			return errors.WrapValidationError("report store is disabled; set [store] enabled = true or STACKOPT_STORE_ENABLED=1")
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if historyPrune > 0 {
			n, err := store.Prune(time.Now().Add(-historyPrune), historyDryRun)
			if err != nil {
				return err
			}
			if historyDryRun {
				fmt.Fprintf(out, "%d reports would be deleted\n", n)
			} else {
				fmt.Fprintf(out, "%d reports deleted\n", n)
			}
			return nil
		}

		reports, err := store.SearchReports(db.SearchParams{
			Hash:         historyHash,
			NameRegex:    historyName,
			FallbackOnly: historyFallback,
			Limit:        historyLimit,
		})
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Fprintln(out, "No reports found.")
			return nil
		}
		printReports(out, reports)
		return nil
	},
}

func printReports(w io.Writer, reports []db.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Time", "Contract", "Hash", "Size", "Removed", "Duration", "Status"})
	table.SetAutoWrapText(false)
	for _, r := range reports {
		status := "ok"
		switch {
		case r.Fallback:
			status = "unchanged"
		case r.ErrorMsg != "":
			status = "error"
		}
		hash := r.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		table.Append([]string{
			strconv.FormatInt(r.ID, 10),
			r.Timestamp.Local().Format(time.DateTime),
			r.Name,
			hash,
			fmt.Sprintf("%d -> %d", r.OriginalSize, r.OptimizedSize),
			strconv.Itoa(r.Removed),
			fmt.Sprintf("%dms", r.DurationMS),
			status,
		})
	}
	table.Render()
}

func init() {
	historyCmd.Flags().StringVar(&historyName, "name", "", "Regular expression matched against contract names")
	historyCmd.Flags().StringVar(&historyHash, "hash", "", "Exact script hash")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of reports to show")
	historyCmd.Flags().BoolVar(&historyFallback, "fallback", false, "Only show runs that fell back to the unoptimized contract")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete reports older than this duration instead of searching")
	historyCmd.Flags().BoolVar(&historyDryRun, "dry-run", false, "With --prune, only count the reports that would be deleted")

	rootCmd.AddCommand(historyCmd)
}
