// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/artifact"
)

var (
	// Version will be set by the main package
	Version = "dev"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: "utility",
	Short:   "Print the version number of stackopt",
	Long:    `Display the current version of the stackopt CLI and the artifact formats it reads.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "stackopt version %s\n", Version)
		fmt.Fprintf(out, "artifact format %s (reads %s)\n", artifact.FormatVersion, artifact.Compatible)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
