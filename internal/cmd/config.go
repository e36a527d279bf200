// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "utility",
	Short:   "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and STACKOPT_*
environment variables have been applied. The output is valid TOML and can be
saved as a starting .stackopt.toml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if appConfig.Source != "" {
			fmt.Fprintf(out, "# loaded from %s\n", appConfig.Source)
		}
		return appConfig.WriteTOML(out)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
