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

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/stackopt/internal/daemon"
)

var (
	daemonPort      string
	daemonAuthToken string
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "utility",
	Short:   "Start JSON-RPC server for remote optimization",
	Long: `Start a JSON-RPC 2.0 server that exposes the optimizer to build tools and IDEs.

Endpoints:
  - Optimizer.Optimize: Optimize a hex-encoded script
  - Optimizer.Analyze: Coverage and basic blocks of a script
  - GET /health: Liveness check

Example:
  stackopt daemon --port 8080
  stackopt daemon --port 8080 --auth-token secret123`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := appConfig.Daemon.Port
		if cmd.Flags().Changed("port") {
			port = daemonPort
		}
		token := appConfig.Daemon.AuthToken
		if cmd.Flags().Changed("auth-token") {
			token = daemonAuthToken
		}

		p, err := newPipeline(nil)
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		registerStoreCloseHook(store)

		server := daemon.NewServer(daemon.Config{
			Port:       port,
			AuthToken:  token,
			BestEffort: appConfig.Optimizer.BestEffort,
		}, p, store)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Starting stackopt daemon on port %s\n", port)
		fmt.Fprintf(out, "Passes: %v\n", p.Passes())
		if token != "" {
			fmt.Fprintln(out, "Authentication: enabled")
		}
		if store != nil {
			fmt.Fprintln(out, "Report store: enabled")
		}

		// Execute cancels the context on SIGINT and SIGTERM.
		return server.Start(cmd.Context(), port)
	},
}

func init() {
	daemonCmd.Flags().StringVarP(&daemonPort, "port", "p", "8080", "Port to listen on (default from config)")
	daemonCmd.Flags().StringVar(&daemonAuthToken, "auth-token", "", "Authentication token for API access (default from config)")

	rootCmd.AddCommand(daemonCmd)
}
