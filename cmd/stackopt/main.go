// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/dotandev/stackopt/internal/cmd"
)

var Version = "dev"

func main() {
	cmd.Version = Version

	err := cmd.Execute()
	if err != nil && !cmd.IsInterrupted(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cmd.ExitCode(err))
}
