// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay-server",
	Short: "E2EE relay server - enforcement layer for KEP handshakes and message/file envelopes",
	Long: `relay-server runs the relay's enforcement pipeline: bearer-token
authentication, structural and replay validation, per-caller rate
limiting, metadata-only persistence, and live-transport fanout for every
inbound KEP and message envelope.

It does not see plaintext and holds no session keys; it forwards
ciphertext envelopes between authenticated parties and enforces the
policies described in its configuration.`,
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&configDir, "config-dir", "config", "directory to load environment-specific config files from")
	rootCmd.Flags().StringVar(&configEnv, "env", "", "override the detected environment (development, staging, production)")
}
