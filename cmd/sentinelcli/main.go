// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sentinelcli is the terminal client for the Aleutian Sentinel
// server.
//
// Usage:
//
//	sentinelcli status
//	sentinelcli investigate --focus inventory --propose 1
//	sentinelcli investigate --propose 1 --dispatch
//	sentinelcli chat
//	sentinelcli chat --resume
//
// The server address comes from --server or SENTINEL_SERVER_URL and
// defaults to http://localhost:8080.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var serverFlag string

var rootCmd = &cobra.Command{
	Use:   "sentinelcli",
	Short: "Terminal client for the Aleutian Sentinel investigation server",
	Long: strings.TrimSpace(`
sentinelcli drives an Aleutian Sentinel server from the terminal: run a
full investigation of the store's data, review the issues it finds, and
chat with the investigation agent interactively.
`),
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "",
		"Sentinel server base URL (default SENTINEL_SERVER_URL or http://localhost:8080)")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newInvestigateCmd())
	rootCmd.AddCommand(newChatCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle().Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// serverBaseURL resolves the server address: flag, then environment, then
// the local default.
func serverBaseURL() string {
	if serverFlag != "" {
		return strings.TrimRight(serverFlag, "/")
	}
	if env := os.Getenv("SENTINEL_SERVER_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return "http://localhost:8080"
}
