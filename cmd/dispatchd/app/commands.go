// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the command tree for the dispatchd server.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "dispatchd",
	DisableAutoGenTag: true,
	Short:             "dispatchd mediates interactive run sessions over HTTP and WebSocket",
	Long: `dispatchd is a multi-user server for interactive run sessions: terminal
shells, AI conversations, and embedded web views. Every session records its
output as an ordered event log, so clients can disconnect and resume without
losing history.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help.
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for dispatchd.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
