// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fwdslsh/dispatch-sub012/pkg/auth"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user",
	Long: `Mint a signed bearer token for the given user, using the same secret
the server verifies with. The token is printed to stdout and nowhere else.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("user", "", "User id the token identifies")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().String("auth-secret", "", "HMAC secret shared with the server (or DISPATCH_AUTH_SECRET)")
	if err := tokenCmd.MarkFlagRequired("user"); err != nil {
		logger.Fatalf("Failed to mark user flag required: %v", err)
	}
}

func runToken(cmd *cobra.Command, _ []string) error {
	user, err := cmd.Flags().GetString("user")
	if err != nil {
		return err
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return err
	}
	secret, err := cmd.Flags().GetString("auth-secret")
	if err != nil {
		return err
	}
	if secret == "" {
		secret = os.Getenv("DISPATCH_AUTH_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("auth-secret is required (flag or DISPATCH_AUTH_SECRET)")
	}

	token, err := auth.IssueToken(secret, user, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
