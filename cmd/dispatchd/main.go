// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the dispatch server.
package main

import (
	"os"

	"github.com/fwdslsh/dispatch-sub012/cmd/dispatchd/app"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
