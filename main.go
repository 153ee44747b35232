// Copyright (c) 2024. Adiom, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	poicheck "github.com/adiom-data/poicheck/internal/app"
)

func main() {

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGPIPE)
	cancellableCtx, cancelApp := context.WithCancel(context.Background())

	go func() {
		for s := range sigChan {
			if s != syscall.SIGPIPE {
				cancelApp()
				break
			}
		}
	}()

	app := poicheck.NewApp()
	err := app.RunContext(cancellableCtx, os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poicheck exited with error: %v\n", err)
		os.Exit(1)
	}
}
