/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package poicheck

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/adiom-data/poicheck/connectors/ipfs"
	"github.com/adiom-data/poicheck/connectors/network"
	"github.com/adiom-data/poicheck/internal/app/options"
	"github.com/adiom-data/poicheck/internal/build"
	"github.com/adiom-data/poicheck/logger"
	"github.com/adiom-data/poicheck/metrics"
	"github.com/adiom-data/poicheck/pkg/divergence"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// NewApp builds the poicheck command line application.
func NewApp() *cli.App {
	app := &cli.App{
		Name:      "poicheck",
		Usage:     "Fetches and compares proofs of indexing from indexers on The Graph",
		UsageText: "poicheck command [options]",
		Version:   build.VersionInfo(),
		Copyright: build.CopyrightStr,
		Commands: []*cli.Command{
			newDivergenceCommand(),
			newPoiCommand(),
		},
		After: func(*cli.Context) error {
			metrics.Done()
			return nil
		},
	}

	return app
}

// environment holds the collaborators of a command so tests can swap them.
type environment struct {
	directory PeerDirectory
	resolver  RangeResolver
	engine    *divergence.Engine
}

func newEnvironment(o options.Options) (environment, error) {
	engine, err := newEngine(o, nil, divergence.FetcherSettings{})
	if err != nil {
		return environment{}, err
	}
	return environment{
		directory: network.NewClient(network.ClientSettings{
			URL:    o.NetworkSubgraphURL,
			APIKey: o.APIKey,
		}),
		engine: engine,
	}, nil
}

func setupLogging(o options.Options) (io.Closer, error) {
	closer, err := logger.Setup(logger.Options{Verbosity: o.Verbosity, Logfile: o.Logfile})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.Default().With("run", uuid.NewString()))

	redacted := o
	if redacted.APIKey != "" {
		redacted.APIKey = "<redacted>"
	}
	slog.Debug(fmt.Sprintf("Parsed options: %+v", redacted))
	return closer, nil
}

func newManifestResolver(o options.DivergenceOptions) *manifestResolver {
	return &manifestResolver{
		ipfs:        ipfs.NewClient(o.IPFSURL, &http.Client{Timeout: ipfs.DefaultTimeout}),
		registryURL: o.RegistryURL,
		rpcURL:      o.RPCURL,
		margin:      o.EndBlockMargin,
	}
}
