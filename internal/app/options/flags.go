/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package options

import (
	"fmt"
	"slices"
	"strings"

	"github.com/adiom-data/poicheck/connectors/indexer"
	"github.com/adiom-data/poicheck/connectors/ipfs"
	"github.com/adiom-data/poicheck/connectors/network"
	"github.com/adiom-data/poicheck/connectors/registry"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// DefaultVerbosity is the default verbosity level for the application.
const DefaultVerbosity = "INFO"

const DefaultMaxRetries = 3

const DefaultCacheSize = 1024

var validVerbosities = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// commonFlags are shared by every command that talks to indexers.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "verbosity",
			Usage:       fmt.Sprintf("set the verbosity level (%s)", strings.Join(validVerbosities, ",")),
			Value:       DefaultVerbosity,
			DefaultText: DefaultVerbosity,
			Action: func(ctx *cli.Context, verbosity string) error {
				if !slices.Contains(validVerbosities, verbosity) {
					return fmt.Errorf("unsupported verbosity setting %v", verbosity)
				}
				return nil
			},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "logfile",
			Usage: "also write JSON logs to this file",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "deployment",
			Usage:   "deployment ID (IPFS hash)",
			Aliases: []string{"d"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API key for The Graph gateway",
			EnvVars: []string{"GRAPH_API_KEY"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "network-subgraph-url",
			Usage: "network subgraph used to discover indexers",
			Value: network.DefaultURL,
		}),
		altsrc.NewUintFlag(&cli.UintFlag{
			Name:  "max-retries",
			Usage: "max attempts per proof of indexing request",
			Value: DefaultMaxRetries,
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  "request-timeout",
			Usage: "timeout of a single proof of indexing request",
			Value: indexer.DefaultTimeout,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "max-concurrency",
			Usage: "max concurrent indexer requests per block. 0 means one per indexer",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "rate-limit",
			Usage: "max requests per second to a single indexer. Negative means unlimited, 0 is rejected",
			Value: -1,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:   "cache-size",
			Usage:  "number of proofs kept in memory during a run. 0 disables the cache",
			Value:  DefaultCacheSize,
			Hidden: true,
		}),
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "specify the path of the config file",
		},
	}
}

func withConfigFile(flags []cli.Flag) cli.BeforeFunc {
	return altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc("config"))
}

// GetDivergenceFlagsAndBeforeFunc defines the check-divergence options as
// flags and returns a BeforeFunc to parse a configuration file before the
// command runs.
func GetDivergenceFlagsAndBeforeFunc() ([]cli.Flag, cli.BeforeFunc) {
	flags := append(commonFlags(),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "indexer",
			Usage:   "ID of the trusted indexer whose proofs are correct (required)",
			EnvVars: []string{"TRUSTED_INDEXER"},
		}),
		altsrc.NewUint64Flag(&cli.Uint64Flag{
			Name:  "start-block",
			Usage: "start block for the binary search. Defaults to the manifest start block",
		}),
		altsrc.NewUint64Flag(&cli.Uint64Flag{
			Name:  "end-block",
			Usage: "end block for the binary search. Defaults to the chain head",
		}),
		altsrc.NewUint64Flag(&cli.Uint64Flag{
			Name:  "end-block-margin",
			Usage: "blocks subtracted from the chain head when the end block is resolved",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "ipfs-url",
			Usage: "IPFS gateway used to fetch the deployment manifest",
			Value: ipfs.DefaultURL,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "registry-url",
			Usage: "networks registry used to find a public RPC endpoint",
			Value: registry.DefaultURL,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "rpc-url",
			Usage: "RPC endpoint used to read the chain head. Skips the registry lookup",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  "confirm-samples",
			Usage: "blocks above the divergence to re-check for non-monotonic divergence",
		}),
	)
	return flags, withConfigFile(flags)
}

// GetPoiFlagsAndBeforeFunc defines the poi options.
func GetPoiFlagsAndBeforeFunc() ([]cli.Flag, cli.BeforeFunc) {
	flags := append(commonFlags(),
		altsrc.NewUint64Flag(&cli.Uint64Flag{
			Name:  "block",
			Usage: "block number to fetch proofs of indexing for (required)",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    "indexer",
			Usage:   "optional ID of the trusted indexer, marks the correct group",
			EnvVars: []string{"TRUSTED_INDEXER"},
		}),
	)
	return flags, withConfigFile(flags)
}
