/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package poicheck

import (
	"context"
	"fmt"

	"github.com/adiom-data/poicheck/internal/app/options"
	"github.com/adiom-data/poicheck/pkg/divergence"
	"github.com/urfave/cli/v2"
)

func newPoiCommand() *cli.Command {
	flags, before := options.GetPoiFlagsAndBeforeFunc()
	return &cli.Command{
		Name:        "poi",
		Usage:       "Fetch proofs of indexing for a deployment at a block",
		Description: "Fetches the proof of indexing from every active indexer of a deployment at one block and groups indexers by proof.",
		Flags:       flags,
		Before:      before,
		Action:      runPoi,
	}
}

func runPoi(c *cli.Context) error {
	o, err := options.NewPoiFromCLIContext(c)
	if err != nil {
		return err
	}
	closer, err := setupLogging(o.Options)
	if err != nil {
		return err
	}
	defer closer.Close()

	env, err := newEnvironment(o.Options)
	if err != nil {
		return err
	}
	_, err = fetchPois(c.Context, o, env, newReport(c.App.Writer))
	return err
}

func fetchPois(ctx context.Context, o options.PoiOptions, env environment, r *report) (*divergence.Snapshot, error) {
	ref := divergence.DatasetRef(o.Deployment)
	trusted := divergence.NodeID(o.Indexer)

	r.header("Proof of Indexing (POI) Fetcher")
	r.info("Deployment", o.Deployment)
	r.info("Block", o.Block)

	peers, err := env.directory.Indexers(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		r.failure("No active indexers found for this deployment")
		return nil, nil
	}
	if _, ok := peers[trusted]; trusted != "" && !ok {
		return nil, fmt.Errorf("%w: %v", divergence.ErrUnknownTrustedNode, trusted)
	}
	r.success(fmt.Sprintf("Found %d active indexers", len(peers)))

	snapshot := env.engine.Snapshot(ctx, peers, ref, divergence.Checkpoint(o.Block), o.MaxRetries)
	r.failures(snapshot)
	r.groups(snapshot, snapshot.Groups(peers, trusted), peers, trusted)
	return snapshot, nil
}
