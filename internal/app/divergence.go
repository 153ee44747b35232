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

func newDivergenceCommand() *cli.Command {
	flags, before := options.GetDivergenceFlagsAndBeforeFunc()
	return &cli.Command{
		Name:  "check-divergence",
		Usage: "Find the first block where proofs of indexing diverge",
		Description: "Performs a binary search between a start and end block to find the first block\n" +
			"where an indexer's proof of indexing differs from the trusted indexer's.\n" +
			"The search assumes that divergence, once present, persists at every later block.\n" +
			"Use --confirm-samples to re-check blocks above the result.",
		Flags:  flags,
		Before: before,
		Action: runCheckDivergence,
	}
}

func runCheckDivergence(c *cli.Context) error {
	o, err := options.NewDivergenceFromCLIContext(c)
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
	env.resolver = newManifestResolver(o)

	_, err = checkDivergence(c.Context, o, env, newReport(c.App.Writer))
	return err
}

func checkDivergence(ctx context.Context, o options.DivergenceOptions, env environment, r *report) (*divergence.SearchResult, error) {
	ref := divergence.DatasetRef(o.Deployment)
	trusted := divergence.NodeID(o.Indexer)

	r.header("POI Divergence Checker")
	r.info("Deployment", o.Deployment)

	rng, err := env.resolver.Resolve(ctx, ref, o.StartBlock, o.EndBlock)
	if err != nil {
		return nil, err
	}
	r.info("Search Range", fmt.Sprintf("%d → %d", rng.Start, rng.End))
	r.info("Reference Indexer", trusted)

	peers, err := env.directory.Indexers(ctx, ref)
	if err != nil {
		return nil, err
	}
	if _, ok := peers[trusted]; !ok {
		r.failure(fmt.Sprintf("Reference indexer '%v' not found in active allocations", trusted))
		return nil, fmt.Errorf("%w: %v", divergence.ErrUnknownTrustedNode, trusted)
	}
	r.success(fmt.Sprintf("Found %d active indexers", len(peers)))

	req := divergence.SearchRequest{
		Trusted:    trusted,
		Peers:      peers,
		Dataset:    ref,
		Range:      rng,
		MaxRetries: o.MaxRetries,
	}
	res, err := env.engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	r.probes(res)
	r.summary(res)

	at := rng.End
	if res.Found {
		at = res.Divergence
	}
	snapshot := env.engine.Snapshot(ctx, peers, ref, at, o.MaxRetries)
	r.failures(snapshot)
	r.groups(snapshot, snapshot.Groups(peers, trusted), peers, trusted)

	if res.Found && o.ConfirmSamples > 0 {
		c, err := env.engine.Confirm(ctx, req, res.Divergence, o.ConfirmSamples)
		if err != nil {
			return nil, err
		}
		r.confirmation(c)
		for _, probe := range c.Probes {
			if !probe.Diverged() {
				converged := divergence.SnapshotFromProbe(probe)
				r.groups(converged, converged.Groups(peers, trusted), peers, trusted)
				break
			}
		}
	}
	return res, nil
}
