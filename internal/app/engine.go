/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package poicheck

import (
	"context"

	"github.com/adiom-data/poicheck/connectors/indexer"
	"github.com/adiom-data/poicheck/connectors/util"
	"github.com/adiom-data/poicheck/internal/app/options"
	"github.com/adiom-data/poicheck/pkg/divergence"
)

// PeerDirectory lists the indexers serving a deployment.
type PeerDirectory interface {
	Indexers(ctx context.Context, deployment divergence.DatasetRef) (divergence.PeerSet, error)
}

// newEngine wires the digest transport, cache and rate limiter into an
// engine according to the options.
func newEngine(o options.Options, source divergence.DigestSource, fetcherSettings divergence.FetcherSettings) (*divergence.Engine, error) {
	if source == nil {
		source = indexer.NewClient(indexer.ClientSettings{Timeout: o.RequestTimeout})
	}
	if o.CacheSize > 0 {
		cached, err := divergence.NewCachedSource(source, o.CacheSize)
		if err != nil {
			return nil, err
		}
		source = cached
	}
	if o.RateLimit >= 0 {
		fetcherSettings.Limiter = util.NewNodeLimiter(nil, o.RateLimit)
	}
	fetcher := divergence.NewFetcher(source, fetcherSettings)
	return divergence.NewEngine(fetcher, divergence.EngineSettings{MaxConcurrency: o.MaxConcurrency}), nil
}
