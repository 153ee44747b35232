/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package poicheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adiom-data/poicheck/connectors/chain"
	"github.com/adiom-data/poicheck/connectors/ipfs"
	"github.com/adiom-data/poicheck/connectors/registry"
	"github.com/adiom-data/poicheck/pkg/divergence"
)

// RangeResolver fills in the bounds the user did not supply.
type RangeResolver interface {
	Resolve(ctx context.Context, deployment divergence.DatasetRef, start, end *uint64) (divergence.Range, error)
}

// manifestResolver takes the start block from the deployment manifest and
// the end block from the head of the manifest's network.
type manifestResolver struct {
	ipfs        *ipfs.Client
	registryURL string
	rpcURL      string
	margin      uint64
}

func (r *manifestResolver) Resolve(ctx context.Context, deployment divergence.DatasetRef, start, end *uint64) (divergence.Range, error) {
	var res divergence.Range
	if start != nil && end != nil {
		res = divergence.Range{Start: divergence.Checkpoint(*start), End: divergence.Checkpoint(*end)}
		return res, res.Validate()
	}

	slog.Info("Fetching manifest from IPFS", "deployment", deployment)
	manifest, err := r.ipfs.FetchManifest(ctx, deployment)
	if err != nil {
		return res, err
	}

	if start != nil {
		res.Start = divergence.Checkpoint(*start)
	} else {
		res.Start = manifest.StartBlock()
		slog.Info("Resolved start block", "block", res.Start)
	}

	if end != nil {
		res.End = divergence.Checkpoint(*end)
	} else {
		rpcURL := r.rpcURL
		if rpcURL == "" {
			network, ok := manifest.Network()
			if !ok {
				return res, errors.New("network not found in manifest")
			}
			slog.Info("Fetching RPC URL from registry", "network", network)
			reg, err := registry.Fetch(ctx, nil, r.registryURL)
			if err != nil {
				return res, err
			}
			if rpcURL, err = reg.PublicRPCURL(network); err != nil {
				return res, err
			}
		}
		slog.Info("Fetching chain head", "rpc", rpcURL)
		if res.End, err = chain.HeadFromRPC(ctx, rpcURL, r.margin); err != nil {
			return res, err
		}
		slog.Info("Resolved end block", "block", res.End)
	}

	if err := res.Validate(); err != nil {
		return res, fmt.Errorf("resolved range: %w", err)
	}
	return res, nil
}
