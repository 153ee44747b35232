/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package chain reads the current head of an EVM chain over JSON-RPC.
package chain

import (
	"context"
	"fmt"

	"github.com/adiom-data/poicheck/pkg/divergence"
	"github.com/ethereum/go-ethereum/ethclient"
)

// HeadReader is satisfied by *ethclient.Client.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Head returns the latest block number minus margin. A margin larger than
// the head yields 0.
func Head(ctx context.Context, r HeadReader, margin uint64) (divergence.Checkpoint, error) {
	n, err := r.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch chain head: %w", err)
	}
	if margin > n {
		return 0, nil
	}
	return divergence.Checkpoint(n - margin), nil
}

// HeadFromRPC dials rpcURL and returns its head minus margin.
func HeadFromRPC(ctx context.Context, rpcURL string, margin uint64) (divergence.Checkpoint, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return 0, fmt.Errorf("dial %v: %w", rpcURL, err)
	}
	defer client.Close()
	return Head(ctx, client, margin)
}
