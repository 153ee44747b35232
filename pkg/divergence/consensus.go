/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package divergence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

type EngineSettings struct {
	// MaxConcurrency bounds the number of in-flight peer fetches within a
	// single check. Zero starts one goroutine per peer.
	MaxConcurrency int
	Clock          clock.Clock
}

// Engine runs consensus checks and the divergence search over a Fetcher.
type Engine struct {
	fetcher  *Fetcher
	settings EngineSettings
}

func NewEngine(fetcher *Fetcher, settings EngineSettings) *Engine {
	if settings.Clock == nil {
		settings.Clock = clock.New()
	}
	return &Engine{fetcher: fetcher, settings: settings}
}

type peerOutcome struct {
	id     NodeID
	digest Digest
	err    error
}

// Check compares every peer's digest at checkpoint against the trusted
// node's. The trusted digest is fetched first; if it cannot be obtained the
// check fails with an error matching ErrNoGroundTruth and no peer is
// contacted. Peer failures are isolated from each other and end up in
// Unreachable.
func (e *Engine) Check(ctx context.Context, trusted NodeID, peers PeerSet, ref DatasetRef, checkpoint Checkpoint, maxRetries uint) (*ConsensusResult, error) {
	trustedNode, ok := peers[trusted]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTrustedNode, trusted)
	}

	trustedDigest, err := e.fetcher.FetchWithRetry(ctx, trustedNode, ref, checkpoint, maxRetries)
	if err != nil {
		return nil, &NoGroundTruthError{Node: trusted, Checkpoint: checkpoint, Err: err}
	}

	var ids []NodeID
	for _, id := range peers.IDs() {
		if id != trusted {
			ids = append(ids, id)
		}
	}

	outcomes := make([]peerOutcome, len(ids))
	var eg errgroup.Group
	if e.settings.MaxConcurrency > 0 {
		eg.SetLimit(e.settings.MaxConcurrency)
	}
	for i, id := range ids {
		eg.Go(func() error {
			digest, err := e.fetcher.FetchWithRetry(ctx, peers[id], ref, checkpoint, maxRetries)
			outcomes[i] = peerOutcome{id: id, digest: digest, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	result := &ConsensusResult{
		Checkpoint:    checkpoint,
		TrustedDigest: trustedDigest,
		Agreeing:      NodeSet{},
		Disagreeing:   NodeSet{},
		Unreachable:   map[NodeID]error{},
		Digests:       map[NodeID]Digest{trusted: trustedDigest},
	}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			slog.Warn("Peer unreachable", "node", o.id, "checkpoint", checkpoint, "err", o.err)
			result.Unreachable[o.id] = o.err
		case o.digest == trustedDigest:
			result.Agreeing.Add(o.id)
			result.Digests[o.id] = o.digest
		default:
			result.Disagreeing.Add(o.id)
			result.Digests[o.id] = o.digest
		}
	}
	return result, nil
}
