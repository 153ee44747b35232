/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package divergence

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Snapshot holds the digests of every node at one checkpoint. Nodes whose
// fetch failed after retries are kept apart in Failures.
type Snapshot struct {
	Checkpoint Checkpoint
	Digests    map[NodeID]Digest
	Failures   map[NodeID]error
}

// Snapshot fetches the digest of every node in peers, the trusted node
// included, at checkpoint. Unlike Check, no single failure is fatal.
func (e *Engine) Snapshot(ctx context.Context, peers PeerSet, ref DatasetRef, checkpoint Checkpoint, maxRetries uint) *Snapshot {
	s := &Snapshot{
		Checkpoint: checkpoint,
		Digests:    map[NodeID]Digest{},
		Failures:   map[NodeID]error{},
	}

	var mut sync.Mutex
	var eg errgroup.Group
	if e.settings.MaxConcurrency > 0 {
		eg.SetLimit(e.settings.MaxConcurrency)
	}
	for id, node := range peers {
		eg.Go(func() error {
			digest, err := e.fetcher.FetchWithRetry(ctx, node, ref, checkpoint, maxRetries)
			mut.Lock()
			defer mut.Unlock()
			if err != nil {
				s.Failures[id] = err
			} else {
				s.Digests[id] = digest
			}
			return nil
		})
	}
	_ = eg.Wait()
	return s
}

// Groups groups the snapshot digests. See Group.
func (s *Snapshot) Groups(peers PeerSet, trusted NodeID) []DigestGroup {
	return Group(peers, s.Digests, trusted)
}

// SnapshotFromProbe builds a snapshot from a consensus result without any
// further network calls.
func SnapshotFromProbe(probe *ConsensusResult) *Snapshot {
	s := &Snapshot{
		Checkpoint: probe.Checkpoint,
		Digests:    make(map[NodeID]Digest, len(probe.Digests)),
		Failures:   make(map[NodeID]error, len(probe.Unreachable)),
	}
	for id, d := range probe.Digests {
		s.Digests[id] = d
	}
	for id, err := range probe.Unreachable {
		s.Failures[id] = err
	}
	return s
}
