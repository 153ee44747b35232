/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package divergence

import (
	"context"
	"fmt"
	"slices"
)

// NodeID uniquely identifies an indexing node.
type NodeID string

// DatasetRef names the dataset under audit. It is passed through unchanged.
type DatasetRef string

// Checkpoint is an ordinal processing position, e.g. a block number.
type Checkpoint uint64

// Digest is the opaque proof a node computes for a dataset at a checkpoint.
// Digests are compared byte for byte.
type Digest string

type Node struct {
	ID       NodeID
	Endpoint string
}

// PeerSet maps node ids to nodes. It is read-only for the duration of a search.
type PeerSet map[NodeID]Node

// IDs returns the node ids in ascending order.
func (p PeerSet) IDs() []NodeID {
	ids := make([]NodeID, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Range is the closed checkpoint interval [Start, End].
type Range struct {
	Start Checkpoint
	End   Checkpoint
}

func (r Range) Validate() error {
	if r.Start > r.End {
		return fmt.Errorf("%w: start %d is after end %d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

type NodeSet map[NodeID]struct{}

func (s NodeSet) Add(id NodeID) {
	s[id] = struct{}{}
}

func (s NodeSet) Contains(id NodeID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s NodeSet) Sorted() []NodeID {
	ids := make([]NodeID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ConsensusResult is the classification of peers at one checkpoint. The
// trusted node never appears in any of the sets, and the sets are pairwise
// disjoint.
type ConsensusResult struct {
	Checkpoint    Checkpoint
	TrustedDigest Digest
	Agreeing      NodeSet
	Disagreeing   NodeSet
	// Unreachable peers with the last error observed for each.
	Unreachable map[NodeID]error
	// Digests returned by every node that answered, the trusted node included.
	Digests map[NodeID]Digest
}

// Diverged reports whether at least one peer returned a digest different
// from the trusted digest.
func (r *ConsensusResult) Diverged() bool {
	return len(r.Disagreeing) > 0
}

// DigestSource performs exactly one round trip to a node and returns its
// digest for the dataset at the checkpoint. Implementations should return a
// *FetchError describing the failure.
type DigestSource interface {
	Digest(ctx context.Context, node Node, ref DatasetRef, checkpoint Checkpoint) (Digest, error)
}

// DigestSourceFunc adapts a function to a DigestSource.
type DigestSourceFunc func(ctx context.Context, node Node, ref DatasetRef, checkpoint Checkpoint) (Digest, error)

func (f DigestSourceFunc) Digest(ctx context.Context, node Node, ref DatasetRef, checkpoint Checkpoint) (Digest, error) {
	return f(ctx, node, ref, checkpoint)
}
