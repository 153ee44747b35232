/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package divergence

import (
	"cmp"
	"slices"
)

// DigestGroup is the set of nodes that reported the same digest.
type DigestGroup struct {
	Digest  Digest
	Members []NodeID
	// IsCorrect marks the group containing the trusted node.
	IsCorrect bool
}

// Group partitions nodes by exact digest value, ordered by digest. Digests
// from nodes outside peers are ignored. At most one group is marked correct:
// the one holding the trusted node. If the trusted node has no digest no
// group is marked.
func Group(peers PeerSet, digests map[NodeID]Digest, trusted NodeID) []DigestGroup {
	byDigest := map[Digest][]NodeID{}
	for id, d := range digests {
		if _, ok := peers[id]; !ok {
			continue
		}
		byDigest[d] = append(byDigest[d], id)
	}

	trustedDigest, hasTrusted := digests[trusted]
	if _, ok := peers[trusted]; !ok {
		hasTrusted = false
	}

	groups := make([]DigestGroup, 0, len(byDigest))
	for d, members := range byDigest {
		slices.Sort(members)
		groups = append(groups, DigestGroup{
			Digest:    d,
			Members:   members,
			IsCorrect: hasTrusted && d == trustedDigest,
		})
	}
	slices.SortFunc(groups, func(a, b DigestGroup) int {
		return cmp.Compare(a.Digest, b.Digest)
	})
	return groups
}
