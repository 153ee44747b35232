/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package divergence

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	node       NodeID
	endpoint   string
	ref        DatasetRef
	checkpoint Checkpoint
}

// CachedSource remembers successful digests so a checkpoint that was
// already probed is not fetched again, e.g. when building the final report.
// Failures are never cached.
type CachedSource struct {
	source DigestSource
	cache  *lru.Cache[cacheKey, Digest]
}

func NewCachedSource(source DigestSource, size int) (*CachedSource, error) {
	cache, err := lru.New[cacheKey, Digest](size)
	if err != nil {
		return nil, err
	}
	return &CachedSource{source: source, cache: cache}, nil
}

func (c *CachedSource) Digest(ctx context.Context, node Node, ref DatasetRef, checkpoint Checkpoint) (Digest, error) {
	key := cacheKey{node: node.ID, endpoint: node.Endpoint, ref: ref, checkpoint: checkpoint}
	if d, ok := c.cache.Get(key); ok {
		return d, nil
	}
	d, err := c.source.Digest(ctx, node, ref, checkpoint)
	if err != nil {
		return "", err
	}
	if d != "" {
		c.cache.Add(key, d)
	}
	return d, nil
}

var _ DigestSource = &CachedSource{}
