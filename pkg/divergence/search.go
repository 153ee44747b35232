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
	"time"

	"github.com/adiom-data/poicheck/metrics"
)

type SearchRequest struct {
	Trusted    NodeID
	Peers      PeerSet
	Dataset    DatasetRef
	Range      Range
	MaxRetries uint
}

// Validate checks the preconditions of a search. It makes no network calls.
func (r SearchRequest) Validate() error {
	if err := r.Range.Validate(); err != nil {
		return err
	}
	if _, ok := r.Peers[r.Trusted]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownTrustedNode, r.Trusted)
	}
	if r.MaxRetries == 0 {
		return ErrNoAttempts
	}
	return nil
}

type SearchResult struct {
	Range Range
	// Divergence is the lowest probed checkpoint with a disagreeing peer.
	// Only meaningful when Found is set.
	Divergence Checkpoint
	Found      bool
	// Probes holds every consensus result in the order the checkpoints were
	// probed.
	Probes []*ConsensusResult
}

// Probe returns the consensus result recorded for checkpoint, if it was probed.
func (r *SearchResult) Probe(checkpoint Checkpoint) (*ConsensusResult, bool) {
	for _, p := range r.Probes {
		if p.Checkpoint == checkpoint {
			return p, true
		}
	}
	return nil, false
}

// Search bisects the request range for the lowest checkpoint at which some
// peer disagrees with the trusted node.
//
// The answer is only correct if divergence is monotonic: once present at a
// checkpoint it stays present at every later one. This is not verified; use
// Confirm to sample checkpoints above the answer.
//
// A NoGroundTruth failure at any probe aborts the search and no result is
// returned.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &SearchResult{Range: req.Range}
	low, high := req.Range.Start, req.Range.End
	for low <= high {
		mid := low + (high-low)/2

		start := e.settings.Clock.Now()
		probe, err := e.Check(ctx, req.Trusted, req.Peers, req.Dataset, mid, req.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("probe checkpoint %d: %w", mid, err)
		}
		res.Probes = append(res.Probes, probe)
		e.logProbe(probe, low, high, e.settings.Clock.Since(start))

		if probe.Diverged() {
			res.Divergence, res.Found = mid, true
			if mid == low {
				break
			}
			high = mid - 1
		} else {
			if mid == high {
				break
			}
			low = mid + 1
		}
	}
	return res, nil
}

func (e *Engine) logProbe(probe *ConsensusResult, low, high Checkpoint, d time.Duration) {
	metrics.Probe(probe.Diverged(), len(probe.Unreachable), d)
	slog.Info("Probed checkpoint",
		"checkpoint", probe.Checkpoint,
		"low", low,
		"high", high,
		"agreeing", len(probe.Agreeing),
		"disagreeing", len(probe.Disagreeing),
		"unreachable", len(probe.Unreachable),
		"took", d)
}

// Confirmation is the outcome of sampling checkpoints above a reported
// divergence.
type Confirmation struct {
	Divergence Checkpoint
	Probes     []*ConsensusResult
	// Converged lists sampled checkpoints where no peer disagreed. Any entry
	// is evidence that divergence is not monotonic for this dataset.
	Converged []Checkpoint
}

func (c *Confirmation) Monotonic() bool {
	return len(c.Converged) == 0
}

// SamplePoints picks up to n evenly spaced checkpoints in (after, end]. The
// last point is always end.
func SamplePoints(after, end Checkpoint, n int) []Checkpoint {
	if n <= 0 || end <= after {
		return nil
	}
	span := end - after
	if Checkpoint(n) > span {
		n = int(span)
	}
	step := span / Checkpoint(n)
	points := make([]Checkpoint, 0, n)
	for i := 1; i < n; i++ {
		points = append(points, after+step*Checkpoint(i))
	}
	return append(points, end)
}

// Confirm probes up to samples checkpoints above divergence within the
// request range. It never changes the search answer; it only reports
// checkpoints that contradict monotonic divergence.
func (e *Engine) Confirm(ctx context.Context, req SearchRequest, divergence Checkpoint, samples int) (*Confirmation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c := &Confirmation{Divergence: divergence}
	for _, cp := range SamplePoints(divergence, req.Range.End, samples) {
		probe, err := e.Check(ctx, req.Trusted, req.Peers, req.Dataset, cp, req.MaxRetries)
		if err != nil {
			return nil, fmt.Errorf("confirm checkpoint %d: %w", cp, err)
		}
		c.Probes = append(c.Probes, probe)
		if !probe.Diverged() {
			slog.Warn("Divergence not observed above reported checkpoint", "divergence", divergence, "checkpoint", cp)
			c.Converged = append(c.Converged, cp)
		}
	}
	return c, nil
}
