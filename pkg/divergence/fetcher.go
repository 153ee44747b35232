/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package divergence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adiom-data/poicheck/metrics"
	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// DefaultBaseDelay is the wait after the first failed attempt. The k-th
// failure waits k*DefaultBaseDelay.
const DefaultBaseDelay = 500 * time.Millisecond

// LinearBackOff waits Step, 2*Step, 3*Step, ... between attempts.
type LinearBackOff struct {
	Step time.Duration

	attempt int64
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.Step
}

func (b *LinearBackOff) Reset() {
	b.attempt = 0
}

var _ backoff.BackOff = &LinearBackOff{}

// RateLimiter hands out a limiter per key. See connectors/util.
type RateLimiter interface {
	Get(key string) *rate.Limiter
}

type FetcherSettings struct {
	// BaseDelay defaults to DefaultBaseDelay.
	BaseDelay time.Duration
	Clock     clock.Clock
	// NewTimer is called once per FetchWithRetry. Defaults to a timer on Clock.
	NewTimer func() backoff.Timer
	// Limiter, if set, is waited on before every attempt, keyed by node id.
	Limiter RateLimiter
}

// Fetcher wraps a DigestSource with a bounded retry loop. It keeps no
// state across calls, so every call starts from attempt one.
type Fetcher struct {
	source   DigestSource
	settings FetcherSettings
}

func NewFetcher(source DigestSource, settings FetcherSettings) *Fetcher {
	if settings.BaseDelay <= 0 {
		settings.BaseDelay = DefaultBaseDelay
	}
	if settings.Clock == nil {
		settings.Clock = clock.New()
	}
	if settings.NewTimer == nil {
		c := settings.Clock
		settings.NewTimer = func() backoff.Timer {
			return &clockTimer{clock: c}
		}
	}
	return &Fetcher{source: source, settings: settings}
}

// Fetch performs a single attempt.
func (f *Fetcher) Fetch(ctx context.Context, node Node, ref DatasetRef, checkpoint Checkpoint) (Digest, error) {
	if f.settings.Limiter != nil {
		if err := f.settings.Limiter.Get(string(node.ID)).Wait(ctx); err != nil {
			return "", &FetchError{Kind: FetchTransport, Node: node.ID, Checkpoint: checkpoint, Err: err}
		}
	}

	start := f.settings.Clock.Now()
	digest, err := f.source.Digest(ctx, node, ref, checkpoint)
	if err == nil && digest == "" {
		err = &FetchError{Kind: FetchEmpty, Node: node.ID, Checkpoint: checkpoint, Err: errors.New("empty digest")}
	}
	metrics.FetchAttempt(string(node.ID), err == nil, f.settings.Clock.Since(start))
	if err != nil {
		return "", err
	}
	return digest, nil
}

// FetchWithRetry makes up to maxRetries sequential attempts. After failed
// attempt k (k < maxRetries) it waits k*BaseDelay. When every attempt fails
// the last error is returned.
func (f *Fetcher) FetchWithRetry(ctx context.Context, node Node, ref DatasetRef, checkpoint Checkpoint, maxRetries uint) (Digest, error) {
	if maxRetries == 0 {
		return "", ErrNoAttempts
	}

	var digest Digest
	attempt := 0
	operation := func() error {
		attempt++
		d, err := f.Fetch(ctx, node, ref, checkpoint)
		if err != nil {
			return err
		}
		digest = d
		return nil
	}
	notify := func(err error, delay time.Duration) {
		slog.Debug("Digest fetch failed, retrying", "node", node.ID, "checkpoint", checkpoint, "attempt", attempt, "delay", delay, "err", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&LinearBackOff{Step: f.settings.BaseDelay}, uint64(maxRetries-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, f.settings.NewTimer()); err != nil {
		return "", err
	}
	return digest, nil
}

// clockTimer adapts clock.Clock to backoff.Timer.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	t.timer = t.clock.Timer(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
