package divergence_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/adiom-data/poicheck/connectors/util"
	"github.com/adiom-data/poicheck/pkg/divergence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var node = divergence.Node{ID: "n", Endpoint: "http://n.example/"}

func TestFetchWithRetryFirstAttempt(t *testing.T) {
	src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
		return "0xabc", nil
	})
	timers := &timerRecorder{}
	f := divergence.NewFetcher(src, divergence.FetcherSettings{NewTimer: timers.NewTimer})

	d, err := f.FetchWithRetry(context.Background(), node, "Qm", 7, 3)
	require.NoError(t, err)
	assert.Equal(t, divergence.Digest("0xabc"), d)
	assert.Equal(t, 1, src.Calls("n"))
	assert.Empty(t, timers.Delays())
}

func TestFetchWithRetryExhausted(t *testing.T) {
	attempt := 0
	src := newStubSource(func(id divergence.NodeID, cp divergence.Checkpoint) (divergence.Digest, error) {
		attempt++
		return "", &divergence.FetchError{Kind: divergence.FetchStatus, Node: id, Checkpoint: cp, Err: fmt.Errorf("attempt %d", attempt)}
	})
	timers := &timerRecorder{}
	f := divergence.NewFetcher(src, divergence.FetcherSettings{NewTimer: timers.NewTimer})

	_, err := f.FetchWithRetry(context.Background(), node, "Qm", 7, 3)
	require.Error(t, err)
	assert.Equal(t, 3, src.Calls("n"))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, timers.Delays())

	var fetchErr *divergence.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, divergence.FetchStatus, fetchErr.Kind)
	assert.EqualError(t, fetchErr.Err, "attempt 3")
}

func TestFetchWithRetryRecovers(t *testing.T) {
	attempt := 0
	src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
		attempt++
		if attempt < 3 {
			return "", errors.New("connection refused")
		}
		return "0xabc", nil
	})
	timers := &timerRecorder{}
	f := divergence.NewFetcher(src, divergence.FetcherSettings{NewTimer: timers.NewTimer})

	d, err := f.FetchWithRetry(context.Background(), node, "Qm", 7, 5)
	require.NoError(t, err)
	assert.Equal(t, divergence.Digest("0xabc"), d)
	assert.Equal(t, 3, src.Calls("n"))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, timers.Delays())
}

func TestFetchWithRetryLinearDelays(t *testing.T) {
	src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
		return "", errors.New("down")
	})
	timers := &timerRecorder{}
	f := divergence.NewFetcher(src, divergence.FetcherSettings{BaseDelay: 10 * time.Millisecond, NewTimer: timers.NewTimer})

	_, err := f.FetchWithRetry(context.Background(), node, "Qm", 7, 4)
	require.Error(t, err)
	assert.Equal(t, 4, src.Calls("n"))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, timers.Delays())
}

func TestFetchWithRetryStartsFresh(t *testing.T) {
	src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
		return "", errors.New("down")
	})
	timers := &timerRecorder{}
	f := divergence.NewFetcher(src, divergence.FetcherSettings{NewTimer: timers.NewTimer})

	_, _ = f.FetchWithRetry(context.Background(), node, "Qm", 1, 2)
	_, _ = f.FetchWithRetry(context.Background(), node, "Qm", 2, 2)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, timers.Delays())
}

func TestFetchWithRetryZeroAttempts(t *testing.T) {
	src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
		return "0xabc", nil
	})
	f := divergence.NewFetcher(src, divergence.FetcherSettings{})

	_, err := f.FetchWithRetry(context.Background(), node, "Qm", 7, 0)
	assert.ErrorIs(t, err, divergence.ErrNoAttempts)
	assert.Equal(t, 0, src.Calls("n"))
}

func TestFetchEmptyDigest(t *testing.T) {
	src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
		return "", nil
	})
	timers := &timerRecorder{}
	f := divergence.NewFetcher(src, divergence.FetcherSettings{NewTimer: timers.NewTimer})

	_, err := f.FetchWithRetry(context.Background(), node, "Qm", 7, 2)
	var fetchErr *divergence.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, divergence.FetchEmpty, fetchErr.Kind)
	assert.Equal(t, 2, src.Calls("n"))
}

func TestFetchWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
		cancel()
		return "", errors.New("down")
	})
	timers := &timerRecorder{}
	f := divergence.NewFetcher(src, divergence.FetcherSettings{NewTimer: timers.NewTimer})

	_, err := f.FetchWithRetry(ctx, node, "Qm", 7, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.Calls("n"))
	assert.Empty(t, timers.Delays())
}

func TestLinearBackOff(t *testing.T) {
	b := &divergence.LinearBackOff{Step: time.Second}
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestFetchThroughLimiter(t *testing.T) {
	for _, limit := range []int{-1, 0, 1000} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
				return "0xabc", nil
			})
			f := divergence.NewFetcher(src, divergence.FetcherSettings{Limiter: util.NewNodeLimiter(nil, limit)})

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for cp := divergence.Checkpoint(0); cp < 20; cp++ {
				d, err := f.FetchWithRetry(ctx, node, "Qm", cp, 1)
				require.NoError(t, err)
				assert.Equal(t, divergence.Digest("0xabc"), d)
			}
			assert.Equal(t, 20, src.Calls("n"))
		})
	}
}

type singleLimiter struct {
	lim *rate.Limiter
}

func (s singleLimiter) Get(string) *rate.Limiter {
	return s.lim
}

func TestFetchLimiterWaitHonoursContext(t *testing.T) {
	src := newStubSource(func(divergence.NodeID, divergence.Checkpoint) (divergence.Digest, error) {
		return "0xabc", nil
	})
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, lim.Allow())
	f := divergence.NewFetcher(src, divergence.FetcherSettings{Limiter: singleLimiter{lim: lim}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, node, "Qm", 1)

	var fetchErr *divergence.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, divergence.FetchTransport, fetchErr.Kind)
	assert.Equal(t, 0, src.Calls("n"))
}
