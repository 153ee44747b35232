package divergence_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/adiom-data/poicheck/pkg/divergence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// divergesFrom makes B disagree at every checkpoint >= from.
func divergesFrom(from divergence.Checkpoint) digestFunc {
	return func(id divergence.NodeID, cp divergence.Checkpoint) (divergence.Digest, error) {
		if id == "B" && cp >= from {
			return "0xbad", nil
		}
		return "0xgood", nil
	}
}

func searchRequest(r divergence.Range) divergence.SearchRequest {
	return divergence.SearchRequest{
		Trusted:    "T",
		Peers:      peerSet("T", "A", "B"),
		Dataset:    "QmDeployment",
		Range:      r,
		MaxRetries: 3,
	}
}

func TestSearchFindsFirstDivergence(t *testing.T) {
	src := newStubSource(divergesFrom(15))
	engine, _ := newTestEngine(src, divergence.EngineSettings{})

	res, err := engine.Search(context.Background(), searchRequest(divergence.Range{Start: 10, End: 20}))
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, divergence.Checkpoint(15), res.Divergence)

	probe, ok := res.Probe(15)
	require.True(t, ok)
	assert.Equal(t, []divergence.NodeID{"B"}, probe.Disagreeing.Sorted())
	assert.Equal(t, len(res.Probes), src.Calls("T"))
}

func TestSearchUnreachablePeerIsNotDivergence(t *testing.T) {
	src := newStubSource(func(id divergence.NodeID, _ divergence.Checkpoint) (divergence.Digest, error) {
		if id == "B" {
			return "", errors.New("connection refused")
		}
		return "0xgood", nil
	})
	engine, _ := newTestEngine(src, divergence.EngineSettings{})

	res, err := engine.Search(context.Background(), searchRequest(divergence.Range{Start: 10, End: 20}))
	require.NoError(t, err)
	assert.False(t, res.Found)
	require.NotEmpty(t, res.Probes)
	for _, p := range res.Probes {
		assert.Contains(t, p.Unreachable, divergence.NodeID("B"))
		assert.Empty(t, p.Disagreeing)
	}
	assert.Equal(t, 3*len(res.Probes), src.Calls("B"))
}

func TestSearchAbortsWithoutGroundTruth(t *testing.T) {
	next := divergesFrom(11)
	src := newStubSource(func(id divergence.NodeID, cp divergence.Checkpoint) (divergence.Digest, error) {
		if id == "T" && cp == 12 {
			return "", errors.New("timeout")
		}
		return next(id, cp)
	})
	engine, _ := newTestEngine(src, divergence.EngineSettings{})

	res, err := engine.Search(context.Background(), searchRequest(divergence.Range{Start: 10, End: 20}))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, divergence.ErrNoGroundTruth)

	var ngt *divergence.NoGroundTruthError
	require.True(t, errors.As(err, &ngt))
	assert.Equal(t, divergence.Checkpoint(12), ngt.Checkpoint)
}

func TestSearchSingleCheckpoint(t *testing.T) {
	for _, from := range []divergence.Checkpoint{5, 6} {
		src := newStubSource(divergesFrom(from))
		engine, _ := newTestEngine(src, divergence.EngineSettings{})

		res, err := engine.Search(context.Background(), searchRequest(divergence.Range{Start: 5, End: 5}))
		require.NoError(t, err)
		assert.Len(t, res.Probes, 1)
		assert.Equal(t, 1, src.Calls("T"))
		assert.Equal(t, from == 5, res.Found)
	}
}

func TestSearchPreconditions(t *testing.T) {
	src := newStubSource(divergesFrom(0))
	engine, _ := newTestEngine(src, divergence.EngineSettings{})

	_, err := engine.Search(context.Background(), searchRequest(divergence.Range{Start: 20, End: 10}))
	assert.ErrorIs(t, err, divergence.ErrInvalidRange)

	req := searchRequest(divergence.Range{Start: 1, End: 10})
	req.Trusted = "X"
	_, err = engine.Search(context.Background(), req)
	assert.ErrorIs(t, err, divergence.ErrUnknownTrustedNode)

	req = searchRequest(divergence.Range{Start: 1, End: 10})
	req.MaxRetries = 0
	_, err = engine.Search(context.Background(), req)
	assert.ErrorIs(t, err, divergence.ErrNoAttempts)

	assert.Equal(t, 0, src.TotalCalls())
}

func TestSearchMonotonicDivergence(t *testing.T) {
	ranges := []divergence.Range{
		{Start: 0, End: 0},
		{Start: 0, End: 1},
		{Start: 0, End: 31},
		{Start: 3, End: 17},
		{Start: 100, End: 1000},
	}
	for _, r := range ranges {
		for from := r.Start; from <= r.End+1; from++ {
			src := newStubSource(divergesFrom(from))
			engine, _ := newTestEngine(src, divergence.EngineSettings{})

			res, err := engine.Search(context.Background(), searchRequest(r))
			require.NoError(t, err)
			if from > r.End {
				assert.False(t, res.Found, "range %v", r)
			} else {
				assert.True(t, res.Found, "range %v from %d", r, from)
				assert.Equal(t, from, res.Divergence, "range %v", r)
			}
			span := float64(r.End-r.Start) + 1
			assert.LessOrEqual(t, len(res.Probes), int(math.Ceil(math.Log2(span+1))), "range %v", r)
		}
	}
}

func TestSearchRangeBoundaries(t *testing.T) {
	max := divergence.Checkpoint(math.MaxUint64)
	testData := []struct {
		Name  string
		Range divergence.Range
		From  divergence.Checkpoint
		Found bool
	}{
		{Name: "divergence at zero", Range: divergence.Range{Start: 0, End: 10}, From: 0, Found: true},
		{Name: "divergence at top", Range: divergence.Range{Start: max - 10, End: max}, From: max, Found: true},
		{Name: "wide range", Range: divergence.Range{Start: 0, End: max}, From: max / 3, Found: true},
		{Name: "no divergence in wide range", Range: divergence.Range{Start: max - 1000, End: max - 1}, From: max, Found: false},
	}
	for _, testCase := range testData {
		t.Run(testCase.Name, func(t *testing.T) {
			src := newStubSource(divergesFrom(testCase.From))
			engine, _ := newTestEngine(src, divergence.EngineSettings{})

			res, err := engine.Search(context.Background(), searchRequest(testCase.Range))
			require.NoError(t, err)
			assert.Equal(t, testCase.Found, res.Found)
			if testCase.Found {
				assert.Equal(t, testCase.From, res.Divergence)
			}
			assert.LessOrEqual(t, len(res.Probes), 65)
		})
	}
}

func TestSamplePoints(t *testing.T) {
	assert.Equal(t, []divergence.Checkpoint{13, 16, 20}, divergence.SamplePoints(10, 20, 3))
	assert.Equal(t, []divergence.Checkpoint{11, 12}, divergence.SamplePoints(10, 12, 5))
	assert.Equal(t, []divergence.Checkpoint{20}, divergence.SamplePoints(10, 20, 1))
	assert.Empty(t, divergence.SamplePoints(5, 5, 3))
	assert.Empty(t, divergence.SamplePoints(1, 5, 0))
}

func TestConfirmDetectsTransientDivergence(t *testing.T) {
	src := newStubSource(func(id divergence.NodeID, cp divergence.Checkpoint) (divergence.Digest, error) {
		if id == "B" && cp >= 15 && cp <= 16 {
			return "0xbad", nil
		}
		return "0xgood", nil
	})
	engine, _ := newTestEngine(src, divergence.EngineSettings{})
	req := searchRequest(divergence.Range{Start: 10, End: 20})

	res, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, divergence.Checkpoint(15), res.Divergence)

	c, err := engine.Confirm(context.Background(), req, res.Divergence, 2)
	require.NoError(t, err)
	assert.False(t, c.Monotonic())
	assert.Equal(t, []divergence.Checkpoint{17, 20}, c.Converged)
	assert.Len(t, c.Probes, 2)
}

func TestConfirmMonotonic(t *testing.T) {
	src := newStubSource(divergesFrom(15))
	engine, _ := newTestEngine(src, divergence.EngineSettings{})
	req := searchRequest(divergence.Range{Start: 10, End: 20})

	c, err := engine.Confirm(context.Background(), req, 15, 3)
	require.NoError(t, err)
	assert.True(t, c.Monotonic())
	assert.Len(t, c.Probes, 3)
}
