package divergence_test

import (
	"context"
	"sync"
	"time"

	"github.com/adiom-data/poicheck/pkg/divergence"
	"github.com/cenkalti/backoff/v4"
)

type digestFunc func(id divergence.NodeID, cp divergence.Checkpoint) (divergence.Digest, error)

// stubSource answers from fn and counts calls per node.
type stubSource struct {
	mut   sync.Mutex
	calls map[divergence.NodeID]int
	fn    digestFunc
}

func newStubSource(fn digestFunc) *stubSource {
	return &stubSource{calls: map[divergence.NodeID]int{}, fn: fn}
}

func (s *stubSource) Digest(_ context.Context, node divergence.Node, _ divergence.DatasetRef, cp divergence.Checkpoint) (divergence.Digest, error) {
	s.mut.Lock()
	s.calls[node.ID]++
	s.mut.Unlock()
	return s.fn(node.ID, cp)
}

func (s *stubSource) Calls(id divergence.NodeID) int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.calls[id]
}

func (s *stubSource) TotalCalls() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	total := 0
	for _, c := range s.calls {
		total += c
	}
	return total
}

// timerRecorder hands out timers that fire immediately and remembers every
// requested delay.
type timerRecorder struct {
	mut    sync.Mutex
	delays []time.Duration
}

func (r *timerRecorder) NewTimer() backoff.Timer {
	return &recordingTimer{r: r, ch: make(chan time.Time, 1)}
}

func (r *timerRecorder) Delays() []time.Duration {
	r.mut.Lock()
	defer r.mut.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type recordingTimer struct {
	r  *timerRecorder
	ch chan time.Time
}

func (t *recordingTimer) Start(d time.Duration) {
	t.r.mut.Lock()
	t.r.delays = append(t.r.delays, d)
	t.r.mut.Unlock()
	t.ch <- time.Now()
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time {
	return t.ch
}

func newTestEngine(src divergence.DigestSource, settings divergence.EngineSettings) (*divergence.Engine, *timerRecorder) {
	timers := &timerRecorder{}
	fetcher := divergence.NewFetcher(src, divergence.FetcherSettings{NewTimer: timers.NewTimer})
	return divergence.NewEngine(fetcher, settings), timers
}

func peerSet(ids ...divergence.NodeID) divergence.PeerSet {
	peers := divergence.PeerSet{}
	for _, id := range ids {
		peers[id] = divergence.Node{ID: id, Endpoint: "http://" + string(id) + ".example/"}
	}
	return peers
}

// allNodes returns the union of the three classification sets.
func allNodes(r *divergence.ConsensusResult) []divergence.NodeID {
	var ids []divergence.NodeID
	ids = append(ids, r.Agreeing.Sorted()...)
	ids = append(ids, r.Disagreeing.Sorted()...)
	for id := range r.Unreachable {
		ids = append(ids, id)
	}
	return ids
}
