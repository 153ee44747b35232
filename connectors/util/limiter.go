package util

import (
	"sync"

	"golang.org/x/time/rate"
)

// NodeLimiter hands out one token bucket per node so that retries and
// repeated probes do not hammer a single endpoint.
type NodeLimiter interface {
	Get(node string) *rate.Limiter
}

type nodeLimiter struct {
	mut                   sync.RWMutex
	limiters              map[string]*rate.Limiter
	defaultLimiterFactory func() *rate.Limiter
}

func (l *nodeLimiter) Get(node string) *rate.Limiter {
	l.mut.RLock()
	limiter, ok := l.limiters[node]
	l.mut.RUnlock()
	if !ok {
		l.mut.Lock()
		limiter2, ok2 := l.limiters[node]
		if ok2 {
			l.mut.Unlock()
			return limiter2
		}
		limiter = l.defaultLimiterFactory()
		l.limiters[node] = limiter
		l.mut.Unlock()
		return limiter
	}
	return limiter
}

// newLimiter treats 0 like a negative limit. A zero rate never refills the
// bucket and would block every caller after the first.
func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

// NewNodeLimiter builds a limiter with per-node overrides in requests per
// second. Zero and negative limits mean unlimited.
func NewNodeLimiter(nodeToLimit map[string]int, defaultLimit int) *nodeLimiter {
	limiters := map[string]*rate.Limiter{}
	for k, v := range nodeToLimit {
		limiters[k] = newLimiter(v)
	}
	return &nodeLimiter{
		limiters: limiters,
		defaultLimiterFactory: func() *rate.Limiter {
			return newLimiter(defaultLimit)
		},
	}
}
