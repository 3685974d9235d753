package ratelimit

import (
	"sync"
	"time"

	"github.com/omnibridge/backend/internal/utils"
)

const shardCount = 32

// SlidingWindow allows at most Max events per key within any Window-long
// interval. Keys are spread over independently locked shards.
type SlidingWindow struct {
	window time.Duration
	max    int
	now    func() time.Time
	shards [shardCount]shard
}

type shard struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewSlidingWindow(window time.Duration, max int) *SlidingWindow {
	l := &SlidingWindow{window: window, max: max, now: time.Now}
	for i := range l.shards {
		l.shards[i].hits = map[string][]time.Time{}
	}
	return l
}

// Key builds the limiter key for one platform user.
func Key(platform, externalUserID string) string {
	return platform + ":" + externalUserID
}

// Allow records an event for key and reports whether it is within the limit.
// Rejected events are not recorded.
func (l *SlidingWindow) Allow(key string) bool {
	now := l.now()
	s := &l.shards[utils.Bucket(key, shardCount)]
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := prune(s.hits[key], now.Add(-l.window))
	if len(hits) >= l.max {
		s.hits[key] = hits
		return false
	}
	s.hits[key] = append(hits, now)
	return true
}

// Sweep drops keys with no events inside the window.
func (l *SlidingWindow) Sweep() int {
	cutoff := l.now().Add(-l.window)
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for k, hits := range s.hits {
			if hits = prune(hits, cutoff); len(hits) == 0 {
				delete(s.hits, k)
				removed++
			} else {
				s.hits[k] = hits
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
