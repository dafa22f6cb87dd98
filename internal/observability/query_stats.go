// Package observability holds the process-wide logger, prometheus metrics and
// the in-memory query statistics tracker.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks which index each planned query used and which filter
// paths callers ask for. It is safe for concurrent use.
type QueryStats struct {
	mu         sync.RWMutex
	indexFreq  map[string]*UsageStats
	filterFreq map[string]*UsageStats
	window     time.Duration
	now        func() time.Time
}

// UsageStats holds statistics for an index or a filter path.
type UsageStats struct {
	Name      string
	Frequency int64
	LastSeen  time.Time
	Operators map[string]int // operator → count (e.g., "eq" → 5, "in" → 2)
}

// NewQueryStats creates a tracker whose entries expire after window of
// inactivity (see Prune).
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		indexFreq:  make(map[string]*UsageStats),
		filterFreq: make(map[string]*UsageStats),
		window:     window,
		now:        time.Now,
	}
}

// RecordIndex records one query planned against index.
func (q *QueryStats) RecordIndex(index string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.touch(q.indexFreq, index, "")
}

// RecordFilterPath records one filter on path with the given operator.
func (q *QueryStats) RecordFilterPath(path, operator string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.touch(q.filterFreq, path, operator)
}

// caller holds q.mu
func (q *QueryStats) touch(m map[string]*UsageStats, name, operator string) {
	s, ok := m[name]
	if !ok {
		s = &UsageStats{Name: name, Operators: make(map[string]int)}
		m[name] = s
	}
	s.Frequency++
	s.LastSeen = q.now()
	if operator != "" {
		s.Operators[operator]++
	}
}

// TopIndexes returns up to n indexes ordered by frequency, most used first.
func (q *QueryStats) TopIndexes(n int) []UsageStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return top(q.indexFreq, n)
}

// TopFilterPaths returns up to n filter paths ordered by frequency.
func (q *QueryStats) TopFilterPaths(n int) []UsageStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return top(q.filterFreq, n)
}

// top copies entries out so callers cannot mutate tracked state. Ties are
// ordered by name to keep output stable.
func top(m map[string]*UsageStats, n int) []UsageStats {
	if n <= 0 || len(m) == 0 {
		return []UsageStats{}
	}

	out := make([]UsageStats, 0, len(m))
	for _, s := range m {
		ops := make(map[string]int, len(s.Operators))
		for op, c := range s.Operators {
			ops[op] = c
		}
		out = append(out, UsageStats{Name: s.Name, Frequency: s.Frequency, LastSeen: s.LastSeen, Operators: ops})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Name < out[j].Name
	})

	if n > len(out) {
		n = len(out)
	}
	return out[:n]
}

// Prune drops entries not seen within the window.
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := q.now().Add(-q.window)
	for _, m := range []map[string]*UsageStats{q.indexFreq, q.filterFreq} {
		for name, s := range m {
			if s.LastSeen.Before(threshold) {
				delete(m, name)
			}
		}
	}
}
