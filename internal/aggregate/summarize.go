// Package aggregate computes summary statistics over a set of events.
// Everything here is pure: no store access and no clock reads.
package aggregate

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/arkilian/analytica/internal/query"
	"github.com/arkilian/analytica/pkg/types"
)

// TopEntityLimit is the number of entities reported by Summarize.
const TopEntityLimit = 10

const trendDateLayout = "2006-01-02"

// Summarize computes counts, date range, daily trends and top entities for
// events. now anchors the date range when events is empty.
func Summarize(events []types.Event, now int64) types.Stats {
	stats := types.NewStats(now)
	stats.TotalEvents = len(events)
	if len(events) == 0 {
		return stats
	}

	stats.DateRange = types.DateRange{Start: events[0].Timestamp, End: events[0].Timestamp}

	buckets := make(map[string]*types.TrendBucket)
	entities := make(map[string]int)

	for _, e := range events {
		stats.EventsByCategory[e.Category]++
		stats.EventsByType[e.Type]++

		if e.Timestamp < stats.DateRange.Start {
			stats.DateRange.Start = e.Timestamp
		}
		if e.Timestamp > stats.DateRange.End {
			stats.DateRange.End = e.Timestamp
		}

		day := time.UnixMilli(e.Timestamp).UTC().Format(trendDateLayout)
		b, ok := buckets[day]
		if !ok {
			b = &types.TrendBucket{Date: day}
			buckets[day] = b
		}
		b.Count++
		b.Value += magnitude(e)

		if addr, ok := e.Data["address"].(string); ok && addr != "" {
			entities[addr]++
		}
	}

	stats.Trends = make([]types.TrendBucket, 0, len(buckets))
	for _, b := range buckets {
		stats.Trends = append(stats.Trends, *b)
	}
	sort.Slice(stats.Trends, func(i, j int) bool {
		return stats.Trends[i].Date < stats.Trends[j].Date
	})

	stats.TopEntities = topEntities(entities, len(events))
	return stats
}

// magnitude is data.value when numeric, else data.amount when numeric, else 0.
func magnitude(e types.Event) float64 {
	if v, ok := numeric(e.Data["value"]); ok {
		return v
	}
	if v, ok := numeric(e.Data["amount"]); ok {
		return v
	}
	return 0
}

// numeric accepts number types only; numeric strings do not count.
func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func topEntities(counts map[string]int, total int) []types.EntityCount {
	out := make([]types.EntityCount, 0, len(counts))
	for addr, c := range counts {
		out = append(out, types.EntityCount{
			Address:    addr,
			Count:      c,
			Percentage: float64(c) / float64(total) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Address < out[j].Address
	})
	if len(out) > TopEntityLimit {
		out = out[:TopEntityLimit]
	}
	return out
}

// GroupCounts counts events by the value found at path. Events where the
// path does not resolve are not counted. Groups are ordered by count
// descending, then by the JSON form of the key.
func GroupCounts(events []types.Event, path query.Path) []types.GroupCount {
	type group struct {
		key   interface{}
		sort  string
		count int
	}
	groups := make(map[string]*group)

	for _, e := range events {
		v, ok := path.Resolve(e)
		if !ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		k := string(raw)
		g, ok := groups[k]
		if !ok {
			g = &group{key: v, sort: k}
			groups[k] = g
		}
		g.count++
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].sort < ordered[j].sort
	})

	out := make([]types.GroupCount, len(ordered))
	for i, g := range ordered {
		out[i] = types.GroupCount{Key: g.key, Count: g.count}
	}
	return out
}
