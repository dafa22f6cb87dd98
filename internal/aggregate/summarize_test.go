package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/arkilian/analytica/internal/query"
	"github.com/arkilian/analytica/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC).UnixMilli()

func ev(ts int64, typ types.EventType, cat types.Category, data map[string]interface{}) types.Event {
	return types.Event{ID: fmt.Sprintf("e%d", ts), Timestamp: ts, Type: typ, Category: cat, Data: data}
}

func TestSummarize_Empty(t *testing.T) {
	stats := Summarize(nil, 1234)

	assert.Zero(t, stats.TotalEvents)
	assert.Len(t, stats.EventsByCategory, len(types.AllCategories()))
	assert.Len(t, stats.EventsByType, len(types.AllEventTypes()))
	for _, c := range types.AllCategories() {
		assert.Zero(t, stats.EventsByCategory[c])
	}
	assert.Equal(t, types.DateRange{Start: 1234, End: 1234}, stats.DateRange)
	assert.NotNil(t, stats.Trends)
	assert.Empty(t, stats.Trends)
	assert.NotNil(t, stats.TopEntities)
	assert.Empty(t, stats.TopEntities)
}

func TestSummarize_SameDayTrendBucket(t *testing.T) {
	events := []types.Event{
		ev(day, types.EventRPCCall, types.CategoryNetwork, map[string]interface{}{"value": float64(10)}),
		ev(day+1, types.EventRPCCall, types.CategoryNetwork, map[string]interface{}{"value": float64(20)}),
		ev(day+2, types.EventRPCCall, types.CategoryNetwork, map[string]interface{}{"value": float64(30)}),
	}

	stats := Summarize(events, 0)

	require.Len(t, stats.Trends, 1)
	assert.Equal(t, "2024-03-15", stats.Trends[0].Date)
	assert.Equal(t, 3, stats.Trends[0].Count)
	assert.Equal(t, 60.0, stats.Trends[0].Value)
	assert.Equal(t, 3, stats.EventsByCategory[types.CategoryNetwork])
	assert.Equal(t, 3, stats.EventsByType[types.EventRPCCall])
	assert.Zero(t, stats.EventsByCategory[types.CategoryUser])
	assert.Equal(t, types.DateRange{Start: day, End: day + 2}, stats.DateRange)
}

func TestSummarize_TrendsAscendingByUTCDate(t *testing.T) {
	h := time.Hour.Milliseconds()
	events := []types.Event{
		ev(day+48*h, types.EventError, types.CategorySystem, nil),
		ev(day, types.EventError, types.CategorySystem, nil),
		// 23:30 UTC still belongs to the first day
		ev(day+14*h+30*time.Minute.Milliseconds(), types.EventError, types.CategorySystem, nil),
		ev(day+24*h, types.EventError, types.CategorySystem, nil),
	}

	stats := Summarize(events, 0)

	require.Len(t, stats.Trends, 3)
	assert.Equal(t, "2024-03-15", stats.Trends[0].Date)
	assert.Equal(t, 2, stats.Trends[0].Count)
	assert.Equal(t, "2024-03-16", stats.Trends[1].Date)
	assert.Equal(t, "2024-03-17", stats.Trends[2].Date)
}

func TestSummarize_Magnitude(t *testing.T) {
	events := []types.Event{
		ev(day, types.EventTransaction, types.CategoryFinancial, map[string]interface{}{"value": 5}),
		ev(day+1, types.EventTransaction, types.CategoryFinancial, map[string]interface{}{"amount": 2.5}),
		ev(day+2, types.EventTransaction, types.CategoryFinancial, map[string]interface{}{"value": "100", "amount": 1.0}),
		ev(day+3, types.EventTransaction, types.CategoryFinancial, map[string]interface{}{"value": "100"}),
		ev(day+4, types.EventTransaction, types.CategoryFinancial, nil),
	}

	stats := Summarize(events, 0)
	require.Len(t, stats.Trends, 1)
	assert.Equal(t, 8.5, stats.Trends[0].Value)
}

func TestSummarize_TopEntities(t *testing.T) {
	var events []types.Event
	ts := day
	add := func(addr interface{}, n int) {
		for i := 0; i < n; i++ {
			ts++
			events = append(events, ev(ts, types.EventWalletActivity, types.CategoryBlockchain, map[string]interface{}{"address": addr}))
		}
	}
	for i := 0; i < 12; i++ {
		add(fmt.Sprintf("0x%02d", i), i+1)
	}
	add("0xtie", 12)
	add(42, 3)
	events = append(events, ev(ts+1, types.EventWalletActivity, types.CategoryBlockchain, nil))

	stats := Summarize(events, 0)

	require.Len(t, stats.TopEntities, TopEntityLimit)
	assert.Equal(t, "0x11", stats.TopEntities[0].Address)
	assert.Equal(t, 12, stats.TopEntities[0].Count)
	assert.Equal(t, "0xtie", stats.TopEntities[1].Address)
	assert.Equal(t, "0x10", stats.TopEntities[2].Address)

	total := float64(len(events))
	assert.InDelta(t, 12/total*100, stats.TopEntities[0].Percentage, 1e-9)
	for i := 1; i < len(stats.TopEntities); i++ {
		assert.GreaterOrEqual(t, stats.TopEntities[i-1].Count, stats.TopEntities[i].Count)
	}
}

func TestGroupCounts(t *testing.T) {
	events := []types.Event{
		ev(1, types.EventDexTrade, types.CategoryFinancial, map[string]interface{}{"pool": "a"}),
		ev(2, types.EventDexTrade, types.CategoryFinancial, map[string]interface{}{"pool": "b"}),
		ev(3, types.EventDexTrade, types.CategoryFinancial, map[string]interface{}{"pool": "a"}),
		ev(4, types.EventDexTrade, types.CategoryFinancial, map[string]interface{}{}),
		ev(5, types.EventGasFee, types.CategoryFinancial, map[string]interface{}{"pool": "c"}),
	}

	groups := GroupCounts(events, query.MustParsePath("data.pool"))
	require.Len(t, groups, 3)
	assert.Equal(t, types.GroupCount{Key: "a", Count: 2}, groups[0])
	assert.Equal(t, types.GroupCount{Key: "b", Count: 1}, groups[1])
	assert.Equal(t, types.GroupCount{Key: "c", Count: 1}, groups[2])

	byType := GroupCounts(events, query.MustParsePath("type"))
	require.Len(t, byType, 2)
	assert.Equal(t, "dex_trade", byType[0].Key)
	assert.Equal(t, 4, byType[0].Count)
}
