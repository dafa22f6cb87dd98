package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStats_AllKeysPresent(t *testing.T) {
	s := NewStats(42)

	assert.Equal(t, 0, s.TotalEvents)
	assert.Len(t, s.EventsByCategory, len(AllCategories()))
	assert.Len(t, s.EventsByType, len(AllEventTypes()))
	for _, c := range AllCategories() {
		v, ok := s.EventsByCategory[c]
		assert.True(t, ok, "missing category %s", c)
		assert.Zero(t, v)
	}
	for _, et := range AllEventTypes() {
		v, ok := s.EventsByType[et]
		assert.True(t, ok, "missing type %s", et)
		assert.Zero(t, v)
	}
	assert.Equal(t, DateRange{Start: 42, End: 42}, s.DateRange)
	assert.NotNil(t, s.Trends)
	assert.NotNil(t, s.TopEntities)
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, EventDexTrade.Valid())
	assert.False(t, EventType("bogus").Valid())
	assert.True(t, CategoryFinancial.Valid())
	assert.False(t, Category("").Valid())
	assert.True(t, ReportGasAnalysis.Valid())
	assert.False(t, ReportKind("weekly").Valid())
}

func TestEvent_CloneIsDetached(t *testing.T) {
	e := Event{ID: "a", Data: map[string]interface{}{"nested": map[string]interface{}{"k": "v"}}}
	cp := e.Clone()
	cp.Data["nested"].(map[string]interface{})["k"] = "changed"

	assert.Equal(t, "v", e.Data["nested"].(map[string]interface{})["k"])
}
