// Package types provides the core data types of the analytics store: events,
// queries, reports and summary statistics.
package types

import "encoding/json"

// EventType is the fine-grained kind of an analytics event.
type EventType string

const (
	EventTransaction    EventType = "transaction"
	EventGasFee         EventType = "gas_fee"
	EventWalletActivity EventType = "wallet_activity"
	EventDexTrade       EventType = "dex_trade"
	EventRPCCall        EventType = "rpc_call"
	EventUserAction     EventType = "user_action"
	EventPerformance    EventType = "performance"
	EventError          EventType = "error"
)

// AllEventTypes returns every event type in declaration order.
func AllEventTypes() []EventType {
	return []EventType{
		EventTransaction, EventGasFee, EventWalletActivity, EventDexTrade,
		EventRPCCall, EventUserAction, EventPerformance, EventError,
	}
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Category is the higher-level grouping of an event.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryBlockchain Category = "blockchain"
	CategoryUser       Category = "user"
	CategorySystem     Category = "system"
	CategoryFinancial  Category = "financial"
	CategoryTechnical  Category = "technical"
)

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	return []Category{
		CategoryNetwork, CategoryBlockchain, CategoryUser,
		CategorySystem, CategoryFinancial, CategoryTechnical,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Event is a single immutable analytics fact.
type Event struct {
	// ID is a ULID string, unique across the store
	ID string `json:"id"`

	// Timestamp is the event time in Unix milliseconds
	Timestamp int64 `json:"timestamp"`

	Type     EventType `json:"type"`
	Category Category  `json:"category"`

	// Data is the open payload. Conventional keys are "address", "value" and "amount".
	Data map[string]interface{} `json:"data"`

	// Metadata is auxiliary and never indexed
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the event, detached from any shared maps.
func (e Event) Clone() Event {
	out := e
	out.Data = cloneMap(e.Data)
	out.Metadata = cloneMap(e.Metadata)
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		cp := make(map[string]interface{}, len(m))
		for k, v := range m {
			cp[k] = v
		}
		return cp
	}
	var cp map[string]interface{}
	if err := json.Unmarshal(raw, &cp); err != nil {
		return m
	}
	return cp
}
