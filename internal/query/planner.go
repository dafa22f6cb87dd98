package query

import (
	"github.com/arkilian/analytica/internal/observability"
	"github.com/arkilian/analytica/internal/store"
	"github.com/arkilian/analytica/pkg/types"
)

// Planner picks the most selective index available for a query.
type Planner struct {
	stats *observability.QueryStats
}

// NewPlanner creates a planner. stats may be nil.
func NewPlanner(stats *observability.QueryStats) *Planner {
	return &Planner{stats: stats}
}

// Plan returns the index scan for q: the compound (type, category) index when
// both are set, otherwise the type index, then the category index, then a
// full scan in timestamp order.
func (p *Planner) Plan(q types.Query) store.IndexScan {
	var scan store.IndexScan
	switch {
	case q.Type != nil && q.Category != nil:
		scan = store.IndexScan{Index: store.IndexTypeCategory, Type: *q.Type, Category: *q.Category}
	case q.Type != nil:
		scan = store.IndexScan{Index: store.IndexType, Type: *q.Type}
	case q.Category != nil:
		scan = store.IndexScan{Index: store.IndexCategory, Category: *q.Category}
	default:
		scan = store.IndexScan{Index: store.IndexFullScan}
	}

	if p.stats != nil {
		p.stats.RecordIndex(scan.Index.String())
	}
	return scan
}

func (p *Planner) observeFilters(preds Conjunction) {
	if p.stats == nil {
		return
	}
	for _, pred := range preds {
		p.stats.RecordFilterPath(pred.Path.String(), pred.Op.String())
	}
}
