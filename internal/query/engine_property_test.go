package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/arkilian/analytica/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_FindOrderingAndPaging(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	eng := NewEngine(nil, EngineConfig{})

	properties.Property("results are sorted newest first and never exceed the page", prop.ForAll(
		func(timestamps []int64, limit, offset int) bool {
			src := &memorySource{}
			for i, ts := range timestamps {
				src.events = append(src.events, ev(fmt.Sprintf("e%d", i), ts, types.EventUserAction, types.CategoryUser, nil))
			}

			got, err := eng.Find(context.Background(), src, types.Query{}.WithLimit(limit, offset))
			if err != nil {
				return false
			}

			for i := 1; i < len(got); i++ {
				if got[i-1].Timestamp < got[i].Timestamp {
					return false
				}
			}

			want := len(timestamps) - offset
			if want < 0 {
				want = 0
			}
			if want > limit {
				want = limit
			}
			return len(got) == want
		},
		gen.SliceOf(gen.Int64Range(0, 1000)),
		gen.IntRange(1, 50),
		gen.IntRange(0, 60),
	))

	properties.Property("an unlimited query returns every event exactly once", prop.ForAll(
		func(timestamps []int64) bool {
			src := &memorySource{}
			for i, ts := range timestamps {
				src.events = append(src.events, ev(fmt.Sprintf("e%d", i), ts, types.EventUserAction, types.CategoryUser, nil))
			}

			got, err := eng.Find(context.Background(), src, types.Query{}.WithLimit(len(timestamps)+1, 0))
			if err != nil {
				return false
			}
			seen := make(map[string]bool, len(got))
			for _, e := range got {
				if seen[e.ID] {
					return false
				}
				seen[e.ID] = true
			}
			return len(seen) == len(timestamps)
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)),
	))

	properties.TestingRun(t)
}
