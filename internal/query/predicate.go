package query

import (
	"sort"

	"github.com/arkilian/analytica/pkg/types"
)

// Op is a filter operator.
type Op int

const (
	// OpEq matches when the resolved value equals Value.
	OpEq Op = iota
	// OpIn matches when the resolved value equals any of Values.
	OpIn
)

func (o Op) String() string {
	if o == OpIn {
		return "in"
	}
	return "eq"
}

// Predicate is one compiled filter.
type Predicate struct {
	Path   Path
	Op     Op
	Value  interface{}
	Values []interface{}
}

// Match reports whether e satisfies the predicate. An unresolved path never
// matches.
func (p Predicate) Match(e types.Event) bool {
	got, ok := p.Path.Resolve(e)
	if !ok {
		return false
	}
	if p.Op == OpIn {
		for _, want := range p.Values {
			if equalValues(got, want) {
				return true
			}
		}
		return false
	}
	return equalValues(got, p.Value)
}

// Conjunction is a list of predicates that must all hold.
type Conjunction []Predicate

// Match reports whether e satisfies every predicate. An empty conjunction
// matches everything.
func (c Conjunction) Match(e types.Event) bool {
	for _, p := range c {
		if !p.Match(e) {
			return false
		}
	}
	return true
}

// Compile turns a filter map into predicates, ordered by path. A collection
// value becomes a membership test, anything else an equality test.
func Compile(filters map[string]interface{}) (Conjunction, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Conjunction, 0, len(keys))
	for _, k := range keys {
		path, err := ParsePath(k)
		if err != nil {
			return nil, err
		}
		want := filters[k]
		if list, ok := asCollection(want); ok {
			out = append(out, Predicate{Path: path, Op: OpIn, Values: list})
			continue
		}
		out = append(out, Predicate{Path: path, Op: OpEq, Value: want})
	}
	return out, nil
}
