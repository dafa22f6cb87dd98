package report

import (
	"github.com/arkilian/analytica/internal/query"
	"github.com/arkilian/analytica/pkg/types"
)

// compiledChart is a chart spec with its axis paths parsed. A nil axis path
// projects every event to nil.
type compiledChart struct {
	spec  types.ChartSpec
	xPath query.Path
	yPath query.Path
}

func compileCharts(specs []types.ChartSpec) ([]compiledChart, error) {
	out := make([]compiledChart, len(specs))
	for i, spec := range specs {
		c := compiledChart{spec: spec}
		if spec.XAxis != "" {
			p, err := query.ParsePath(spec.XAxis)
			if err != nil {
				return nil, err
			}
			c.xPath = p
		}
		if spec.YAxis != "" {
			p, err := query.ParsePath(spec.YAxis)
			if err != nil {
				return nil, err
			}
			c.yPath = p
		}
		out[i] = c
	}
	return out, nil
}

// project builds one data point per event for every series.
func (c compiledChart) project(events []types.Event) types.Chart {
	points := make([]types.DataPoint, len(events))
	for i, e := range events {
		points[i] = types.DataPoint{X: resolveOrNil(c.xPath, e), Y: resolveOrNil(c.yPath, e)}
	}

	chart := types.Chart{
		Type:   c.spec.Type,
		Title:  c.spec.Title,
		XAxis:  c.spec.XAxis,
		YAxis:  c.spec.YAxis,
		Series: make([]types.Series, len(c.spec.Series)),
	}
	for i, s := range c.spec.Series {
		data := make([]types.DataPoint, len(points))
		copy(data, points)
		chart.Series[i] = types.Series{Name: s.Name, Color: s.Color, Type: s.Type, Data: data}
	}
	return chart
}

func resolveOrNil(p query.Path, e types.Event) interface{} {
	if p == nil {
		return nil
	}
	v, ok := p.Resolve(e)
	if !ok {
		return nil
	}
	return v
}
