package lab

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// TrendChart renders a parameter's values over time as a standalone HTML
// page. When ref is non-nil its numeric bounds are drawn as dashed lines and
// the y axis is widened to keep them in view.
func TrendChart(parameter string, points []SeriesPoint, ref *ReferenceRange) (string, error) {
	if len(points) == 0 {
		return "", fmt.Errorf("no numeric values recorded for %s", parameter)
	}

	xAxis := make([]string, 0, len(points))
	yData := make([]opts.LineData, 0, len(points))
	dataMin, dataMax := points[0].Value, points[0].Value
	for _, p := range points {
		xAxis = append(xAxis, p.Label)
		yData = append(yData, opts.LineData{Value: p.Value, Name: p.Status})
		dataMin = min(dataMin, p.Value)
		dataMax = max(dataMax, p.Value)
	}

	unit := points[len(points)-1].Unit
	var refMin, refMax *float64
	if ref != nil {
		if v, ok := ref.MinValue.Float(); ok {
			refMin = &v
		}
		if v, ok := ref.MaxValue.Float(); ok {
			refMax = &v
		}
		if unit == "" {
			unit = ref.Unit
		}
	}

	var yAxisMin, yAxisMax interface{}
	if refMin != nil && refMax != nil {
		padding := (*refMax - *refMin) * 0.1
		lo, hi := *refMin-padding, *refMax+padding
		if dataMin < lo {
			lo = dataMin - (dataMax-dataMin)*0.05
		}
		if dataMax > hi {
			hi = dataMax + (dataMax-dataMin)*0.05
		}
		yAxisMin, yAxisMax = lo, hi
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: parameter}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit, Min: yAxisMin, Max: yAxisMax}),
	)

	seriesOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{
			Smooth:     opts.Bool(true),
			ShowSymbol: opts.Bool(true),
		}),
		charts.WithMarkPointNameTypeItemOpts(
			opts.MarkPointNameTypeItem{Name: "Max", Type: "max"},
			opts.MarkPointNameTypeItem{Name: "Min", Type: "min"},
		),
	}

	var markLines []interface{}
	if refMin != nil {
		markLines = append(markLines, opts.MarkLineNameYAxisItem{Name: "Ref Min", YAxis: *refMin})
	}
	if refMax != nil {
		markLines = append(markLines, opts.MarkLineNameYAxisItem{Name: "Ref Max", YAxis: *refMax})
	}
	if len(markLines) > 0 {
		seriesOpts = append(seriesOpts, func(s *charts.SingleSeries) {
			s.MarkLines = &opts.MarkLines{
				Data: markLines,
				MarkLineStyle: opts.MarkLineStyle{
					Symbol: []string{"none", "none"},
					LineStyle: &opts.LineStyle{
						Color: "rgba(128, 128, 128, 0.6)",
						Type:  "dashed",
						Width: 1.5,
					},
				},
			}
		})
	}

	line.SetXAxis(xAxis).
		AddSeries(parameter, yData).
		SetSeriesOptions(seriesOpts...)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	return buf.String(), nil
}
