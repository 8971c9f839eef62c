// Package report renders embedding results: an HTML page of per-group
// charts via go-echarts, and per-group residual PNGs via gonum/plot.
package report

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/scaffoldtools/dataembedder/embedder"
)

// WriteHTML renders an embedding report to path: a bar chart of per-group
// residual RMS and a scatter of per-point residuals.
func WriteHTML(path string, results []embedder.GroupResult) error {
	if len(results) == 0 {
		return fmt.Errorf("report: no group results to render")
	}

	names := make([]string, 0, len(results))
	rmsBars := make([]opts.BarData, 0, len(results))
	maxBars := make([]opts.BarData, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
		rmsBars = append(rmsBars, opts.BarData{Value: r.ResidualRMS})
		maxBars = append(maxBars, opts.BarData{Value: r.MaxError})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Embedding Report", Width: "900px", Height: "450px"}),
		charts.WithTitleOpts(opts.Title{Title: "Embedding residual by group", Subtitle: fmt.Sprintf("groups=%d", len(results))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "residual"}),
	)
	bar.SetXAxis(names)
	bar.AddSeries("RMS", rmsBars)
	bar.AddSeries("max", maxBars)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "450px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-point residuals"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "point index"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "residual"}),
	)
	for _, r := range results {
		data := make([]opts.ScatterData, 0, len(r.Residuals))
		for i, residual := range r.Residuals {
			data = append(data, opts.ScatterData{Value: []interface{}{i, residual}})
		}
		scatter.AddSeries(r.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	page := components.NewPage()
	page.SetPageTitle("Embedding Report")
	page.AddCharts(bar, scatter)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}
