package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/scaffoldtools/dataembedder/embedder"
)

// WriteResidualPlots writes one PNG per group into dir, plotting the
// per-point residual against embedding order. Groups with no residuals are
// skipped. Returns the files written.
func WriteResidualPlots(dir string, results []embedder.GroupResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("report: create plot dir: %w", err)
	}

	var files []string
	for _, r := range results {
		if len(r.Residuals) == 0 {
			continue
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s residuals (RMS %.3g)", r.Name, r.ResidualRMS)
		p.X.Label.Text = "point"
		p.Y.Label.Text = "residual"

		pts := make(plotter.XYs, 0, len(r.Residuals))
		for i, residual := range r.Residuals {
			pts = append(pts, plotter.XY{X: float64(i), Y: residual})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return files, fmt.Errorf("report: plot %s: %w", r.Name, err)
		}
		line.Width = vg.Points(1)
		p.Add(line)

		file := filepath.Join(dir, fmt.Sprintf("residuals_%s.png", safeFileName(r.Name)))
		if err := p.Save(8*vg.Inch, 4*vg.Inch, file); err != nil {
			return files, fmt.Errorf("report: save %s: %w", file, err)
		}
		files = append(files, file)
	}
	return files, nil
}

// safeFileName replaces path-hostile characters in a group name.
func safeFileName(name string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_")
	return replacer.Replace(name)
}
