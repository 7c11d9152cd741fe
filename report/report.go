// Package report renders an HTML overview of the backed up activities
// from the metadata artifacts in the backup directory. It is fully
// offline: nothing here touches the network.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cli/browser"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	json "github.com/goccy/go-json"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/corosback/logging"
	"github.com/corosback/models"
)

// DefaultFileName is the report written into the backup directory.
const DefaultFileName = "corosback_report.html"

// Generate reads every *-metadata.json artifact under dir and writes an
// HTML report to outPath with a distance-over-time chart and an
// activities-by-sport chart.
func Generate(dir, outPath string) error {
	metas, err := loadMetadata(dir)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		return fmt.Errorf("no backed up activities found in %s", dir)
	}

	page := components.NewPage()
	page.SetPageTitle("COROS activity backup")
	page.AddCharts(distanceChart(metas), sportChart(metas))

	f, err := os.Create(outPath)
	if err != nil {
		return &models.FSError{Path: outPath, Err: err}
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	logging.Info().Int("activities", len(metas)).Str("path", outPath).Msg("report generated")
	return nil
}

// Open launches the generated report in the default browser.
func Open(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return browser.OpenURL("file://" + abs)
}

// loadMetadata decodes the metadata artifacts in dir, oldest first.
// Unreadable files are skipped with a warning rather than failing the
// whole report.
func loadMetadata(dir string) ([]models.Metadata, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*-metadata.json"))
	if err != nil {
		return nil, err
	}

	metas := make([]models.Metadata, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Warn().Str("path", path).Err(err).Msg("skipping unreadable metadata file")
			continue
		}
		var meta models.Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			logging.Warn().Str("path", path).Err(err).Msg("skipping undecodable metadata file")
			continue
		}
		metas = append(metas, meta)
	}

	// RFC3339 timestamps sort correctly as strings.
	sort.Slice(metas, func(i, j int) bool { return metas[i].StartTime < metas[j].StartTime })
	return metas, nil
}

func distanceChart(metas []models.Metadata) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "macarons"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Distance Over Time",
			Subtitle: "Kilometers per activity",
		}),
	)

	xAxis := make([]string, len(metas))
	items := make([]opts.LineData, len(metas))
	for i, meta := range metas {
		xAxis[i] = dateOf(meta.StartTime)
		items[i] = opts.LineData{Value: meta.DistanceMeters / 1000}
	}

	line.SetXAxis(xAxis)
	line.AddSeries("Distance (km)", items)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func sportChart(metas []models.Metadata) *charts.Bar {
	counts := make(map[string]int)
	for _, meta := range metas {
		counts[meta.Sport]++
	}

	sports := make([]string, 0, len(counts))
	for sport := range counts {
		sports = append(sports, sport)
	}
	sort.Strings(sports)

	title := cases.Title(language.English)
	xAxis := make([]string, len(sports))
	items := make([]opts.BarData, len(sports))
	for i, sport := range sports {
		xAxis[i] = title.String(sport)
		items[i] = opts.BarData{Value: counts[sport]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "macarons"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Activities By Sport",
			Subtitle: "Backed up activity count",
		}),
	)
	bar.SetXAxis(xAxis)
	bar.AddSeries("Activities", items)
	return bar
}

// dateOf trims an RFC3339 timestamp down to its date part.
func dateOf(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
