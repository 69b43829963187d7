// Command report renders an HTML diagnostics report for a stored monitoring
// run: fused-object counts over time, per-identity presence, and pipeline
// counters.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/warren-data/habitat.report/internal/vision"
	"github.com/warren-data/habitat.report/internal/vision/storage/sqlite"
)

var (
	dbFile = flag.String("db", "habitat.db", "Path to the sqlite database")
	runID  = flag.String("run", "", "Run ID to report on (latest when empty)")
	out    = flag.String("out", "report.html", "Output HTML file")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	store, err := sqlite.Open(*dbFile)
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := pickRun(store, *runID)
	if err != nil {
		return err
	}

	series, err := store.StepSeries(info.RunID)
	if err != nil {
		return err
	}
	summaries, err := store.IdentitySummaries(info.RunID)
	if err != nil {
		return err
	}
	stats, err := store.Stats(info.RunID)
	if err != nil {
		log.Printf("no stored counters for run %s: %v", info.RunID, err)
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Habitat run %s", info.RunID)
	page.AddCharts(
		objectsChart(info, series),
		identitiesChart(summaries),
		countersChart(stats),
	)

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	log.Printf("wrote %s: run %s, %d steps, %d identities", *out, info.RunID, len(series), len(summaries))
	return nil
}

// pickRun resolves the requested run, defaulting to the most recent one.
func pickRun(store *sqlite.Store, runID string) (sqlite.RunInfo, error) {
	runs, err := store.Runs()
	if err != nil {
		return sqlite.RunInfo{}, err
	}
	if len(runs) == 0 {
		return sqlite.RunInfo{}, fmt.Errorf("no runs recorded in %s", *dbFile)
	}
	if runID == "" {
		return runs[0], nil
	}
	for _, info := range runs {
		if info.RunID == runID {
			return info, nil
		}
	}
	return sqlite.RunInfo{}, fmt.Errorf("run %s not found", runID)
}

// objectsChart draws fused-object count and mean confidence per step.
func objectsChart(info sqlite.RunInfo, series []sqlite.StepPoint) components.Charter {
	steps := make([]string, 0, len(series))
	objects := make([]opts.LineData, 0, len(series))
	confidence := make([]opts.LineData, 0, len(series))
	for _, p := range series {
		steps = append(steps, time.Unix(0, p.TSUnixNanos).UTC().Format("15:04:05.000"))
		objects = append(objects, opts.LineData{Value: p.Objects})
		confidence = append(confidence, opts.LineData{Value: p.MeanConfidence})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Fused objects per step",
			Subtitle: fmt.Sprintf("run=%s cameras=%v started=%s", info.RunID, info.Cameras, info.StartedAt.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "objects"}),
	)
	line.SetXAxis(steps).
		AddSeries("objects", objects).
		AddSeries("mean confidence", confidence)
	return line
}

// identitiesChart draws each identity's appearance count across the run.
func identitiesChart(summaries []sqlite.IdentitySummary) components.Charter {
	ids := make([]string, 0, len(summaries))
	appearances := make([]opts.BarData, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.GlobalID)
		appearances = append(appearances, opts.BarData{Value: s.Appearances})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Identity presence", Subtitle: "steps each identity appeared in"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(ids).AddSeries("appearances", appearances,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

// countersChart draws the pipeline's diagnostic counters.
func countersChart(stats vision.StatsSnapshot) components.Charter {
	names := []string{
		"frames buffered", "frames dropped", "frames purged",
		"synced sets", "sync failures", "steps", "identities", "reid matches",
	}
	values := []opts.BarData{
		{Value: stats.FramesBuffered},
		{Value: stats.FramesDropped},
		{Value: stats.FramesPurged},
		{Value: stats.SyncedSets},
		{Value: stats.SyncFailures},
		{Value: stats.StepsProcessed},
		{Value: stats.IdentitiesCreated},
		{Value: stats.ReIDMatches},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Pipeline counters",
			Subtitle: fmt.Sprintf("avg sync error %.1fms", stats.AvgSyncErrorMs),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("count", values)
	return bar
}
