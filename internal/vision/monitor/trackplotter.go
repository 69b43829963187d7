// Package monitor renders offline diagnostics for monitoring runs.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/warren-data/habitat.report/internal/vision"
)

// TrackPlotter records fused-object positions over time for visualization.
// It samples the pipeline's output on each call to Sample(), accumulating
// per-identity time series that can be plotted after a run.
type TrackPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	// samples holds per-identity time series. Key = global ID.
	samples map[string][]TrackSample

	startTime time.Time
	stepIdx   int
}

// TrackSample is one member track's state at one synchronized step.
type TrackSample struct {
	StepIdx    int
	Timestamp  time.Time
	CameraID   string
	LocalID    int64
	CenterX    float64
	CenterY    float64
	Confidence float64
}

// NewTrackPlotter creates a plotter. Call Start before sampling.
func NewTrackPlotter() *TrackPlotter {
	return &TrackPlotter{samples: make(map[string][]TrackSample)}
}

// Start initializes the plotter for a new run and creates outputDir.
func (tp *TrackPlotter) Start(outputDir string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tp.outputDir = outputDir
	tp.enabled = true
	tp.startTime = time.Time{}
	tp.stepIdx = 0
	tp.samples = make(map[string][]TrackSample)
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (tp *TrackPlotter) Stop() {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (tp *TrackPlotter) IsEnabled() bool {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.enabled
}

// Sample captures one synchronized step's fused objects. Call once per step.
func (tp *TrackPlotter) Sample(objects []vision.FusedObject) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.enabled || len(objects) == 0 {
		return
	}
	if tp.startTime.IsZero() {
		tp.startTime = objects[0].Timestamp
	}
	tp.stepIdx++

	for _, obj := range objects {
		for _, m := range obj.Members {
			center := m.Track.Box.Center()
			tp.samples[obj.GlobalID] = append(tp.samples[obj.GlobalID], TrackSample{
				StepIdx:    tp.stepIdx,
				Timestamp:  obj.Timestamp,
				CameraID:   m.CameraID,
				LocalID:    m.Track.LocalID,
				CenterX:    float64(center.X),
				CenterY:    float64(center.Y),
				Confidence: float64(m.Track.Confidence),
			})
		}
	}
}

// GeneratePlots writes one path plot per identity plus a combined confidence
// plot, and returns the written file paths.
func (tp *TrackPlotter) GeneratePlots() ([]string, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.outputDir == "" {
		return nil, fmt.Errorf("plotter not started")
	}

	ids := make([]string, 0, len(tp.samples))
	for id := range tp.samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var files []string
	for _, id := range ids {
		file, err := tp.plotPaths(id, tp.samples[id])
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}

	if len(ids) > 0 {
		file, err := tp.plotConfidence(ids)
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}

// plotPaths draws an identity's box-center path, one line per camera view.
// The y axis is inverted to match image coordinates.
func (tp *TrackPlotter) plotPaths(globalID string, samples []TrackSample) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Identity %s path", globalID)
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px, image down)"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Legend.Top = true

	byCamera := make(map[string]plotter.XYs)
	for _, s := range samples {
		byCamera[s.CameraID] = append(byCamera[s.CameraID], plotter.XY{X: s.CenterX, Y: s.CenterY})
	}

	cameras := make([]string, 0, len(byCamera))
	for cam := range byCamera {
		cameras = append(cameras, cam)
	}
	sort.Strings(cameras)

	for i, cam := range cameras {
		line, err := plotter.NewLine(byCamera[cam])
		if err != nil {
			return "", fmt.Errorf("path line for %s/%s: %w", globalID, cam, err)
		}
		line.Width = vg.Points(1)
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(cam, line)
	}

	file := filepath.Join(tp.outputDir, fmt.Sprintf("identity_%s_path.png", globalID))
	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save path plot for %s: %w", globalID, err)
	}
	return file, nil
}

// plotConfidence draws every identity's member confidence over steps.
func (tp *TrackPlotter) plotConfidence(ids []string) (string, error) {
	p := plot.New()
	p.Title.Text = "Member confidence per step"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "confidence"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Legend.Top = true

	for i, id := range ids {
		pts := make(plotter.XYs, 0, len(tp.samples[id]))
		for _, s := range tp.samples[id] {
			pts = append(pts, plotter.XY{X: float64(s.StepIdx), Y: s.Confidence})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("confidence line for %s: %w", id, err)
		}
		line.Width = vg.Points(1)
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(id, line)
	}

	file := filepath.Join(tp.outputDir, "confidence.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save confidence plot: %w", err)
	}
	return file, nil
}
