package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/warren-data/habitat.report/internal/vision"
)

func fusedAt(globalID string, ts time.Time, cameraID string, x float32, conf float32) vision.FusedObject {
	track := &vision.LocalTrack{
		LocalID:    1,
		CameraID:   cameraID,
		Box:        vision.BBox{X1: x, Y1: 100, X2: x + 100, Y2: 200},
		Confidence: conf,
		State:      vision.TrackConfirmed,
	}
	return vision.FusedObject{
		GlobalID:  globalID,
		Members:   []vision.TrackRef{{CameraID: cameraID, Track: track}},
		Timestamp: ts,
	}
}

func TestSampleIgnoredWhenDisabled(t *testing.T) {
	tp := NewTrackPlotter()
	tp.Sample([]vision.FusedObject{fusedAt("F0", time.Now(), "cam-a", 0, 0.9)})
	if len(tp.samples) != 0 {
		t.Errorf("samples recorded while disabled: %d", len(tp.samples))
	}
}

func TestGeneratePlotsWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	tp := NewTrackPlotter()
	if err := tp.Start(dir); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * 33 * time.Millisecond)
		tp.Sample([]vision.FusedObject{
			fusedAt("F0", ts, "cam-a", float32(i)*10, 0.9),
			fusedAt("F1", ts, "cam-b", float32(i)*5, 0.8),
		})
	}
	tp.Stop()

	files, err := tp.GeneratePlots()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("generated %d files, want 3 (two paths, one confidence)", len(files))
	}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			t.Errorf("missing output %s: %v", file, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("empty output %s", file)
		}
	}
}

func TestGeneratePlotsWithoutStart(t *testing.T) {
	tp := NewTrackPlotter()
	if _, err := tp.GeneratePlots(); err == nil {
		t.Fatal("expected error before Start")
	}
}
