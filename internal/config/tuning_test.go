package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetSyncTolerance(); got != 100*time.Millisecond {
		t.Errorf("GetSyncTolerance() = %v, want 100ms", got)
	}
	if got := cfg.GetSyncBufferSize(); got != 30 {
		t.Errorf("GetSyncBufferSize() = %d, want 30", got)
	}
	if got := cfg.GetMaxFrameAge(); got != 2*time.Second {
		t.Errorf("GetMaxFrameAge() = %v, want 2s", got)
	}
	if got := cfg.GetPollInterval(); got != 10*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 10ms", got)
	}
	if got := cfg.GetIoUThreshold(); got != 0.3 {
		t.Errorf("GetIoUThreshold() = %v, want 0.3", got)
	}
	if got := cfg.GetMinHits(); got != 3 {
		t.Errorf("GetMinHits() = %d, want 3", got)
	}
	if got := cfg.GetMaxTrackAge(); got != 30 {
		t.Errorf("GetMaxTrackAge() = %d, want 30", got)
	}
	if got := cfg.GetTrajectoryLength(); got != 50 {
		t.Errorf("GetTrajectoryLength() = %d, want 50", got)
	}
	if got := cfg.GetReIDThreshold(); got != 0.7 {
		t.Errorf("GetReIDThreshold() = %v, want 0.7", got)
	}
	if got := cfg.GetPrototypeKeep(); got != 0.7 {
		t.Errorf("GetPrototypeKeep() = %v, want 0.7", got)
	}
}

func TestNilConfigDefaults(t *testing.T) {
	var cfg *TuningConfig

	if got := cfg.GetSyncTolerance(); got != 100*time.Millisecond {
		t.Errorf("nil config GetSyncTolerance() = %v, want 100ms", got)
	}
	if got := cfg.GetMinCameras(); got != 1 {
		t.Errorf("nil config GetMinCameras() = %d, want 1", got)
	}
}

func TestOverridesApply(t *testing.T) {
	cfg := &TuningConfig{
		SyncToleranceMs: ptrInt(50),
		IoUThreshold:    ptrFloat64(0.5),
		StepWaitTimeout: ptrString("1s"),
	}

	if got := cfg.GetSyncTolerance(); got != 50*time.Millisecond {
		t.Errorf("GetSyncTolerance() = %v, want 50ms", got)
	}
	if got := cfg.GetIoUThreshold(); got != 0.5 {
		t.Errorf("GetIoUThreshold() = %v, want 0.5", got)
	}
	if got := cfg.GetStepWaitTimeout(); got != time.Second {
		t.Errorf("GetStepWaitTimeout() = %v, want 1s", got)
	}
	// Untouched fields still fall back.
	if got := cfg.GetMinHits(); got != 3 {
		t.Errorf("GetMinHits() = %d, want default 3", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{"empty", EmptyTuningConfig(), false},
		{"valid overrides", &TuningConfig{SyncToleranceMs: ptrInt(80), MinHits: ptrInt(5)}, false},
		{"zero tolerance", &TuningConfig{SyncToleranceMs: ptrInt(0)}, true},
		{"negative buffer", &TuningConfig{SyncBufferSize: ptrInt(-1)}, true},
		{"iou above one", &TuningConfig{IoUThreshold: ptrFloat64(1.5)}, true},
		{"zero min hits", &TuningConfig{MinHits: ptrInt(0)}, true},
		{"reid below minus one", &TuningConfig{ReIDThreshold: ptrFloat64(-2)}, true},
		{"prototype keep above one", &TuningConfig{PrototypeKeep: ptrFloat64(1.1)}, true},
		{"bad duration", &TuningConfig{StepWaitTimeout: ptrString("soon")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	body := `{"sync_tolerance_ms": 75, "reid_threshold": 0.6}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	if got := cfg.GetSyncTolerance(); got != 75*time.Millisecond {
		t.Errorf("GetSyncTolerance() = %v, want 75ms", got)
	}
	if got := cfg.GetReIDThreshold(); got != 0.6 {
		t.Errorf("GetReIDThreshold() = %v, want 0.6", got)
	}
	if got := cfg.GetMaxTrackAge(); got != 30 {
		t.Errorf("GetMaxTrackAge() = %d, want default 30", got)
	}
}

func TestLoadTuningConfigRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadTuningConfig(filepath.Join(dir, "tuning.yaml")); err == nil {
		t.Error("expected error for non-JSON extension")
	}

	if _, err := LoadTuningConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"sync_tolerance_ms": -5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(bad); err == nil {
		t.Error("expected validation error for negative tolerance")
	}
}
