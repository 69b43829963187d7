package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for pipeline tuning
// parameters. Fields are pointers so a partial JSON file only overrides the
// values it names; the Get* accessors supply defaults for the rest.
type TuningConfig struct {
	// Synchronizer params
	SyncToleranceMs *int `json:"sync_tolerance_ms,omitempty"`
	SyncBufferSize  *int `json:"sync_buffer_size,omitempty"`
	MaxFrameAgeMs   *int `json:"max_frame_age_ms,omitempty"`
	PollIntervalMs  *int `json:"poll_interval_ms,omitempty"`
	MinCameras      *int `json:"min_cameras,omitempty"`

	// Associator params
	IoUThreshold     *float64 `json:"iou_threshold,omitempty"`
	MinHits          *int     `json:"min_hits,omitempty"`
	MaxTrackAge      *int     `json:"max_track_age,omitempty"`
	TrajectoryLength *int     `json:"trajectory_length,omitempty"`

	// Fusion / re-identification params
	ReIDThreshold   *float64 `json:"reid_threshold,omitempty"`
	PrototypeKeep   *float64 `json:"prototype_keep,omitempty"`
	StepWaitTimeout *string  `json:"step_wait_timeout,omitempty"` // duration string like "250ms"
}

// Accessor defaults. Values mirror config/tuning.defaults.json.
const (
	defaultSyncToleranceMs  = 100
	defaultSyncBufferSize   = 30
	defaultMaxFrameAgeMs    = 2000
	defaultPollIntervalMs   = 10
	defaultMinCameras       = 1
	defaultIoUThreshold     = 0.3
	defaultMinHits          = 3
	defaultMaxTrackAge      = 30
	defaultTrajectoryLength = 50
	defaultReIDThreshold    = 0.7
	defaultPrototypeKeep    = 0.7
	defaultStepWaitTimeout  = 250 * time.Millisecond
)

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// GetSyncTolerance returns the synchronization tolerance.
func (c *TuningConfig) GetSyncTolerance() time.Duration {
	if c != nil && c.SyncToleranceMs != nil {
		return time.Duration(*c.SyncToleranceMs) * time.Millisecond
	}
	return defaultSyncToleranceMs * time.Millisecond
}

// GetSyncBufferSize returns the per-camera frame buffer capacity.
func (c *TuningConfig) GetSyncBufferSize() int {
	if c != nil && c.SyncBufferSize != nil {
		return *c.SyncBufferSize
	}
	return defaultSyncBufferSize
}

// GetMaxFrameAge returns the age past which buffered frames are purged.
func (c *TuningConfig) GetMaxFrameAge() time.Duration {
	if c != nil && c.MaxFrameAgeMs != nil {
		return time.Duration(*c.MaxFrameAgeMs) * time.Millisecond
	}
	return defaultMaxFrameAgeMs * time.Millisecond
}

// GetPollInterval returns the blocking-wait poll interval.
func (c *TuningConfig) GetPollInterval() time.Duration {
	if c != nil && c.PollIntervalMs != nil {
		return time.Duration(*c.PollIntervalMs) * time.Millisecond
	}
	return defaultPollIntervalMs * time.Millisecond
}

// GetMinCameras returns the minimum camera count for a blocking wait.
func (c *TuningConfig) GetMinCameras() int {
	if c != nil && c.MinCameras != nil {
		return *c.MinCameras
	}
	return defaultMinCameras
}

// GetIoUThreshold returns the minimum IoU for a track/detection match.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c != nil && c.IoUThreshold != nil {
		return *c.IoUThreshold
	}
	return defaultIoUThreshold
}

// GetMinHits returns the detections needed to confirm a track.
func (c *TuningConfig) GetMinHits() int {
	if c != nil && c.MinHits != nil {
		return *c.MinHits
	}
	return defaultMinHits
}

// GetMaxTrackAge returns the missed-step count that evicts a track.
func (c *TuningConfig) GetMaxTrackAge() int {
	if c != nil && c.MaxTrackAge != nil {
		return *c.MaxTrackAge
	}
	return defaultMaxTrackAge
}

// GetTrajectoryLength returns the bounded track history length.
func (c *TuningConfig) GetTrajectoryLength() int {
	if c != nil && c.TrajectoryLength != nil {
		return *c.TrajectoryLength
	}
	return defaultTrajectoryLength
}

// GetReIDThreshold returns the cosine similarity needed to re-identify.
func (c *TuningConfig) GetReIDThreshold() float64 {
	if c != nil && c.ReIDThreshold != nil {
		return *c.ReIDThreshold
	}
	return defaultReIDThreshold
}

// GetPrototypeKeep returns the EMA weight kept on the existing prototype.
func (c *TuningConfig) GetPrototypeKeep() float64 {
	if c != nil && c.PrototypeKeep != nil {
		return *c.PrototypeKeep
	}
	return defaultPrototypeKeep
}

// GetStepWaitTimeout returns the bounded wait for one synchronized step.
func (c *TuningConfig) GetStepWaitTimeout() time.Duration {
	if c != nil && c.StepWaitTimeout != nil {
		if d, err := time.ParseDuration(*c.StepWaitTimeout); err == nil {
			return d
		}
	}
	return defaultStepWaitTimeout
}

// Validate checks that explicitly set values are within operating ranges.
func (c *TuningConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.SyncToleranceMs != nil && *c.SyncToleranceMs <= 0 {
		return fmt.Errorf("sync_tolerance_ms must be positive, got %d", *c.SyncToleranceMs)
	}
	if c.SyncBufferSize != nil && *c.SyncBufferSize < 1 {
		return fmt.Errorf("sync_buffer_size must be >= 1, got %d", *c.SyncBufferSize)
	}
	if c.MaxFrameAgeMs != nil && *c.MaxFrameAgeMs <= 0 {
		return fmt.Errorf("max_frame_age_ms must be positive, got %d", *c.MaxFrameAgeMs)
	}
	if c.PollIntervalMs != nil && *c.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", *c.PollIntervalMs)
	}
	if c.MinCameras != nil && *c.MinCameras < 0 {
		return fmt.Errorf("min_cameras must be >= 0, got %d", *c.MinCameras)
	}
	if c.IoUThreshold != nil && (*c.IoUThreshold < 0 || *c.IoUThreshold > 1) {
		return fmt.Errorf("iou_threshold must be in [0,1], got %v", *c.IoUThreshold)
	}
	if c.MinHits != nil && *c.MinHits < 1 {
		return fmt.Errorf("min_hits must be >= 1, got %d", *c.MinHits)
	}
	if c.MaxTrackAge != nil && *c.MaxTrackAge < 1 {
		return fmt.Errorf("max_track_age must be >= 1, got %d", *c.MaxTrackAge)
	}
	if c.TrajectoryLength != nil && *c.TrajectoryLength < 1 {
		return fmt.Errorf("trajectory_length must be >= 1, got %d", *c.TrajectoryLength)
	}
	if c.ReIDThreshold != nil && (*c.ReIDThreshold < -1 || *c.ReIDThreshold > 1) {
		return fmt.Errorf("reid_threshold must be in [-1,1], got %v", *c.ReIDThreshold)
	}
	if c.PrototypeKeep != nil && (*c.PrototypeKeep < 0 || *c.PrototypeKeep > 1) {
		return fmt.Errorf("prototype_keep must be in [0,1], got %v", *c.PrototypeKeep)
	}
	if c.StepWaitTimeout != nil {
		if _, err := time.ParseDuration(*c.StepWaitTimeout); err != nil {
			return fmt.Errorf("step_wait_timeout is not a valid duration: %w", err)
		}
	}
	return nil
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the JSON file retain their default values, so partial configs are
// safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
