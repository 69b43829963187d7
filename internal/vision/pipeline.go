package vision

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/warren-data/habitat.report/internal/monitoring"
	"github.com/warren-data/habitat.report/internal/timeutil"
)

// PipelineConfig holds configuration for the step driver.
type PipelineConfig struct {
	Sync       SyncConfig
	Associator AssociatorConfig
	Resolver   ResolverConfig

	// StepWaitTimeout bounds the blocking wait for one synchronized set.
	StepWaitTimeout time.Duration
	// MinCameras is the camera count WaitSyncedSet aims for before the
	// soft deadline; 0 means all registered cameras.
	MinCameras int
}

// DefaultPipelineConfig returns default pipeline configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Sync:            DefaultSyncConfig(),
		Associator:      DefaultAssociatorConfig(),
		Resolver:        DefaultResolverConfig(),
		StepWaitTimeout: 250 * time.Millisecond,
		MinCameras:      1,
	}
}

// Pipeline wires the synchronizer, the external detector, the per-camera
// associators and the fusion resolver into one stage, consumed once per
// synchronized time-step. Capture threads feed the synchronizer
// concurrently; everything downstream of it runs on the single goroutine
// that calls Step.
type Pipeline struct {
	cfg      PipelineConfig
	clock    timeutil.Clock
	sync     *Synchronizer
	detector Detector
	resolver *Resolver
	behavior BehaviorClassifier
	stats    *PipelineStats

	associators map[string]*Associator
}

// NewPipeline builds a pipeline around an external detector and an injected
// identity registry. behavior may be nil when no downstream classifier is
// attached.
func NewPipeline(cfg PipelineConfig, detector Detector, registry *IdentityRegistry, behavior BehaviorClassifier, clock timeutil.Clock) (*Pipeline, error) {
	if detector == nil {
		return nil, fmt.Errorf("pipeline requires a detector")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.StepWaitTimeout <= 0 {
		cfg.StepWaitTimeout = DefaultPipelineConfig().StepWaitTimeout
	}
	stats := NewPipelineStats()
	return &Pipeline{
		cfg:         cfg,
		clock:       clock,
		sync:        NewSynchronizer(cfg.Sync, clock, stats),
		detector:    detector,
		resolver:    NewResolver(cfg.Resolver, registry, stats),
		behavior:    behavior,
		stats:       stats,
		associators: make(map[string]*Associator),
	}, nil
}

// Synchronizer returns the frame intake for capture threads.
func (p *Pipeline) Synchronizer() *Synchronizer { return p.sync }

// Registry returns the identity registry behind the resolver.
func (p *Pipeline) Registry() *IdentityRegistry { return p.resolver.Registry() }

// Stats returns a snapshot of the diagnostic counters.
func (p *Pipeline) Stats() StatsSnapshot { return p.stats.Snapshot() }

// RegisterCamera registers a camera with the synchronizer ahead of its
// first frame.
func (p *Pipeline) RegisterCamera(cameraID string) {
	p.sync.Register(cameraID)
}

// associator returns (creating on first use) the camera's associator.
func (p *Pipeline) associator(cameraID string) *Associator {
	a, ok := p.associators[cameraID]
	if !ok {
		a = NewAssociator(cameraID, p.cfg.Associator)
		p.associators[cameraID] = a
	}
	return a
}

// Step runs one synchronized time-step: wait for a synchronized set, detect
// per frame, associate per camera, then fuse across cameras. An empty set
// at the soft deadline yields an empty result, not an error. Detector
// failures and invalid detection geometry abort the step.
func (p *Pipeline) Step(ctx context.Context) ([]FusedObject, error) {
	set := p.sync.WaitSyncedSet(ctx, nil, p.cfg.StepWaitTimeout, p.cfg.MinCameras)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, nil
	}

	// Step timestamp: latest member of the set.
	var stepTS time.Time
	for _, frame := range set {
		if frame.Timestamp.After(stepTS) {
			stepTS = frame.Timestamp
		}
	}

	confirmed := make(map[string][]*LocalTrack, len(set))
	for _, cam := range sortedKeys(set) {
		frame := set[cam]
		detections, err := p.detector.Detect(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("detect on camera %s: %w", cam, err)
		}
		tracks, err := p.associator(cam).Update(detections)
		if err != nil {
			return nil, fmt.Errorf("associate on camera %s: %w", cam, err)
		}
		confirmed[cam] = tracks
	}

	fused := p.resolver.Resolve(confirmed, stepTS)
	p.stats.AddStep()

	if p.behavior != nil && len(fused) > 0 {
		if err := p.behavior.Observe(ctx, stepTS, fused); err != nil {
			monitoring.Logf("behavior classifier rejected step at %s: %v", stepTS.Format(time.RFC3339Nano), err)
		}
	}
	return fused, nil
}

// Run executes steps until ctx is cancelled. The pipeline only stops
// between steps; no step suspends beyond the bounded synchronizer wait.
func (p *Pipeline) Run(ctx context.Context, onStep func([]FusedObject)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		fused, err := p.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if onStep != nil {
			onStep(fused)
		}
	}
}

func sortedKeys(set map[string]Frame) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
