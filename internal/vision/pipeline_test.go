package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warren-data/habitat.report/internal/testutil"
	"github.com/warren-data/habitat.report/internal/timeutil"
)

// scriptedDetector returns a fixed detection list per camera.
type scriptedDetector struct {
	byCamera map[string][]Detection
	err      error
}

func (d *scriptedDetector) Detect(_ context.Context, frame Frame) ([]Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.byCamera[frame.CameraID], nil
}

// recordingClassifier captures every Observe call.
type recordingClassifier struct {
	steps [][]FusedObject
	err   error
}

func (c *recordingClassifier) Observe(_ context.Context, _ time.Time, objs []FusedObject) error {
	c.steps = append(c.steps, objs)
	return c.err
}

func testPipelineConfig() PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.Associator.MinHits = 1
	cfg.MinCameras = 0
	return cfg
}

func TestPipelineStepEndToEnd(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(base)
	emb := testutil.UnitEmbedding(32, 7)

	detector := &scriptedDetector{byCamera: map[string][]Detection{
		"cam-a": {{CameraID: "cam-a", Box: BBox{X1: 100, Y1: 100, X2: 200, Y2: 200}, Confidence: 0.9, Embedding: emb}},
		"cam-b": {{CameraID: "cam-b", Box: BBox{X1: 400, Y1: 100, X2: 500, Y2: 200}, Confidence: 0.88, Embedding: testutil.PerturbEmbedding(emb, 0.05, 9)}},
	}}
	classifier := &recordingClassifier{}

	p, err := NewPipeline(testPipelineConfig(), detector, nil, classifier, clock)
	require.NoError(t, err)
	p.RegisterCamera("cam-a")
	p.RegisterCamera("cam-b")

	// First step: tracks are born tentative, nothing is fused yet.
	p.Synchronizer().Push("cam-a", nil, base)
	p.Synchronizer().Push("cam-b", nil, base.Add(20*time.Millisecond))
	fused, err := p.Step(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fused)

	// Second step confirms both tracks and fuses them into one identity.
	next := base.Add(33 * time.Millisecond)
	p.Synchronizer().Push("cam-a", nil, next)
	p.Synchronizer().Push("cam-b", nil, next.Add(20*time.Millisecond))
	fused, err = p.Step(context.Background())
	require.NoError(t, err)

	require.Len(t, fused, 1)
	assert.Equal(t, "F0", fused[0].GlobalID)
	assert.Len(t, fused[0].Members, 2)
	assert.InDelta(t, 0.979, float64(fused[0].AggregateConfidence), 1e-3)

	require.Len(t, classifier.steps, 1)
	assert.Len(t, classifier.steps[0], 1)

	snap := p.Stats()
	assert.Equal(t, int64(2), snap.StepsProcessed)
	assert.Equal(t, int64(1), snap.IdentitiesCreated)
	assert.Equal(t, int64(1), snap.ReIDMatches)
	assert.Equal(t, int64(4), snap.FramesBuffered)
}

func TestPipelineRequiresDetector(t *testing.T) {
	_, err := NewPipeline(DefaultPipelineConfig(), nil, nil, nil, nil)
	require.Error(t, err)
}

func TestPipelineStepWithNoFramesIsEmpty(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	p, err := NewPipeline(testPipelineConfig(), &scriptedDetector{}, nil, nil, clock)
	require.NoError(t, err)

	fused, err := p.Step(context.Background())
	require.NoError(t, err)
	assert.Nil(t, fused)
}

func TestPipelineStepPropagatesDetectorError(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(base)
	detErr := errors.New("inference backend unavailable")
	p, err := NewPipeline(testPipelineConfig(), &scriptedDetector{err: detErr}, nil, nil, clock)
	require.NoError(t, err)

	p.Synchronizer().Push("cam-a", nil, base)
	_, err = p.Step(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, detErr))
}

func TestPipelineClassifierErrorIsNonFatal(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(base)
	detector := &scriptedDetector{byCamera: map[string][]Detection{
		"cam-a": {{CameraID: "cam-a", Box: BBox{X1: 0, Y1: 0, X2: 50, Y2: 50}, Confidence: 0.9}},
	}}
	classifier := &recordingClassifier{err: errors.New("model cold")}

	p, err := NewPipeline(testPipelineConfig(), detector, nil, classifier, clock)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		p.Synchronizer().Push("cam-a", nil, base.Add(time.Duration(i)*33*time.Millisecond))
		_, err = p.Step(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, classifier.steps, 1)
}

func TestPipelineRunStopsOnCancel(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(base)
	p, err := NewPipeline(testPipelineConfig(), &scriptedDetector{}, nil, nil, clock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	err = p.Run(ctx, func([]FusedObject) {
		steps++
		if steps >= 3 {
			cancel()
		}
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 3, steps)
}

func TestPipelineSharesInjectedRegistry(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(base)
	registry := NewIdentityRegistry()
	detector := &scriptedDetector{byCamera: map[string][]Detection{
		"cam-a": {{CameraID: "cam-a", Box: BBox{X1: 0, Y1: 0, X2: 50, Y2: 50}, Confidence: 0.9}},
	}}

	p, err := NewPipeline(testPipelineConfig(), detector, registry, nil, clock)
	require.NoError(t, err)
	assert.Same(t, registry, p.Registry())

	for i := 0; i < 2; i++ {
		p.Synchronizer().Push("cam-a", nil, base.Add(time.Duration(i)*33*time.Millisecond))
		_, err = p.Step(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, registry.Len())
}
