package vision

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warren-data/habitat.report/internal/timeutil"
)

// SyncConfig holds configuration for the frame synchronizer.
type SyncConfig struct {
	BufferSize   int           // Frames retained per camera
	Tolerance    time.Duration // Max |frame ts − reference ts| for inclusion
	MaxFrameAge  time.Duration // Frames older than this are purged on push
	PollInterval time.Duration // Poll period for WaitSyncedSet
}

// DefaultSyncConfig returns default synchronizer configuration.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		BufferSize:   30,
		Tolerance:    100 * time.Millisecond,
		MaxFrameAge:  2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

// frameRing is a fixed-capacity ring of frames ordered by insertion. Each
// ring has its own mutex so a capture thread's Push only contends with reads
// of the same camera, and only for the duration of a slot write.
type frameRing struct {
	mu       sync.Mutex
	slots    []Frame
	head     int // index of oldest frame
	count    int
	sequence uint64
}

func newFrameRing(capacity int) *frameRing {
	if capacity < 1 {
		capacity = 1
	}
	return &frameRing{slots: make([]Frame, capacity)}
}

// push appends a frame, evicting the oldest slot when full. Returns the
// number of frames discarded by the max-age purge and whether an overflow
// eviction happened.
func (r *frameRing) push(cameraID string, payload Payload, ts time.Time, cutoff time.Time) (purged int, dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Lazy purge of frames past max age.
	for r.count > 0 && r.slots[r.head].Timestamp.Before(cutoff) {
		r.head = (r.head + 1) % len(r.slots)
		r.count--
		purged++
	}

	if r.count == len(r.slots) {
		r.head = (r.head + 1) % len(r.slots)
		r.count--
		dropped = true
	}

	r.sequence++
	idx := (r.head + r.count) % len(r.slots)
	r.slots[idx] = Frame{
		CameraID:  cameraID,
		Timestamp: ts,
		Sequence:  r.sequence,
		Payload:   payload,
	}
	r.count++
	return purged, dropped
}

// latest returns the most recent frame's timestamp.
func (r *frameRing) latest() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return time.Time{}, false
	}
	idx := (r.head + r.count - 1) % len(r.slots)
	return r.slots[idx].Timestamp, true
}

// closest returns the buffered frame with minimum |ts − ref|.
func (r *frameRing) closest(ref time.Time) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return Frame{}, false
	}
	var best Frame
	bestDist := time.Duration(1<<63 - 1)
	for i := 0; i < r.count; i++ {
		f := r.slots[(r.head+i)%len(r.slots)]
		dist := f.Timestamp.Sub(ref)
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			best = f
		}
	}
	return best, true
}

func (r *frameRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Synchronizer aligns frames arriving from independent, jitter-prone camera
// streams onto a common timeline. Capture threads push concurrently, one per
// camera; a single consumer drains synchronized sets. Push never blocks
// beyond a short slot-write critical section.
type Synchronizer struct {
	cfg   SyncConfig
	clock timeutil.Clock
	stats *PipelineStats

	mu      sync.RWMutex // guards the buffers map, not the rings
	buffers map[string]*frameRing
}

// NewSynchronizer creates a synchronizer. A nil clock uses wall time; a nil
// stats sink allocates a private one.
func NewSynchronizer(cfg SyncConfig, clock timeutil.Clock, stats *PipelineStats) *Synchronizer {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultSyncConfig().BufferSize
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultSyncConfig().Tolerance
	}
	if cfg.MaxFrameAge <= 0 {
		cfg.MaxFrameAge = DefaultSyncConfig().MaxFrameAge
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultSyncConfig().PollInterval
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if stats == nil {
		stats = NewPipelineStats()
	}
	return &Synchronizer{
		cfg:     cfg,
		clock:   clock,
		stats:   stats,
		buffers: make(map[string]*frameRing),
	}
}

// Register creates the camera's buffer if it does not exist yet.
// Registering the same camera twice is a no-op.
func (s *Synchronizer) Register(cameraID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buffers[cameraID]; !ok {
		s.buffers[cameraID] = newFrameRing(s.cfg.BufferSize)
	}
}

// Cameras returns the registered camera IDs in ascending order.
func (s *Synchronizer) Cameras() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BufferLen returns the number of frames currently buffered for a camera.
func (s *Synchronizer) BufferLen(cameraID string) int {
	s.mu.RLock()
	ring := s.buffers[cameraID]
	s.mu.RUnlock()
	if ring == nil {
		return 0
	}
	return ring.len()
}

// Push inserts a frame into the camera's buffer, registering the camera on
// first use. It never blocks: the oldest frame is evicted on overflow, and
// frames past max age are purged lazily. Overflow and purges are surfaced
// only through counters.
func (s *Synchronizer) Push(cameraID string, payload Payload, ts time.Time) {
	s.mu.RLock()
	ring := s.buffers[cameraID]
	s.mu.RUnlock()
	if ring == nil {
		s.Register(cameraID)
		s.mu.RLock()
		ring = s.buffers[cameraID]
		s.mu.RUnlock()
	}

	cutoff := s.clock.Now().Add(-s.cfg.MaxFrameAge)
	purged, dropped := ring.push(cameraID, payload, ts, cutoff)

	s.stats.AddFrame()
	if purged > 0 {
		s.stats.AddPurged(purged)
	}
	if dropped {
		s.stats.AddDropped()
	}
}

// referenceTimestamp returns the minimum over each requested camera's most
// recent frame timestamp. Taking the minimum guarantees every camera has at
// least caught up to the reference instant, so a stalled camera can never
// starve the others by dragging the reference into its future.
func (s *Synchronizer) referenceTimestamp(cameraIDs []string) (time.Time, bool) {
	var ref time.Time
	found := false
	for _, id := range cameraIDs {
		s.mu.RLock()
		ring := s.buffers[id]
		s.mu.RUnlock()
		if ring == nil {
			continue
		}
		ts, ok := ring.latest()
		if !ok {
			continue
		}
		if !found || ts.Before(ref) {
			ref = ts
			found = true
		}
	}
	return ref, found
}

// SyncedSet returns one frame per camera, each within tolerance of the
// reference timestamp. Cameras with no frame, or whose closest frame is out
// of tolerance, are omitted; partial results are valid and expected. A nil
// cameraIDs slice means all registered cameras. A non-positive tolerance
// uses the configured default.
func (s *Synchronizer) SyncedSet(cameraIDs []string, tolerance time.Duration) map[string]Frame {
	if cameraIDs == nil {
		cameraIDs = s.Cameras()
	}
	if tolerance <= 0 {
		tolerance = s.cfg.Tolerance
	}

	set := make(map[string]Frame)
	ref, ok := s.referenceTimestamp(cameraIDs)
	if !ok {
		return set
	}

	var errSumMs float64
	for _, id := range cameraIDs {
		s.mu.RLock()
		ring := s.buffers[id]
		s.mu.RUnlock()
		if ring == nil {
			continue
		}
		frame, ok := ring.closest(ref)
		if !ok {
			continue
		}
		dist := frame.Timestamp.Sub(ref)
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolerance {
			set[id] = frame
			errSumMs += float64(dist) / float64(time.Millisecond)
		} else {
			s.stats.AddSyncFailure()
		}
	}

	if len(set) > 0 {
		s.stats.RecordSyncedSet(errSumMs / float64(len(set)))
	}
	return set
}

// WaitSyncedSet polls until at least minCameras are present in a
// synchronized set, the timeout elapses, or ctx is cancelled. The timeout is
// a soft deadline: whatever is available at expiry is returned, never an
// error. minCameras <= 0 means all requested cameras.
func (s *Synchronizer) WaitSyncedSet(ctx context.Context, cameraIDs []string, timeout time.Duration, minCameras int) map[string]Frame {
	if cameraIDs == nil {
		cameraIDs = s.Cameras()
	}
	if minCameras <= 0 {
		minCameras = len(cameraIDs)
	}

	deadline := s.clock.Now().Add(timeout)
	for {
		set := s.SyncedSet(cameraIDs, s.cfg.Tolerance)
		if len(set) >= minCameras {
			return set
		}
		if ctx.Err() != nil || !s.clock.Now().Before(deadline) {
			return set
		}
		s.clock.Sleep(s.cfg.PollInterval)
	}
}
