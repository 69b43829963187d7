package vision

import (
	"sync"
	"time"
)

// syncErrorEMAKeep is the weight on the previous average when folding a new
// step's sync error into the running estimate.
const syncErrorEMAKeep = 0.9

// PipelineStats tracks pipeline diagnostic counters with thread-safe
// operations. One instance is shared by the synchronizer, resolver and
// driver; external collaborators read snapshots.
type PipelineStats struct {
	mu                sync.Mutex
	framesBuffered    int64
	framesDropped     int64
	framesPurged      int64
	syncedSets        int64
	syncFailures      int64
	avgSyncErrorMs    float64
	stepsProcessed    int64
	identitiesCreated int64
	reidMatches       int64
	lastReset         time.Time
}

// NewPipelineStats creates a new PipelineStats instance.
func NewPipelineStats() *PipelineStats {
	return &PipelineStats{lastReset: time.Now()}
}

// AddFrame increments the buffered frame count.
func (ps *PipelineStats) AddFrame() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.framesBuffered++
}

// AddDropped increments the overflow-drop count.
func (ps *PipelineStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.framesDropped++
}

// AddPurged records frames discarded by the max-age purge.
func (ps *PipelineStats) AddPurged(n int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.framesPurged += int64(n)
}

// RecordSyncedSet records a successful synchronized set and folds the set's
// mean timestamp error (ms) into the running average.
func (ps *PipelineStats) RecordSyncedSet(meanErrorMs float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.syncedSets++
	if ps.avgSyncErrorMs == 0 {
		ps.avgSyncErrorMs = meanErrorMs
		return
	}
	ps.avgSyncErrorMs = syncErrorEMAKeep*ps.avgSyncErrorMs + (1-syncErrorEMAKeep)*meanErrorMs
}

// AddSyncFailure records a camera excluded from a set for being out of
// tolerance.
func (ps *PipelineStats) AddSyncFailure() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.syncFailures++
}

// AddStep increments the processed-step count.
func (ps *PipelineStats) AddStep() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.stepsProcessed++
}

// AddIdentity increments the created global-identity count.
func (ps *PipelineStats) AddIdentity() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.identitiesCreated++
}

// AddReIDMatch increments the re-identification match count.
func (ps *PipelineStats) AddReIDMatch() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.reidMatches++
}

// StatsSnapshot is an immutable copy of the pipeline counters.
type StatsSnapshot struct {
	FramesBuffered    int64
	FramesDropped     int64
	FramesPurged      int64
	SyncedSets        int64
	SyncFailures      int64
	AvgSyncErrorMs    float64
	StepsProcessed    int64
	IdentitiesCreated int64
	ReIDMatches       int64
	Since             time.Time
}

// Snapshot returns a copy of the current counters.
func (ps *PipelineStats) Snapshot() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return StatsSnapshot{
		FramesBuffered:    ps.framesBuffered,
		FramesDropped:     ps.framesDropped,
		FramesPurged:      ps.framesPurged,
		SyncedSets:        ps.syncedSets,
		SyncFailures:      ps.syncFailures,
		AvgSyncErrorMs:    ps.avgSyncErrorMs,
		StepsProcessed:    ps.stepsProcessed,
		IdentitiesCreated: ps.identitiesCreated,
		ReIDMatches:       ps.reidMatches,
		Since:             ps.lastReset,
	}
}

// Reset zeroes all counters.
func (ps *PipelineStats) Reset() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.framesBuffered = 0
	ps.framesDropped = 0
	ps.framesPurged = 0
	ps.syncedSets = 0
	ps.syncFailures = 0
	ps.avgSyncErrorMs = 0
	ps.stepsProcessed = 0
	ps.identitiesCreated = 0
	ps.reidMatches = 0
	ps.lastReset = time.Now()
}
