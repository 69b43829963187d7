package vision

// TrackState represents the lifecycle state of a local track.
type TrackState string

const (
	TrackTentative TrackState = "tentative" // New track, needs confirmation
	TrackConfirmed TrackState = "confirmed" // Stable track with sufficient history
	TrackDeleted   TrackState = "deleted"   // Track marked for removal
)

// AssociatorConfig holds configuration parameters for a per-camera
// associator.
type AssociatorConfig struct {
	IoUThreshold     float32 // Minimum IoU to bind a detection to a track
	MinHits          int     // Detections needed to confirm a track
	MaxAge           int     // Missed steps before a track is purged
	TrajectoryLength int     // Bounded center-history length
}

// DefaultAssociatorConfig returns default associator configuration.
func DefaultAssociatorConfig() AssociatorConfig {
	return AssociatorConfig{
		IoUThreshold:     0.3,
		MinHits:          3,
		MaxAge:           30,
		TrajectoryLength: 50,
	}
}

// LocalTrack is a tracked bounding box maintained independently within one
// camera's view. Local IDs are unique only within their camera. A track is
// owned exclusively by its camera's Associator and mutated only there.
type LocalTrack struct {
	LocalID    int64
	CameraID   string
	Box        BBox
	Confidence float32
	Embedding  []float64

	// Trajectory holds the bounded ordered history of box centers.
	Trajectory []Point

	Age             int // Frames seen (monotonic, reset never)
	TimeSinceUpdate int // Frames missed since last detection
	State           TrackState
}

// IsConfirmed reports whether the track has passed the confirmation gate.
func (t *LocalTrack) IsConfirmed() bool { return t.State == TrackConfirmed }

// apply absorbs a matched detection into the track.
func (t *LocalTrack) apply(det Detection, maxTrajectory int) {
	t.Box = det.Box
	t.Confidence = det.Confidence
	if det.HasEmbedding() {
		t.Embedding = det.Embedding
	}
	t.Trajectory = append(t.Trajectory, det.Box.Center())
	if len(t.Trajectory) > maxTrajectory {
		t.Trajectory = t.Trajectory[len(t.Trajectory)-maxTrajectory:]
	}
	t.TimeSinceUpdate = 0
	t.Age++
}

// markMissed ages a track that received no detection this step.
func (t *LocalTrack) markMissed() {
	t.TimeSinceUpdate++
	t.Age++
}

// Associator maintains one camera's local tracks across synchronized steps.
// It is called strictly sequentially from the single pipeline consumer and
// needs no internal locking.
type Associator struct {
	cameraID string
	cfg      AssociatorConfig
	tracks   []*LocalTrack
	nextID   int64
}

// NewAssociator creates an associator for one camera.
func NewAssociator(cameraID string, cfg AssociatorConfig) *Associator {
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultAssociatorConfig().IoUThreshold
	}
	if cfg.MinHits < 1 {
		cfg.MinHits = DefaultAssociatorConfig().MinHits
	}
	if cfg.MaxAge < 1 {
		cfg.MaxAge = DefaultAssociatorConfig().MaxAge
	}
	if cfg.TrajectoryLength < 1 {
		cfg.TrajectoryLength = DefaultAssociatorConfig().TrajectoryLength
	}
	return &Associator{cameraID: cameraID, cfg: cfg, nextID: 1}
}

// CameraID returns the camera this associator tracks.
func (a *Associator) CameraID() string { return a.cameraID }

// TrackCount returns total and confirmed live track counts.
func (a *Associator) TrackCount() (total, confirmed int) {
	for _, t := range a.tracks {
		total++
		if t.IsConfirmed() {
			confirmed++
		}
	}
	return total, confirmed
}

// Update processes one synchronized step's detections for this camera and
// returns the confirmed tracks (including confirmed tracks coasting through
// a missed step). Detections with degenerate geometry are rejected with a
// GeometryError before any matching runs.
//
// Matching is greedy bipartite on IoU: repeatedly bind the highest-IoU
// (track, detection) pair above the threshold, consuming that row and
// column. This is a deliberate approximation of optimal assignment, O(n·m)
// per pick over the small per-frame cardinalities this pipeline sees. Ties
// break deterministically to the first maximum in row-major scan order.
func (a *Associator) Update(detections []Detection) ([]*LocalTrack, error) {
	for _, det := range detections {
		if err := det.Box.Validate(a.cameraID); err != nil {
			return nil, err
		}
	}

	matchedTracks := make([]bool, len(a.tracks))
	matchedDets := make([]bool, len(detections))

	if len(a.tracks) > 0 && len(detections) > 0 {
		iou := make([][]float32, len(a.tracks))
		for i, track := range a.tracks {
			iou[i] = make([]float32, len(detections))
			for j, det := range detections {
				iou[i][j] = IoU(track.Box, det.Box)
			}
		}

		for {
			best := float32(-1)
			bi, bj := -1, -1
			for i := range iou {
				if matchedTracks[i] {
					continue
				}
				for j := range iou[i] {
					if matchedDets[j] {
						continue
					}
					if iou[i][j] > best {
						best = iou[i][j]
						bi, bj = i, j
					}
				}
			}
			if bi < 0 || best < a.cfg.IoUThreshold {
				break
			}

			track := a.tracks[bi]
			track.apply(detections[bj], a.cfg.TrajectoryLength)
			if track.State == TrackTentative && track.Age >= a.cfg.MinHits {
				track.State = TrackConfirmed
			}
			matchedTracks[bi] = true
			matchedDets[bj] = true
		}
	}

	// Unmatched tracks age in place; the box is left untouched.
	for i, track := range a.tracks {
		if !matchedTracks[i] {
			track.markMissed()
		}
	}

	// Unmatched detections start new tentative tracks.
	for j, det := range detections {
		if matchedDets[j] {
			continue
		}
		track := &LocalTrack{
			LocalID:    a.nextID,
			CameraID:   a.cameraID,
			Box:        det.Box,
			Confidence: det.Confidence,
			Trajectory: []Point{det.Box.Center()},
			Age:        1,
			State:      TrackTentative,
		}
		if det.HasEmbedding() {
			track.Embedding = det.Embedding
		}
		a.nextID++
		a.tracks = append(a.tracks, track)
	}

	// Purge tracks that have been missing too long.
	live := a.tracks[:0]
	for _, track := range a.tracks {
		if track.TimeSinceUpdate >= a.cfg.MaxAge {
			track.State = TrackDeleted
			continue
		}
		live = append(live, track)
	}
	a.tracks = live

	confirmed := make([]*LocalTrack, 0, len(a.tracks))
	for _, track := range a.tracks {
		if track.IsConfirmed() {
			confirmed = append(confirmed, track)
		}
	}
	return confirmed, nil
}
