package vision

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrNoCalibration is returned by Position3D when no camera calibration is
// loaded. Triangulation is a hook only; no 3D math runs in this pipeline.
var ErrNoCalibration = errors.New("3d position unavailable: no camera calibration")

// multiCameraBonus is the confidence reward for corroboration by several
// cameras: aggregate = mean · (1 + 0.2·min(members/4, 1)), capped at 1.
const (
	multiCameraBonus       = 0.2
	multiCameraBonusCamCap = 4.0
)

// GlobalIdentity is one persistent cross-camera identity: a stable ID, a
// running-averaged appearance prototype, and the local tracks currently
// bound to it per camera.
type GlobalIdentity struct {
	GlobalID       string
	Prototype      []float64
	CameraBindings map[string]int64 // camera ID → bound local ID
	CreatedAt      time.Time
}

// IdentityRegistry owns all global identities for one pipeline instance.
// Identities are never deleted; an animal keeps its ID for the life of the
// process even across long absences. The registry is injected into the
// resolver so tests and tools can run with isolated registries.
//
// The registry is mutated only by the resolver on the single consumer
// goroutine; sharing one across pipeline instances requires external
// locking and is not the supported topology.
type IdentityRegistry struct {
	identities map[string]*GlobalIdentity
	order      []string // creation order, for deterministic scans
	bindings   map[string]map[int64]string
	nextID     int64
}

// NewIdentityRegistry creates an empty registry.
func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{
		identities: make(map[string]*GlobalIdentity),
		bindings:   make(map[string]map[int64]string),
	}
}

// Len returns the number of identities ever created.
func (r *IdentityRegistry) Len() int { return len(r.identities) }

// Identity returns the identity for a global ID, or nil.
func (r *IdentityRegistry) Identity(globalID string) *GlobalIdentity {
	return r.identities[globalID]
}

// GlobalIDs returns all identity IDs in creation order.
func (r *IdentityRegistry) GlobalIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Binding returns the global ID bound to a (camera, local track) pair.
func (r *IdentityRegistry) Binding(cameraID string, localID int64) (string, bool) {
	gid, ok := r.bindings[cameraID][localID]
	return gid, ok
}

// mint creates a fresh identity with the next "F<n>" ID.
func (r *IdentityRegistry) mint(now time.Time) *GlobalIdentity {
	id := &GlobalIdentity{
		GlobalID:       fmt.Sprintf("F%d", r.nextID),
		CameraBindings: make(map[string]int64),
		CreatedAt:      now,
	}
	r.nextID++
	r.identities[id.GlobalID] = id
	r.order = append(r.order, id.GlobalID)
	return id
}

// bind records that a camera's local track resolves to an identity.
func (r *IdentityRegistry) bind(cameraID string, localID int64, id *GlobalIdentity) {
	if r.bindings[cameraID] == nil {
		r.bindings[cameraID] = make(map[int64]string)
	}
	r.bindings[cameraID][localID] = id.GlobalID
	id.CameraBindings[cameraID] = localID
}

// unbind drops a camera's binding when its local track has been purged. The
// identity itself persists.
func (r *IdentityRegistry) unbind(cameraID string, localID int64) {
	gid, ok := r.bindings[cameraID][localID]
	if !ok {
		return
	}
	delete(r.bindings[cameraID], localID)
	if id := r.identities[gid]; id != nil && id.CameraBindings[cameraID] == localID {
		delete(id.CameraBindings, cameraID)
	}
}

// TrackRef is a weak reference to a member local track of a fused object.
// The track remains owned by its camera's associator.
type TrackRef struct {
	CameraID string
	Track    *LocalTrack
}

// FusedObject is the per-step grouping of local tracks believed to be the
// same animal. It is recomputed every synchronized step and never persisted
// between steps by the core.
type FusedObject struct {
	GlobalID            string
	Members             []TrackRef
	AggregateConfidence float32
	Timestamp           time.Time
}

// Position3D is the metric-position hook. It always reports that no
// calibration is available; triangulation is out of scope.
func (f *FusedObject) Position3D() ([3]float64, error) {
	return [3]float64{}, ErrNoCalibration
}

// ResolverConfig holds configuration for cross-camera resolution.
type ResolverConfig struct {
	ReIDThreshold float64 // Min cosine similarity to adopt an existing identity
	PrototypeKeep float64 // EMA weight kept on the existing prototype
}

// DefaultResolverConfig returns default resolver configuration.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ReIDThreshold: 0.7,
		PrototypeKeep: 0.7,
	}
}

// Resolver decides which local tracks across cameras correspond to the same
// animal and maintains the canonical identity registry. It runs on the
// single pipeline consumer goroutine.
type Resolver struct {
	cfg      ResolverConfig
	registry *IdentityRegistry
	stats    *PipelineStats
}

// NewResolver creates a resolver around an injected registry. A nil
// registry allocates a fresh one; a nil stats sink allocates a private one.
func NewResolver(cfg ResolverConfig, registry *IdentityRegistry, stats *PipelineStats) *Resolver {
	if cfg.ReIDThreshold == 0 {
		cfg.ReIDThreshold = DefaultResolverConfig().ReIDThreshold
	}
	if cfg.PrototypeKeep <= 0 || cfg.PrototypeKeep >= 1 {
		cfg.PrototypeKeep = DefaultResolverConfig().PrototypeKeep
	}
	if registry == nil {
		registry = NewIdentityRegistry()
	}
	if stats == nil {
		stats = NewPipelineStats()
	}
	return &Resolver{cfg: cfg, registry: registry, stats: stats}
}

// Registry exposes the injected identity registry (for snapshots and tools).
func (r *Resolver) Registry() *IdentityRegistry { return r.registry }

// Resolve merges one synchronized step's confirmed tracks into fused
// objects, minting or re-using global identities as needed.
//
// A track that already holds a binding from a prior step keeps it
// unconditionally for the life of that local track; identity is only
// resolved at track creation. Cameras are processed in ascending ID order
// and tracks in associator output order, so resolution is deterministic.
func (r *Resolver) Resolve(tracksByCamera map[string][]*LocalTrack, timestamp time.Time) []FusedObject {
	cameras := make([]string, 0, len(tracksByCamera))
	for id := range tracksByCamera {
		cameras = append(cameras, id)
	}
	sort.Strings(cameras)

	// Drop bindings for local tracks that no longer exist. A camera present
	// in the step reports all of its live confirmed tracks, so anything
	// missing has been purged. Cameras absent from the step (starved at the
	// synchronizer) are left untouched.
	for _, cam := range cameras {
		live := make(map[int64]bool, len(tracksByCamera[cam]))
		for _, track := range tracksByCamera[cam] {
			live[track.LocalID] = true
		}
		for localID := range r.registry.bindings[cam] {
			if !live[localID] {
				r.registry.unbind(cam, localID)
			}
		}
	}

	type group struct {
		id      *GlobalIdentity
		members []TrackRef
	}
	var groups []*group
	byGlobal := make(map[string]*group)

	for _, cam := range cameras {
		for _, track := range tracksByCamera[cam] {
			gid, ok := r.registry.Binding(cam, track.LocalID)
			var id *GlobalIdentity
			if ok {
				id = r.registry.Identity(gid)
			} else {
				id = r.assign(cam, track, timestamp)
			}

			g := byGlobal[id.GlobalID]
			if g == nil {
				g = &group{id: id}
				byGlobal[id.GlobalID] = g
				groups = append(groups, g)
			}
			g.members = append(g.members, TrackRef{CameraID: cam, Track: track})
		}
	}

	fused := make([]FusedObject, 0, len(groups))
	for _, g := range groups {
		fused = append(fused, FusedObject{
			GlobalID:            g.id.GlobalID,
			Members:             g.members,
			AggregateConfidence: aggregateConfidence(g.members),
			Timestamp:           timestamp,
		})
	}
	return fused
}

// assign resolves a newly created local track to a global identity: nearest
// prototype by cosine similarity when an embedding exists, a fresh identity
// otherwise. An identity already bound to a different live track on the
// same camera is skipped, which keeps at most one local track per camera
// per identity within a step.
func (r *Resolver) assign(cameraID string, track *LocalTrack, now time.Time) *GlobalIdentity {
	if len(track.Embedding) == 0 || r.registry.Len() == 0 {
		return r.mintFor(cameraID, track, now)
	}

	var best *GlobalIdentity
	bestSim := r.cfg.ReIDThreshold
	for _, gid := range r.registry.order {
		id := r.registry.identities[gid]
		if len(id.Prototype) == 0 {
			continue
		}
		if bound, ok := id.CameraBindings[cameraID]; ok && bound != track.LocalID {
			continue
		}
		sim := CosineSimilarity(track.Embedding, id.Prototype)
		if sim > bestSim {
			bestSim = sim
			best = id
		}
	}

	if best == nil {
		return r.mintFor(cameraID, track, now)
	}

	r.registry.bind(cameraID, track.LocalID, best)
	blendPrototype(best.Prototype, track.Embedding, r.cfg.PrototypeKeep)
	r.stats.AddReIDMatch()
	return best
}

// mintFor creates and binds a fresh identity, seeding the prototype when
// the track carries an embedding.
func (r *Resolver) mintFor(cameraID string, track *LocalTrack, now time.Time) *GlobalIdentity {
	id := r.registry.mint(now)
	if len(track.Embedding) > 0 {
		id.Prototype = append([]float64(nil), track.Embedding...)
	}
	r.registry.bind(cameraID, track.LocalID, id)
	r.stats.AddIdentity()
	return id
}

// aggregateConfidence rewards multi-camera corroboration without letting it
// dominate: mean member confidence scaled by a small member-count bonus,
// capped at 1.
func aggregateConfidence(members []TrackRef) float32 {
	if len(members) == 0 {
		return 0
	}
	confs := make([]float64, len(members))
	for i, m := range members {
		confs[i] = float64(m.Track.Confidence)
	}
	mean := stat.Mean(confs, nil)

	bonus := float64(len(members)) / multiCameraBonusCamCap
	if bonus > 1 {
		bonus = 1
	}
	agg := mean * (1 + multiCameraBonus*bonus)
	if agg > 1 {
		agg = 1
	}
	return float32(agg)
}
