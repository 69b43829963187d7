package vision

import "time"

// IdentitySnapshot is a portable copy of one global identity.
type IdentitySnapshot struct {
	GlobalID       string           `json:"global_id"`
	Prototype      []float64        `json:"prototype,omitempty"`
	CameraBindings map[string]int64 `json:"camera_bindings,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// RegistrySnapshot is a portable copy of an identity registry, suitable for
// persistence and later restoration. Identities appear in creation order.
type RegistrySnapshot struct {
	NextID     int64              `json:"next_id"`
	Identities []IdentitySnapshot `json:"identities"`
}

// Snapshot copies the registry's current state.
func (r *IdentityRegistry) Snapshot() RegistrySnapshot {
	snap := RegistrySnapshot{NextID: r.nextID}
	for _, gid := range r.order {
		id := r.identities[gid]
		is := IdentitySnapshot{
			GlobalID:  id.GlobalID,
			CreatedAt: id.CreatedAt,
		}
		if len(id.Prototype) > 0 {
			is.Prototype = append([]float64(nil), id.Prototype...)
		}
		if len(id.CameraBindings) > 0 {
			is.CameraBindings = make(map[string]int64, len(id.CameraBindings))
			for cam, local := range id.CameraBindings {
				is.CameraBindings[cam] = local
			}
		}
		snap.Identities = append(snap.Identities, is)
	}
	return snap
}

// RestoreSnapshot replaces the registry's state with a previously taken
// snapshot. Bindings are restored so identities survive a process restart
// mid-run; tracks created after the restart resolve against the restored
// prototypes.
func (r *IdentityRegistry) RestoreSnapshot(snap RegistrySnapshot) {
	r.identities = make(map[string]*GlobalIdentity, len(snap.Identities))
	r.bindings = make(map[string]map[int64]string)
	r.order = r.order[:0]
	r.nextID = snap.NextID

	for _, is := range snap.Identities {
		id := &GlobalIdentity{
			GlobalID:       is.GlobalID,
			CameraBindings: make(map[string]int64),
			CreatedAt:      is.CreatedAt,
		}
		if len(is.Prototype) > 0 {
			id.Prototype = append([]float64(nil), is.Prototype...)
		}
		r.identities[id.GlobalID] = id
		r.order = append(r.order, id.GlobalID)
		for cam, local := range is.CameraBindings {
			r.bind(cam, local, id)
		}
	}
}
