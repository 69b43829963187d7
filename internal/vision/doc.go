// Package vision implements the multi-camera monitoring core: frame
// synchronization across independent camera streams, per-camera track
// association, and cross-camera fusion with re-identification.
//
// The pipeline consumes one synchronized time-step at a time:
//
//	capture threads → Synchronizer → Detector (external) → Associator
//	(per camera) → Resolver → FusedObjects → downstream consumers
//
// Detection, appearance embedding and behavior classification are external
// collaborators reached through interfaces; this package owns no model, no
// stream acquisition and no wire protocol.
package vision
