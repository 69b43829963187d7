package vision

import (
	"context"
	"time"
)

// Payload is the decoded image data carried by a frame. The synchronizer
// treats it as opaque and shares it by reference with the pipeline consumer
// once a frame is dequeued. Immutability contract: the capture layer must
// not modify a payload after Push, and consumers must treat it as read-only.
type Payload interface{}

// Frame is one captured frame slot in a camera's synchronization buffer.
type Frame struct {
	CameraID  string
	Timestamp time.Time
	Sequence  uint64
	Payload   Payload
}

// Detection is a single model output for one frame. Produced externally,
// immutable once handed to the pipeline.
type Detection struct {
	CameraID   string
	Box        BBox
	Confidence float32
	ClassID    int32

	// Embedding is the optional appearance vector used for cross-camera
	// re-identification. nil means the embedding model was unavailable for
	// this detection; matching logic then always creates a new identity
	// rather than comparing against a default vector.
	Embedding []float64
}

// HasEmbedding reports whether an appearance embedding is attached.
func (d Detection) HasEmbedding() bool { return len(d.Embedding) > 0 }

// Detector is the external object-detection model boundary. Implementations
// run a model over the frame payload and return detections for that camera.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]Detection, error)
}

// BehaviorClassifier is the downstream temporal-behavior boundary. The
// pipeline hands it each step's fused objects; classification itself is
// external.
type BehaviorClassifier interface {
	Observe(ctx context.Context, timestamp time.Time, objects []FusedObject) error
}

// CameraInfo is static camera metadata from the deployment registry. Stream
// acquisition is external; the pipeline only needs stable identifiers.
type CameraInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	Enabled bool   `json:"enabled"`
}
