package main

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/warren-data/habitat.report/internal/vision"
)

// animal is one simulated subject wandering the enclosure. All cameras see
// the same world position; each camera projects it with its own offset, so
// the same animal appears at different pixel coordinates per view.
type animal struct {
	id        int
	embedding []float64
	cx, cy    float64
	vx, vy    float64
}

// simWorld generates synthetic detections for a set of cameras watching the
// same animals. It stands in for a real detection model so the pipeline can
// be exercised end to end without any video input.
type simWorld struct {
	mu      sync.Mutex
	rng     *rand.Rand
	animals []*animal
	epoch   time.Time
}

const (
	simFrameW = 1920.0
	simFrameH = 1080.0
	simBoxW   = 120.0
	simBoxH   = 90.0
)

func newSimWorld(numAnimals int, seed int64, epoch time.Time) *simWorld {
	rng := rand.New(rand.NewSource(seed))
	w := &simWorld{rng: rng, epoch: epoch}
	for i := 0; i < numAnimals; i++ {
		emb := make([]float64, 64)
		for j := range emb {
			emb[j] = rng.NormFloat64()
		}
		floats.Scale(1/floats.Norm(emb, 2), emb)

		w.animals = append(w.animals, &animal{
			id:        i,
			embedding: emb,
			cx:        200 + rng.Float64()*(simFrameW-400),
			cy:        200 + rng.Float64()*(simFrameH-400),
			vx:        (rng.Float64() - 0.5) * 120,
			vy:        (rng.Float64() - 0.5) * 120,
		})
	}
	return w
}

// Detect projects each animal into the requesting camera's view at the
// frame's timestamp. Positions advance deterministically with time, so
// frames close in time across cameras see consistent world state.
func (w *simWorld) Detect(_ context.Context, frame vision.Frame) ([]vision.Detection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	t := frame.Timestamp.Sub(w.epoch).Seconds()
	offX, offY := cameraOffset(frame.CameraID)

	detections := make([]vision.Detection, 0, len(w.animals))
	for _, a := range w.animals {
		cx := bounce(a.cx+a.vx*t, simBoxW/2, simFrameW-simBoxW/2)
		cy := bounce(a.cy+a.vy*t, simBoxH/2, simFrameH-simBoxH/2)
		cx = clamp(cx+offX, simBoxW/2, simFrameW-simBoxW/2)
		cy = clamp(cy+offY, simBoxH/2, simFrameH-simBoxH/2)

		detections = append(detections, vision.Detection{
			CameraID: frame.CameraID,
			Box: vision.BBox{
				X1: float32(cx - simBoxW/2),
				Y1: float32(cy - simBoxH/2),
				X2: float32(cx + simBoxW/2),
				Y2: float32(cy + simBoxH/2),
			},
			Confidence: float32(0.75 + w.rng.Float64()*0.2),
			ClassID:    int32(a.id % 3),
			Embedding:  perturb(a.embedding, 0.03, w.rng),
		})
	}
	return detections, nil
}

// cameraOffset gives each camera a stable parallax shift derived from its ID.
func cameraOffset(cameraID string) (float64, float64) {
	var h uint32
	for _, c := range cameraID {
		h = h*31 + uint32(c)
	}
	return float64(h%7)*40 - 120, float64((h/7)%5)*30 - 60
}

// bounce reflects x into [lo, hi] so animals wander instead of walking off.
func bounce(x, lo, hi float64) float64 {
	span := hi - lo
	x = math.Mod(x-lo, 2*span)
	if x < 0 {
		x += 2 * span
	}
	if x > span {
		x = 2*span - x
	}
	return lo + x
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// perturb adds appearance noise so re-identification has to work for its
// matches. The result stays unit length.
func perturb(emb []float64, alpha float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(emb))
	for i := range emb {
		out[i] = emb[i] + alpha*rng.NormFloat64()
	}
	floats.Scale(1/floats.Norm(out, 2), out)
	return out
}
