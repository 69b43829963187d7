package vision

import "fmt"

// BBox is an axis-aligned bounding box in pixel coordinates, stored as
// [x1, y1, x2, y2] with (x1, y1) the top-left corner.
type BBox struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the box width in pixels.
func (b BBox) Width() float32 { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b BBox) Height() float32 { return b.Y2 - b.Y1 }

// Area returns the box area in square pixels. Degenerate boxes yield 0.
func (b BBox) Area() float32 {
	w := b.Width()
	h := b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the box center point.
func (b BBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Point is a 2D pixel coordinate.
type Point struct {
	X, Y float32
}

// GeometryError reports a detection whose bounding box cannot participate in
// association math.
type GeometryError struct {
	CameraID string
	Box      BBox
	Reason   string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid geometry on camera %s: %s (box [%g %g %g %g])",
		e.CameraID, e.Reason, e.Box.X1, e.Box.Y1, e.Box.X2, e.Box.Y2)
}

// Validate rejects degenerate boxes (zero or negative extent on either axis)
// so they never reach IoU computation.
func (b BBox) Validate(cameraID string) error {
	if b.X2 <= b.X1 {
		return &GeometryError{CameraID: cameraID, Box: b, Reason: "zero or negative width"}
	}
	if b.Y2 <= b.Y1 {
		return &GeometryError{CameraID: cameraID, Box: b, Reason: "zero or negative height"}
	}
	return nil
}

// IoU computes intersection-over-union of two boxes. Non-overlapping or
// degenerate boxes yield 0; identical boxes yield 1. The union is never zero
// when either box has positive area, so the division is safe.
func IoU(a, b BBox) float32 {
	ix1 := maxf(a.X1, b.X1)
	iy1 := maxf(a.Y1, b.Y1)
	ix2 := minf(a.X2, b.X2)
	iy2 := minf(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	intersection := iw * ih

	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
