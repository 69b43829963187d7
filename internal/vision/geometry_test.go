package vision

import (
	"errors"
	"math"
	"testing"
)

func TestIoUIdenticalBoxes(t *testing.T) {
	box := BBox{X1: 100, Y1: 100, X2: 200, Y2: 300}
	if got := IoU(box, box); got != 1.0 {
		t.Errorf("IoU(box, box) = %v, want 1.0", got)
	}
}

func TestIoUDisjointBoxes(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := BBox{X1: 20, Y1: 20, X2: 30, Y2: 30}
	if got := IoU(a, b); got != 0.0 {
		t.Errorf("IoU(disjoint) = %v, want 0.0", got)
	}
}

func TestIoUTouchingEdges(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := BBox{X1: 10, Y1: 0, X2: 20, Y2: 10}
	if got := IoU(a, b); got != 0.0 {
		t.Errorf("IoU(edge-touching) = %v, want 0.0", got)
	}
}

func TestIoUPartialOverlap(t *testing.T) {
	// Two 10x10 boxes offset by 5 in x: intersection 50, union 150.
	a := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := BBox{X1: 5, Y1: 0, X2: 15, Y2: 10}
	want := float32(50.0 / 150.0)
	if got := IoU(a, b); math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("IoU(partial) = %v, want %v", got, want)
	}
}

func TestIoUDegenerateIsZeroNotNaN(t *testing.T) {
	degenerate := BBox{X1: 5, Y1: 5, X2: 5, Y2: 5}
	got := IoU(degenerate, degenerate)
	if math.IsNaN(float64(got)) {
		t.Fatal("IoU of degenerate boxes is NaN, want 0")
	}
	if got != 0 {
		t.Errorf("IoU(degenerate, degenerate) = %v, want 0", got)
	}
}

func TestValidateRejectsDegenerateBoxes(t *testing.T) {
	tests := []struct {
		name    string
		box     BBox
		wantErr bool
	}{
		{"valid", BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, false},
		{"zero width", BBox{X1: 10, Y1: 0, X2: 10, Y2: 10}, true},
		{"zero height", BBox{X1: 0, Y1: 10, X2: 10, Y2: 10}, true},
		{"inverted x", BBox{X1: 10, Y1: 0, X2: 0, Y2: 10}, true},
		{"inverted y", BBox{X1: 0, Y1: 10, X2: 10, Y2: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.box.Validate("cam-0")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var geoErr *GeometryError
				if !errors.As(err, &geoErr) {
					t.Errorf("error type = %T, want *GeometryError", err)
				} else if geoErr.CameraID != "cam-0" {
					t.Errorf("GeometryError.CameraID = %q, want %q", geoErr.CameraID, "cam-0")
				}
			}
		})
	}
}

func TestBBoxCenter(t *testing.T) {
	box := BBox{X1: 100, Y1: 100, X2: 200, Y2: 300}
	center := box.Center()
	if center.X != 150 || center.Y != 200 {
		t.Errorf("Center() = (%v, %v), want (150, 200)", center.X, center.Y)
	}
}

func TestBBoxArea(t *testing.T) {
	if got := (BBox{X1: 0, Y1: 0, X2: 10, Y2: 20}).Area(); got != 200 {
		t.Errorf("Area() = %v, want 200", got)
	}
	if got := (BBox{X1: 10, Y1: 0, X2: 0, Y2: 20}).Area(); got != 0 {
		t.Errorf("Area() of inverted box = %v, want 0", got)
	}
}
