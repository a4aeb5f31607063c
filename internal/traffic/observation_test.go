package traffic

import (
	"math"
	"testing"
)

func TestBBoxGeometry(t *testing.T) {
	b := BBox{X: 10, Y: 20, W: 30, H: 40}

	if c := b.Center(); c.X != 25 || c.Y != 40 {
		t.Errorf("center = %v, want (25, 40)", c)
	}
	if a := b.Area(); a != 1200 {
		t.Errorf("area = %v, want 1200", a)
	}
	if d := b.Diagonal(); d != 50 {
		t.Errorf("diagonal = %v, want 50", d)
	}
}

func TestBBoxIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b BBox
		want float64
	}{
		{"identical", BBox{0, 0, 10, 10}, BBox{0, 0, 10, 10}, 1.0},
		{"disjoint", BBox{0, 0, 10, 10}, BBox{20, 20, 10, 10}, 0},
		{"touching edges", BBox{0, 0, 10, 10}, BBox{10, 0, 10, 10}, 0},
		// 5x10 overlap over union 200-50=150.
		{"half overlap", BBox{0, 0, 10, 10}, BBox{5, 0, 10, 10}, 50.0 / 150.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.a.IoU(tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("IoU = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestObservationValidate(t *testing.T) {
	tests := []struct {
		name    string
		obs     Observation
		wantErr bool
	}{
		{"valid", Observation{ID: 1, BBox: BBox{0, 0, 10, 10}, Confidence: 0.9}, false},
		{"zero width", Observation{ID: 1, BBox: BBox{0, 0, 0, 10}, Confidence: 0.9}, true},
		{"negative height", Observation{ID: 1, BBox: BBox{0, 0, 10, -5}, Confidence: 0.9}, true},
		{"nan coordinate", Observation{ID: 1, BBox: BBox{math.NaN(), 0, 10, 10}, Confidence: 0.9}, true},
		{"confidence above one", Observation{ID: 1, BBox: BBox{0, 0, 10, 10}, Confidence: 1.2}, true},
		{"confidence below zero", Observation{ID: 1, BBox: BBox{0, 0, 10, 10}, Confidence: -0.1}, true},
		{"confidence boundary", Observation{ID: 1, BBox: BBox{0, 0, 10, 10}, Confidence: 1.0}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.obs.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestPointDist(t *testing.T) {
	if d := (Point{0, 0}).Dist(Point{3, 4}); d != 5 {
		t.Errorf("dist = %v, want 5", d)
	}
}
