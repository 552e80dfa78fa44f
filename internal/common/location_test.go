package common

import (
	"errors"
	"math"
	"testing"
)

func TestHaversineDistance_SamePoint(t *testing.T) {
	loc := NewLocation(-6.2, 106.8)
	if d := HaversineDistance(loc, loc); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineDistance_OneDegreeLatitude(t *testing.T) {
	d := HaversineDistance(NewLocation(0, 0), NewLocation(1, 0))
	if math.Abs(d-111.19) > 0.1 {
		t.Fatalf("expected ~111.19km, got %f", d)
	}
}

func TestEuclideanDegrees(t *testing.T) {
	d := EuclideanDegrees(NewLocation(0, 0), NewLocation(0.3, 0.4))
	if math.Abs(d-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %f", d)
	}
}

func TestLocation_Key_RoundsToFourDecimals(t *testing.T) {
	a := NewLocation(-6.200001, 106.816666)
	b := NewLocation(-6.200004, 106.816669)
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys, got %s and %s", a.Key(), b.Key())
	}
	if a.Key() != "-6.2000,106.8167" {
		t.Fatalf("unexpected key %s", a.Key())
	}
}

func TestValidateLatLng(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr bool
	}{
		{"valid", -6.2, 106.8, false},
		{"boundary", 90, -180, false},
		{"lat too high", 90.1, 0, true},
		{"lng too low", 0, -180.5, true},
		{"nan", math.NaN(), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLatLng(tt.lat, tt.lng)
			if tt.wantErr && !errors.Is(err, ErrInvalidLatLng) {
				t.Fatalf("expected ErrInvalidLatLng, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
