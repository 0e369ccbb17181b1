package geo

import (
	"math"
	"testing"

	"dispatch-engine/internal/models"
)

func TestDistanceKmZeroForSamePoint(t *testing.T) {
	points := []models.Location{
		{Lat: 0, Lng: 0},
		{Lat: 30.0444, Lng: 31.2357},
		{Lat: -33.8688, Lng: 151.2093},
	}
	for _, p := range points {
		if d := DistanceKm(p, p); d != 0 {
			t.Errorf("DistanceKm(%v, %v) = %f, want 0", p, p, d)
		}
	}
}

func TestDistanceKmSymmetric(t *testing.T) {
	pairs := []struct {
		a, b models.Location
	}{
		{models.Location{Lat: 30.05, Lng: 31.23}, models.Location{Lat: 30.04, Lng: 31.24}},
		{models.Location{Lat: 51.5074, Lng: -0.1278}, models.Location{Lat: 48.8566, Lng: 2.3522}},
		{models.Location{Lat: -90, Lng: 0}, models.Location{Lat: 90, Lng: 0}},
	}
	for _, p := range pairs {
		ab := DistanceKm(p.a, p.b)
		ba := DistanceKm(p.b, p.a)
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("DistanceKm not symmetric: %f vs %f", ab, ba)
		}
	}
}

func TestDistanceKmKnownValues(t *testing.T) {
	tests := []struct {
		name      string
		a, b      models.Location
		want      float64
		tolerance float64
	}{
		{
			name:      "london to paris",
			a:         models.Location{Lat: 51.5074, Lng: -0.1278},
			b:         models.Location{Lat: 48.8566, Lng: 2.3522},
			want:      343.5,
			tolerance: 2.0,
		},
		{
			name:      "one degree of latitude",
			a:         models.Location{Lat: 0, Lng: 0},
			b:         models.Location{Lat: 1, Lng: 0},
			want:      111.19,
			tolerance: 0.3,
		},
		{
			name:      "downtown cairo short hop",
			a:         models.Location{Lat: 30.05, Lng: 31.23},
			b:         models.Location{Lat: 30.04, Lng: 31.24},
			want:      1.46,
			tolerance: 0.1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f ± %f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestETAMinutes(t *testing.T) {
	tests := []struct {
		name       string
		distanceKm float64
		speedKmh   float64
		want       int
	}{
		{"five km at default speed", 5, 30, 10},
		{"zero distance", 0, 30, 0},
		{"rounds up", 5.3, 30, 11},   // 10.6 -> 11
		{"rounds down", 5.1, 30, 10}, // 10.2 -> 10
		{"fast vehicle", 30, 60, 30},
		{"invalid speed falls back to default", 5, 0, 10},
		{"negative speed falls back to default", 5, -10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ETAMinutes(tt.distanceKm, tt.speedKmh); got != tt.want {
				t.Errorf("ETAMinutes(%f, %f) = %d, want %d", tt.distanceKm, tt.speedKmh, got, tt.want)
			}
		})
	}
}
