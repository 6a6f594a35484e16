package core

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestHasLineOfSight_NoObstruction(t *testing.T) {
	// Two satellites high and on the same side of Earth, separated in Y.
	// The segment between them stays at x ≈ 8000 km, well outside Earth.
	posA := Vec3{X: 8000, Y: 0, Z: 0}
	posB := Vec3{X: 8000, Y: 1000, Z: 0}

	if !hasLineOfSight(posA, posB) {
		t.Errorf("expected LoS between two high satellites on same side of Earth")
	}
}

func TestHasLineOfSight_Obstructed(t *testing.T) {
	// Two points on opposite sides: the chord passes through the Earth.
	posA := Vec3{X: 7000, Y: 0, Z: 0}
	posB := Vec3{X: -7000, Y: 0, Z: 0}

	if hasLineOfSight(posA, posB) {
		t.Errorf("expected LoS to be blocked by Earth")
	}
}

func TestHasLineOfSight_FromSurface(t *testing.T) {
	// A station exactly on the sphere must see a satellite overhead; its own
	// position is the segment's closest approach to the centre.
	station := Vec3{X: EarthRadiusKm, Y: 0, Z: 0}
	overhead := Vec3{X: EarthRadiusKm + 550, Y: 0, Z: 0}

	if !hasLineOfSight(station, overhead) {
		t.Errorf("expected LoS from surface station to satellite overhead")
	}

	// A satellite on the far side stays blocked.
	farSide := Vec3{X: -(EarthRadiusKm + 550), Y: 0, Z: 0}
	if hasLineOfSight(station, farSide) {
		t.Errorf("expected LoS from surface station to far-side satellite to be blocked")
	}
}

func TestElevationDegrees(t *testing.T) {
	station := Vec3{X: EarthRadiusKm, Y: 0, Z: 0}

	tests := []struct {
		name   string
		target Vec3
		want   float64
	}{
		{"overhead", Vec3{X: EarthRadiusKm + 550}, 90},
		{"on horizon", Vec3{X: EarthRadiusKm, Y: 1000}, 0},
		{"below horizon", Vec3{X: EarthRadiusKm - 100, Y: 1000}, -5.71},
	}
	for _, tc := range tests {
		if got := ElevationDegrees(station, tc.target); !almostEqual(got, tc.want, 0.05) {
			t.Errorf("%s: ElevationDegrees = %v, want ≈ %v", tc.name, got, tc.want)
		}
	}
}

func TestAltitudeKm(t *testing.T) {
	if got := AltitudeKm(Vec3{X: EarthRadiusKm + 550}); !almostEqual(got, 550, 1e-9) {
		t.Errorf("AltitudeKm = %v, want 550", got)
	}
	if got := AltitudeKm(Vec3{X: 0, Y: 0, Z: EarthRadiusKm}); !almostEqual(got, 0, 1e-9) {
		t.Errorf("AltitudeKm at surface = %v, want 0", got)
	}
}

func TestGeodeticToECEF(t *testing.T) {
	tests := []struct {
		name           string
		lat, lon, altM float64
		want           Vec3
	}{
		{"equator prime meridian", 0, 0, 0, Vec3{X: EarthRadiusKm}},
		{"north pole", 90, 0, 0, Vec3{Z: EarthRadiusKm}},
		{"equator 90E", 0, 90, 0, Vec3{Y: EarthRadiusKm}},
		{"equator with altitude", 0, 0, 1000, Vec3{X: EarthRadiusKm + 1}},
	}
	for _, tc := range tests {
		got := GeodeticToECEF(tc.lat, tc.lon, tc.altM)
		if !almostEqual(got.X, tc.want.X, 1e-6) ||
			!almostEqual(got.Y, tc.want.Y, 1e-6) ||
			!almostEqual(got.Z, tc.want.Z, 1e-6) {
			t.Errorf("%s: GeodeticToECEF = %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestIsVisible(t *testing.T) {
	station := GeodeticToECEF(0, 0, 0)
	overhead := Vec3{X: EarthRadiusKm + 550}
	farSide := Vec3{X: -(EarthRadiusKm + 550)}
	// ~35° elevation as seen from the station.
	oblique := Vec3{X: EarthRadiusKm + 550, Y: 700}

	tests := []struct {
		name    string
		sat     Vec3
		minElev float64
		want    bool
	}{
		{"overhead clears any mask", overhead, 10, true},
		{"far side blocked", farSide, 0, false},
		{"oblique above mask", oblique, 10, true},
		{"oblique below steep mask", oblique, 80, false},
	}
	for _, tc := range tests {
		if got := IsVisible(station, tc.sat, tc.minElev); got != tc.want {
			t.Errorf("%s: IsVisible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestVec3Ops(t *testing.T) {
	a := Vec3{X: 3, Y: 4, Z: 0}
	b := Vec3{X: 1, Y: 1, Z: 1}

	if got := a.Norm(); !almostEqual(got, 5, 1e-12) {
		t.Errorf("Norm = %v, want 5", got)
	}
	if got := a.DistanceTo(a); got != 0 {
		t.Errorf("DistanceTo self = %v, want 0", got)
	}
	if got := a.Sub(b); got != (Vec3{X: 2, Y: 3, Z: -1}) {
		t.Errorf("Sub = %+v", got)
	}
	if got := a.Dot(b); got != 7 {
		t.Errorf("Dot = %v, want 7", got)
	}
}
