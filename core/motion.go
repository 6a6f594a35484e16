package core

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// MotionModel updates a satellite's position for a given simulation time.
// Implementations set both the ECI and ECEF position, in kilometres.
type MotionModel interface {
	UpdatePosition(simTime time.Time, sat *Satellite)
}

// FixedMotionModel pins a satellite to a constant position. Used for
// degenerate scenarios and tests; the ECEF position mirrors the ECI one.
type FixedMotionModel struct {
	Posn Vec3
}

// UpdatePosition sets the satellite to the fixed position.
func (m *FixedMotionModel) UpdatePosition(simTime time.Time, sat *Satellite) {
	sat.ECIPosn = m.Posn
	sat.ECEFPosn = m.Posn
}

// SGP4MotionModel propagates a satellite from a TLE.
type SGP4MotionModel struct {
	sat satellite.Satellite
}

// NewSGP4MotionModel constructs an orbital model from TLE lines.
func NewSGP4MotionModel(line1, line2 string) *SGP4MotionModel {
	return &SGP4MotionModel{sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72)}
}

// UpdatePosition propagates to the satellite's local time (cluster
// re-phasing shifts the propagation epoch) and stores the ECI position plus
// its ECEF rotation.
func (m *SGP4MotionModel) UpdatePosition(simTime time.Time, sat *Satellite) {
	t := sat.LocalTime(simTime)
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	sat.ECIPosn = Vec3{X: posECI.X, Y: posECI.Y, Z: posECI.Z}
	sat.ECEFPosn = Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}
