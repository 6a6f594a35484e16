package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrSatelliteExists       = errors.New("satellite already exists")
	ErrSatelliteBadInput     = errors.New("invalid satellite")
	ErrGroundStationExists   = errors.New("ground station already exists")
	ErrGroundStationBadInput = errors.New("invalid ground station")
)

// Satellite is the runtime state of one satellite. Positions are kept in
// kilometres: ECI for the sensing bookkeeping, ECEF for visibility.
// ClockOffset shifts the satellite's local time relative to simulation time
// (cluster re-phasing).
type Satellite struct {
	ID   string
	Name string

	ECIPosn  Vec3
	ECEFPosn Vec3

	ClockOffset time.Duration

	Motion MotionModel
}

// LocalTime returns the satellite's re-phased local time for a given
// simulation time.
func (s *Satellite) LocalTime(simTime time.Time) time.Time {
	return simTime.Add(s.ClockOffset)
}

// GroundStation is the runtime state of one fixed ground asset.
type GroundStation struct {
	ID   string
	Name string

	ECEFPosn        Vec3
	MinElevationDeg float64
	DownlinkMbps    float64
}

// Constellation owns the ordered satellite and ground-station tables plus
// the per-satellite sensor registry. Strategies and policies operate on
// satellite identifiers with lookups into this table, never on shared
// mutable aliases.
//
// Guarded by an internal mutex so status endpoints can read while the
// engine steps; all per-step mutation happens on the engine goroutine.
type Constellation struct {
	mu sync.RWMutex

	satellites []*Satellite
	satsByID   map[string]*Satellite
	sensors    map[string]*Sensor

	stations     []*GroundStation
	stationsByID map[string]*GroundStation
}

// NewConstellation creates an empty constellation.
func NewConstellation() *Constellation {
	return &Constellation{
		satsByID:     make(map[string]*Satellite),
		sensors:      make(map[string]*Sensor),
		stationsByID: make(map[string]*GroundStation),
	}
}

// AddSatellite inserts a satellite and its sensor. Order of insertion is
// preserved: the first satellite added is the lead satellite.
func (c *Constellation) AddSatellite(sat *Satellite, sensor *Sensor) error {
	if sat == nil || sat.ID == "" {
		return fmt.Errorf("%w", ErrSatelliteBadInput)
	}
	if sensor == nil {
		return fmt.Errorf("%w: %q has no sensor", ErrSatelliteBadInput, sat.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.satsByID[sat.ID]; exists {
		return fmt.Errorf("%w: %q", ErrSatelliteExists, sat.ID)
	}
	c.satellites = append(c.satellites, sat)
	c.satsByID[sat.ID] = sat
	c.sensors[sat.ID] = sensor
	return nil
}

// AddGroundStation inserts a ground station. Order of insertion fixes the
// per-step decision order.
func (c *Constellation) AddGroundStation(gs *GroundStation) error {
	if gs == nil || gs.ID == "" {
		return fmt.Errorf("%w", ErrGroundStationBadInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.stationsByID[gs.ID]; exists {
		return fmt.Errorf("%w: %q", ErrGroundStationExists, gs.ID)
	}
	c.stations = append(c.stations, gs)
	c.stationsByID[gs.ID] = gs
	return nil
}

// Satellites returns the satellites in insertion order. The returned slice
// must not be mutated.
func (c *Constellation) Satellites() []*Satellite {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.satellites
}

// GroundStations returns the ground stations in insertion order.
func (c *Constellation) GroundStations() []*GroundStation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stations
}

// Satellite returns a satellite by ID, or nil if not found.
func (c *Constellation) Satellite(id string) *Satellite {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.satsByID[id]
}

// Sensor returns the sensor for a satellite ID, or nil if not found.
func (c *Constellation) Sensor(id string) *Sensor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sensors[id]
}

// Sensors returns the sensor registry keyed by satellite ID. The map itself
// must not be mutated.
func (c *Constellation) Sensors() map[string]*Sensor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sensors
}

// LeadSatellite returns the designated lead satellite (first added), or nil
// for an empty constellation.
func (c *Constellation) LeadSatellite() *Satellite {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.satellites) == 0 {
		return nil
	}
	return c.satellites[0]
}

// VisibleSatellites returns the IDs of satellites currently visible from
// the station, in constellation order.
func (c *Constellation) VisibleSatellites(gs *GroundStation) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, sat := range c.satellites {
		if IsVisible(gs.ECEFPosn, sat.ECEFPosn, gs.MinElevationDeg) {
			out = append(out, sat.ID)
		}
	}
	return out
}
