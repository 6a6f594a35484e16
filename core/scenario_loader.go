package core

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/downlink-simulator/internal/telemetry"
	"github.com/signalsfoundry/downlink-simulator/model"
)

// LoadScenario decodes and validates a YAML scenario from r.
func LoadScenario(r io.Reader) (*model.Scenario, error) {
	var scenario model.Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}
	if err := ValidateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("LoadScenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarioFile reads and validates a YAML scenario from a path.
func LoadScenarioFile(path string) (*model.Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadScenarioFile: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadScenario(f)
}

// ValidateScenario checks a scenario for structural errors: missing or
// duplicate identifiers, satellites without a motion source, and
// non-positive rates.
func ValidateScenario(s *model.Scenario) error {
	if s == nil {
		return fmt.Errorf("scenario is nil")
	}
	if len(s.Satellites) == 0 {
		return fmt.Errorf("scenario defines no satellites")
	}
	if len(s.GroundStations) == 0 {
		return fmt.Errorf("scenario defines no ground stations")
	}

	satIDs := make(map[string]struct{}, len(s.Satellites))
	for i, sat := range s.Satellites {
		if sat.ID == "" {
			return fmt.Errorf("satellite %d has empty id", i)
		}
		if _, dup := satIDs[sat.ID]; dup {
			return fmt.Errorf("duplicate satellite id %q", sat.ID)
		}
		satIDs[sat.ID] = struct{}{}

		hasTLE := len(sat.TLE) > 0
		if hasTLE && len(sat.TLE) != 2 {
			return fmt.Errorf("satellite %q: tle must have exactly 2 lines, got %d", sat.ID, len(sat.TLE))
		}
		if hasTLE == (sat.Position != nil) {
			return fmt.Errorf("satellite %q: exactly one of tle or position must be set", sat.ID)
		}
	}

	gsIDs := make(map[string]struct{}, len(s.GroundStations))
	for i, gs := range s.GroundStations {
		if gs.ID == "" {
			return fmt.Errorf("ground station %d has empty id", i)
		}
		if _, dup := gsIDs[gs.ID]; dup {
			return fmt.Errorf("duplicate ground station id %q", gs.ID)
		}
		gsIDs[gs.ID] = struct{}{}

		if gs.DownlinkMbps <= 0 {
			return fmt.Errorf("ground station %q: downlink_mbps must be positive, got %v", gs.ID, gs.DownlinkMbps)
		}
		if gs.MinElevationDeg < 0 || gs.MinElevationDeg > 90 {
			return fmt.Errorf("ground station %q: min_elevation_deg must be in [0, 90], got %v", gs.ID, gs.MinElevationDeg)
		}
	}

	if s.Sensor.BitsPerSense == 0 {
		return fmt.Errorf("sensor: bits_per_sense must be positive")
	}
	if s.Sensor.MaxBufferMB < 0 {
		return fmt.Errorf("sensor: max_buffer_mb must not be negative, got %v", s.Sensor.MaxBufferMB)
	}
	if s.Spacing.ThresholdCoeff < 0 {
		return fmt.Errorf("spacing: threshold_coeff must not be negative, got %v", s.Spacing.ThresholdCoeff)
	}
	return nil
}

// SpacingFromScenario constructs the scenario's spacing strategy.
func SpacingFromScenario(cfg model.SpacingConfig) (SpacingStrategy, error) {
	return NewSpacingStrategy(cfg.Strategy, SpacingConfig{
		BatchSize:         cfg.BatchSize,
		TotalBatches:      cfg.TotalBatches,
		ClusterSize:       cfg.ClusterSize,
		IntraClusterDelta: time.Duration(cfg.IntraClusterDelta * float64(time.Second)),
		InterClusterDelta: time.Duration(cfg.InterClusterDelta * float64(time.Second)),
	})
}

// SchedulingFromScenario constructs the scenario's scheduling policy. An
// unrecognised policy name falls back to Sticky.
func SchedulingFromScenario(cfg model.SchedulingConfig) SchedulingPolicy {
	return NewSchedulingPolicy(cfg.Policy, SchedulingConfig{
		MinConnectionSteps: cfg.MinConnectionSteps,
		Seed:               cfg.Seed,
	})
}

// DefaultMinElevationDeg applies when a ground station does not set one.
const DefaultMinElevationDeg = 10.0

// BuildConstellation realises a validated scenario into runtime satellites,
// sensors, and ground stations. Sensors are bookmarked at start; the engine
// re-bookmarks them after initial propagation.
func BuildConstellation(s *model.Scenario, start time.Time, rec telemetry.Recorder) (*Constellation, error) {
	c := NewConstellation()

	capacityBits := uint64(0)
	if s.Sensor.MaxBufferMB > 0 {
		capacityBits = uint64(s.Sensor.MaxBufferMB * BitsPerMB)
	}

	for _, def := range s.Satellites {
		sat := &Satellite{ID: def.ID, Name: def.Name}
		if len(def.TLE) == 2 {
			sat.Motion = NewSGP4MotionModel(def.TLE[0], def.TLE[1])
		} else {
			sat.Motion = &FixedMotionModel{Posn: Vec3{X: def.Position.X, Y: def.Position.Y, Z: def.Position.Z}}
		}

		sensor := NewSensor(sat.ID, sat.ECIPosn, start, rec)
		sensor.SetBitsPerSense(s.Sensor.BitsPerSense)
		if capacityBits > 0 {
			sensor.SetMaxBufferCapacity(capacityBits)
		}

		if err := c.AddSatellite(sat, sensor); err != nil {
			return nil, fmt.Errorf("BuildConstellation: %w", err)
		}
	}

	for _, def := range s.GroundStations {
		minElev := def.MinElevationDeg
		if minElev == 0 {
			minElev = DefaultMinElevationDeg
		}
		gs := &GroundStation{
			ID:              def.ID,
			Name:            def.Name,
			ECEFPosn:        GeodeticToECEF(def.LatitudeDeg, def.LongitudeDeg, def.AltitudeM),
			MinElevationDeg: minElev,
			DownlinkMbps:    def.DownlinkMbps,
		}
		if err := c.AddGroundStation(gs); err != nil {
			return nil, fmt.Errorf("BuildConstellation: %w", err)
		}
	}

	return c, nil
}
