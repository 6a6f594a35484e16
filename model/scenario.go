// Package model holds the configuration-facing definitions of a simulation
// scenario as loaded from YAML. Runtime state lives in the core package;
// these structs stay close to the scenario file schema.
package model

// Scenario is a complete simulation scenario definition.
type Scenario struct {
	Name           string                    `yaml:"name"`
	Satellites     []SatelliteDefinition     `yaml:"satellites"`
	GroundStations []GroundStationDefinition `yaml:"ground_stations"`
	Sensor         SensorConfig              `yaml:"sensor"`
	Spacing        SpacingConfig             `yaml:"spacing"`
	Scheduling     SchedulingConfig          `yaml:"scheduling"`
}

// SatelliteDefinition describes one satellite. Exactly one of TLE or
// Position must be set: TLE selects SGP4 propagation, Position pins the
// satellite to a fixed ECI point (degenerate scenarios and tests).
type SatelliteDefinition struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	TLE      []string  `yaml:"tle,omitempty"`      // two lines
	Position *Position `yaml:"position,omitempty"` // ECI km
}

// Position is a 3-vector in kilometres.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// GroundStationDefinition describes one fixed ground asset.
type GroundStationDefinition struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	LatitudeDeg     float64 `yaml:"latitude_deg"`
	LongitudeDeg    float64 `yaml:"longitude_deg"`
	AltitudeM       float64 `yaml:"altitude_m"`
	MinElevationDeg float64 `yaml:"min_elevation_deg"` // default 10
	DownlinkMbps    float64 `yaml:"downlink_mbps"`
}

// SensorConfig holds the per-satellite sensor buffer parameters. A zero
// MaxBufferMB means unbounded.
type SensorConfig struct {
	BitsPerSense uint64  `yaml:"bits_per_sense"`
	MaxBufferMB  float64 `yaml:"max_buffer_mb"`
}

// SpacingConfig selects and parameterises the spacing strategy.
type SpacingConfig struct {
	Strategy          string  `yaml:"strategy"`
	ThresholdCoeff    float64 `yaml:"threshold_coeff"`
	BatchSize         int     `yaml:"batch_size,omitempty"`
	TotalBatches      int     `yaml:"total_batches,omitempty"`
	ClusterSize       int     `yaml:"cluster_size,omitempty"`
	IntraClusterDelta float64 `yaml:"intra_cluster_delta_s,omitempty"` // seconds
	InterClusterDelta float64 `yaml:"inter_cluster_delta_s,omitempty"` // seconds
}

// SchedulingConfig selects and parameterises the scheduling policy.
type SchedulingConfig struct {
	Policy             string `yaml:"policy"`
	MinConnectionSteps uint64 `yaml:"min_connection_steps,omitempty"` // default 30
	Seed               int64  `yaml:"seed,omitempty"`                 // default 42
}
