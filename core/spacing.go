package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/downlink-simulator/internal/telemetry"
)

// SpacingStrategy decides when a sensing event fires and which satellites
// participate. A single instance is shared by the whole constellation.
//
// Each step the engine computes the lead satellite's displacement since its
// last recorded sense (distanceKm) and the lead satellite's current distance
// threshold (thresholdKm), then consults ShouldTriggerObservation. On true
// it calls ExecuteObservation followed by UpdateFrameState, so strategies
// that skip qualifying events can keep the lead satellite's bookmark moving.
type SpacingStrategy interface {
	// Name returns the strategy's configuration name.
	Name() string

	// ShouldTriggerObservation is a pure predicate: it must not mutate
	// strategy state.
	ShouldTriggerObservation(currPosn, prevSensePosn Vec3, prevSenseTime, now time.Time,
		distanceKm, thresholdKm float64, leadSatID string, sats []*Satellite) bool

	// ExecuteObservation selects the participating satellites, triggers
	// their sensors, refreshes each participant's distance threshold from
	// its current altitude, and emits a trigger-time event. May mutate
	// rotation/frame state.
	ExecuteObservation(sats []*Satellite, sensors map[string]*Sensor,
		thresholds map[string]float64, threshCoeff float64, now time.Time, rec telemetry.Recorder)

	// UpdateFrameState advances frame bookkeeping after a qualifying event,
	// whether or not the event triggered any sensing.
	UpdateFrameState(leadSatID string, currPosn Vec3, now time.Time, sensors map[string]*Sensor)
}

// SpacingConfig parameterises strategy construction. Zero values select the
// defaults noted per field.
type SpacingConfig struct {
	BatchSize         int           // close-spaced satellites per batch; default 10
	TotalBatches      int           // close-spaced batch count; default 5
	ClusterSize       int           // close-orbit-spaced cluster size; default 1
	IntraClusterDelta time.Duration // close-orbit-spaced in-cluster phase step; default 0
	InterClusterDelta time.Duration // close-orbit-spaced per-cluster phase step; default 540s
}

// SpacingStrategyNames lists the valid strategy names.
func SpacingStrategyNames() []string {
	return []string{"bent-pipe", "close-spaced", "close-orbit-spaced", "frame-spaced", "frame-spaced-rr", "orbit-spaced"}
}

// NewSpacingStrategy constructs a strategy by configuration name. Unknown
// names are a fatal configuration error naming the valid set.
func NewSpacingStrategy(name string, cfg SpacingConfig) (SpacingStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bent-pipe", "bentpipe":
		return &BentPipeStrategy{}, nil
	case "close-spaced", "close", "closed":
		batchSize := cfg.BatchSize
		if batchSize <= 0 {
			batchSize = 10
		}
		totalBatches := cfg.TotalBatches
		if totalBatches <= 0 {
			totalBatches = 5
		}
		return &CloseSpacedStrategy{batchSize: batchSize, totalBatches: totalBatches}, nil
	case "close-orbit-spaced":
		clusterSize := cfg.ClusterSize
		if clusterSize <= 0 {
			clusterSize = 1
		}
		interDelta := cfg.InterClusterDelta
		if interDelta == 0 {
			interDelta = 540 * time.Second
		}
		return &CloseOrbitSpacedStrategy{
			clusterSize: clusterSize,
			intraDelta:  cfg.IntraClusterDelta,
			interDelta:  interDelta,
		}, nil
	case "frame-spaced", "frame":
		return &FrameSpacedStrategy{}, nil
	case "frame-spaced-rr":
		return &FrameSpacedRRStrategy{}, nil
	case "orbit-spaced", "orbit":
		return &OrbitSpacedStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown spacing strategy %q, valid options: %s",
			name, strings.Join(SpacingStrategyNames(), ", "))
	}
}

// triggerAll fires every satellite's sensor and refreshes every threshold.
func triggerAll(sats []*Satellite, sensors map[string]*Sensor, thresholds map[string]float64,
	threshCoeff float64, now time.Time, rec telemetry.Recorder) {
	rec.Evnt("trigger-time", now)
	for _, sat := range sats {
		sensors[sat.ID].TriggerSense()
		thresholds[sat.ID] = threshCoeff * AltitudeKm(sat.ECIPosn)
	}
}

// BentPipeStrategy triggers every satellite simultaneously whenever the lead
// satellite's displacement reaches the threshold.
type BentPipeStrategy struct{}

func (s *BentPipeStrategy) Name() string { return "bent-pipe" }

func (s *BentPipeStrategy) ShouldTriggerObservation(currPosn, prevSensePosn Vec3, prevSenseTime, now time.Time,
	distanceKm, thresholdKm float64, leadSatID string, sats []*Satellite) bool {
	return distanceKm >= thresholdKm
}

func (s *BentPipeStrategy) ExecuteObservation(sats []*Satellite, sensors map[string]*Sensor,
	thresholds map[string]float64, threshCoeff float64, now time.Time, rec telemetry.Recorder) {
	triggerAll(sats, sensors, thresholds, threshCoeff, now, rec)
}

func (s *BentPipeStrategy) UpdateFrameState(leadSatID string, currPosn Vec3, now time.Time, sensors map[string]*Sensor) {
}

// CloseSpacedStrategy triggers at a fraction of the normal threshold and
// fires one rotating batch of satellites per event.
type CloseSpacedStrategy struct {
	batchSize    int
	totalBatches int
	batchCount   int
}

func (s *CloseSpacedStrategy) Name() string { return "close-spaced" }

func (s *CloseSpacedStrategy) ShouldTriggerObservation(currPosn, prevSensePosn Vec3, prevSenseTime, now time.Time,
	distanceKm, thresholdKm float64, leadSatID string, sats []*Satellite) bool {
	// Lower effective threshold: more frequent, smaller observation windows.
	return distanceKm >= thresholdKm/float64(s.totalBatches)
}

func (s *CloseSpacedStrategy) ExecuteObservation(sats []*Satellite, sensors map[string]*Sensor,
	thresholds map[string]float64, threshCoeff float64, now time.Time, rec telemetry.Recorder) {
	start := (s.batchCount % s.totalBatches) * s.batchSize
	end := start + s.batchSize
	if start > len(sats) {
		start = len(sats)
	}
	if end > len(sats) {
		end = len(sats)
	}

	rec.Evnt("trigger-time", now)
	for _, sat := range sats[start:end] {
		sensors[sat.ID].TriggerSense()
		thresholds[sat.ID] = threshCoeff * AltitudeKm(sat.ECIPosn)
	}
	s.batchCount++
}

func (s *CloseSpacedStrategy) UpdateFrameState(leadSatID string, currPosn Vec3, now time.Time, sensors map[string]*Sensor) {
}

// CloseOrbitSpacedStrategy triggers all satellites simultaneously like
// bent-pipe, but re-phases each satellite's local clock once before any
// stepping begins: satellites within a cluster are offset by the intra
// delta, and each cluster of clusterSize satellites is offset by a further
// inter delta. The stagger shifts when each satellite's own threshold check
// fires, not who participates.
type CloseOrbitSpacedStrategy struct {
	clusterSize int
	intraDelta  time.Duration
	interDelta  time.Duration
	phased      bool
}

func (s *CloseOrbitSpacedStrategy) Name() string { return "close-orbit-spaced" }

// ApplyClusterPhasing sets each satellite's clock offset. Called once by the
// engine before the first step; subsequent calls are no-ops.
func (s *CloseOrbitSpacedStrategy) ApplyClusterPhasing(sats []*Satellite) {
	if s.phased {
		return
	}
	for i, sat := range sats {
		cluster := i / s.clusterSize
		within := i % s.clusterSize
		sat.ClockOffset = time.Duration(cluster)*s.interDelta + time.Duration(within)*s.intraDelta
	}
	s.phased = true
}

func (s *CloseOrbitSpacedStrategy) ShouldTriggerObservation(currPosn, prevSensePosn Vec3, prevSenseTime, now time.Time,
	distanceKm, thresholdKm float64, leadSatID string, sats []*Satellite) bool {
	return distanceKm >= thresholdKm
}

func (s *CloseOrbitSpacedStrategy) ExecuteObservation(sats []*Satellite, sensors map[string]*Sensor,
	thresholds map[string]float64, threshCoeff float64, now time.Time, rec telemetry.Recorder) {
	triggerAll(sats, sensors, thresholds, threshCoeff, now, rec)
}

func (s *CloseOrbitSpacedStrategy) UpdateFrameState(leadSatID string, currPosn Vec3, now time.Time, sensors map[string]*Sensor) {
}

// FrameSpacedStrategy counts qualifying threshold events and triggers all
// satellites on every Nth one (N = constellation size). The intervening
// events only advance the lead satellite's position bookmark, so skipped
// frames do not accumulate spurious displacement.
type FrameSpacedStrategy struct {
	frameCount int
	satCount   int
}

func (s *FrameSpacedStrategy) Name() string { return "frame-spaced" }

func (s *FrameSpacedStrategy) ShouldTriggerObservation(currPosn, prevSensePosn Vec3, prevSenseTime, now time.Time,
	distanceKm, thresholdKm float64, leadSatID string, sats []*Satellite) bool {
	return distanceKm >= thresholdKm
}

func (s *FrameSpacedStrategy) ExecuteObservation(sats []*Satellite, sensors map[string]*Sensor,
	thresholds map[string]float64, threshCoeff float64, now time.Time, rec telemetry.Recorder) {
	s.satCount = len(sats)
	s.frameCount++
	if s.frameCount%len(sats) != 0 {
		// Skip frame: no sensing. The engine's follow-up UpdateFrameState
		// call bookmarks the lead satellite.
		return
	}
	s.frameCount = 0
	triggerAll(sats, sensors, thresholds, threshCoeff, now, rec)
}

func (s *FrameSpacedStrategy) UpdateFrameState(leadSatID string, currPosn Vec3, now time.Time, sensors map[string]*Sensor) {
	if s.satCount > 0 && s.frameCount%s.satCount != 0 {
		sensors[leadSatID].SetPrevSensePosnDateTime(currPosn, now)
	}
}

// FrameSpacedRRStrategy is the divergent frame-spaced behaviour kept under
// its own name: every qualifying event triggers exactly one satellite,
// advancing one position in rotation per event.
type FrameSpacedRRStrategy struct {
	frameCount int
}

func (s *FrameSpacedRRStrategy) Name() string { return "frame-spaced-rr" }

func (s *FrameSpacedRRStrategy) ShouldTriggerObservation(currPosn, prevSensePosn Vec3, prevSenseTime, now time.Time,
	distanceKm, thresholdKm float64, leadSatID string, sats []*Satellite) bool {
	return distanceKm >= thresholdKm
}

func (s *FrameSpacedRRStrategy) ExecuteObservation(sats []*Satellite, sensors map[string]*Sensor,
	thresholds map[string]float64, threshCoeff float64, now time.Time, rec telemetry.Recorder) {
	sat := sats[s.frameCount%len(sats)]
	s.frameCount++

	rec.Evnt("trigger-time", now)
	sensors[sat.ID].TriggerSense()
	thresholds[sat.ID] = threshCoeff * AltitudeKm(sat.ECIPosn)
}

func (s *FrameSpacedRRStrategy) UpdateFrameState(leadSatID string, currPosn Vec3, now time.Time, sensors map[string]*Sensor) {
}

// OrbitSpacedStrategy triggers exactly one satellite per event, gated on the
// lead satellite being the one currently selected by the rotation index. The
// index advances only on execution, never in the predicate.
type OrbitSpacedStrategy struct {
	rotationIndex int
}

func (s *OrbitSpacedStrategy) Name() string { return "orbit-spaced" }

// LeadSatellite designates the currently selected satellite as the lead, so
// the engine tracks the displacement of the satellite whose turn it is. The
// rotation index is read, never advanced, here.
func (s *OrbitSpacedStrategy) LeadSatellite(sats []*Satellite) *Satellite {
	if len(sats) == 0 {
		return nil
	}
	return sats[s.rotationIndex%len(sats)]
}

func (s *OrbitSpacedStrategy) ShouldTriggerObservation(currPosn, prevSensePosn Vec3, prevSenseTime, now time.Time,
	distanceKm, thresholdKm float64, leadSatID string, sats []*Satellite) bool {
	if distanceKm < thresholdKm {
		return false
	}
	active := sats[s.rotationIndex%len(sats)]
	return leadSatID == active.ID
}

func (s *OrbitSpacedStrategy) ExecuteObservation(sats []*Satellite, sensors map[string]*Sensor,
	thresholds map[string]float64, threshCoeff float64, now time.Time, rec telemetry.Recorder) {
	sat := sats[s.rotationIndex%len(sats)]
	s.rotationIndex++

	rec.Evnt("trigger-time", now)
	sensors[sat.ID].TriggerSense()
	thresholds[sat.ID] = threshCoeff * AltitudeKm(sat.ECIPosn)
}

func (s *OrbitSpacedStrategy) UpdateFrameState(leadSatID string, currPosn Vec3, now time.Time, sensors map[string]*Sensor) {
}
