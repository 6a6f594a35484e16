package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/downlink-simulator/internal/logging"
	"github.com/signalsfoundry/downlink-simulator/internal/observability"
	"github.com/signalsfoundry/downlink-simulator/internal/telemetry"
	"github.com/signalsfoundry/downlink-simulator/timectrl"
)

// spanWindowSteps is the number of steps covered by one child span of the
// run span.
const spanWindowSteps = 1000

// clusterPhaser is implemented by strategies that re-phase satellite local
// clocks once before stepping begins.
type clusterPhaser interface {
	ApplyClusterPhasing(sats []*Satellite)
}

// leadSelector is implemented by strategies that designate their own lead
// satellite. The default lead is the first satellite in the constellation.
type leadSelector interface {
	LeadSatellite(sats []*Satellite) *Satellite
}

// EngineConfig assembles an Engine. Constellation, Strategy, Policy, and
// Clock are required; Logger, Recorder, and Metrics default to no-ops.
type EngineConfig struct {
	Constellation  *Constellation
	Strategy       SpacingStrategy
	Policy         SchedulingPolicy
	Clock          *timectrl.TimeController
	ThresholdCoeff float64

	Logger   logging.Logger
	Recorder telemetry.Recorder
	Metrics  *observability.SimCollector
}

// Engine runs the simulation loop: advance the clock, propagate positions,
// consult the spacing strategy, apply sensor updates, then evaluate every
// ground station's scheduling decision in fixed order and perform the
// winning downlink transfers. All per-step decisions run on the calling
// goroutine; that serialization is the exclusivity mechanism for the
// occupancy map and the satellites' buffers.
type Engine struct {
	constellation *Constellation
	strategy      SpacingStrategy
	policy        SchedulingPolicy
	clock         *timectrl.TimeController
	threshCoeff   float64

	log     logging.Logger
	rec     telemetry.Recorder
	metrics *observability.SimCollector

	// thresholds holds each satellite's current distance threshold in km,
	// refreshed by the strategy from altitude at every sensing event.
	thresholds map[string]float64

	// assignments maps ground-station ID to the satellite it served last
	// step. Seeds the occupancy map at the start of each step.
	assignments map[string]string

	prevLostBits map[string]uint64
	satStats     map[string]*satelliteStats
	stationStats map[string]*stationStats
}

type satelliteStats struct {
	triggers       uint64
	downlinkedBits uint64
}

type stationStats struct {
	stepsConnected uint64
	idleSteps      uint64
	receivedBits   uint64
}

// NewEngine validates the configuration, applies one-time cluster re-phasing
// if the strategy requires it, propagates initial positions, and seeds every
// satellite's distance threshold and sense bookmark.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Constellation == nil {
		return nil, fmt.Errorf("engine: constellation is required")
	}
	if len(cfg.Constellation.Satellites()) == 0 {
		return nil, fmt.Errorf("engine: constellation has no satellites")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("engine: spacing strategy is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("engine: scheduling policy is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("engine: clock is required")
	}
	if cfg.ThresholdCoeff <= 0 {
		cfg.ThresholdCoeff = 1.0
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = telemetry.Noop()
	}

	e := &Engine{
		constellation: cfg.Constellation,
		strategy:      cfg.Strategy,
		policy:        cfg.Policy,
		clock:         cfg.Clock,
		threshCoeff:   cfg.ThresholdCoeff,
		log:           cfg.Logger,
		rec:           cfg.Recorder,
		metrics:       cfg.Metrics,
		thresholds:    make(map[string]float64),
		assignments:   make(map[string]string),
		prevLostBits:  make(map[string]uint64),
		satStats:      make(map[string]*satelliteStats),
		stationStats:  make(map[string]*stationStats),
	}

	sats := e.constellation.Satellites()
	if phaser, ok := e.strategy.(clusterPhaser); ok {
		phaser.ApplyClusterPhasing(sats)
	}

	start := e.clock.Now()
	sensors := e.constellation.Sensors()
	for _, sat := range sats {
		if sat.Motion != nil {
			sat.Motion.UpdatePosition(start, sat)
		}
		e.thresholds[sat.ID] = e.threshCoeff * AltitudeKm(sat.ECIPosn)
		sensors[sat.ID].SetPrevSensePosnDateTime(sat.ECIPosn, start)
		e.satStats[sat.ID] = &satelliteStats{}
	}
	for _, gs := range e.constellation.GroundStations() {
		e.stationStats[gs.ID] = &stationStats{}
	}

	return e, nil
}

// Run executes the given number of steps and returns the run summary. It
// stops early when ctx is cancelled; a started step always runs to
// completion.
func (e *Engine) Run(ctx context.Context, steps uint64) (*Summary, error) {
	tracer := otel.Tracer("downlink-simulator")
	ctx, runSpan := tracer.Start(ctx, "simulation.run",
		trace.WithAttributes(
			attribute.String("strategy", e.strategy.Name()),
			attribute.String("policy", e.policy.Name()),
			attribute.Int("satellites", len(e.constellation.Satellites())),
			attribute.Int("ground_stations", len(e.constellation.GroundStations())),
			attribute.Int64("steps", int64(steps)),
		))
	defer runSpan.End()

	e.log.Info(ctx, "simulation starting",
		logging.String("strategy", e.strategy.Name()),
		logging.String("policy", e.policy.Name()),
		logging.Int("satellites", len(e.constellation.Satellites())),
		logging.Int("ground_stations", len(e.constellation.GroundStations())),
		logging.Any("steps", steps),
	)

	var windowSpan trace.Span
	for i := uint64(0); i < steps; i++ {
		if err := ctx.Err(); err != nil {
			if windowSpan != nil {
				windowSpan.End()
			}
			return e.Summary(), fmt.Errorf("simulation interrupted at step %d: %w", i, err)
		}
		if i%spanWindowSteps == 0 {
			if windowSpan != nil {
				windowSpan.End()
			}
			_, windowSpan = tracer.Start(ctx, "simulation.window",
				trace.WithAttributes(attribute.Int64("start_step", int64(i))))
		}
		e.Step(ctx)
	}
	if windowSpan != nil {
		windowSpan.End()
	}

	summary := e.Summary()
	e.log.Info(ctx, "simulation complete", logging.Any("steps", summary.Steps))
	return summary, nil
}

// Step advances the simulation by exactly one tick.
func (e *Engine) Step(ctx context.Context) {
	wallStart := time.Now()

	now := e.clock.Advance()
	step := e.clock.StepCount()

	sats := e.constellation.Satellites()
	sensors := e.constellation.Sensors()

	for _, sat := range sats {
		if sat.Motion != nil {
			sat.Motion.UpdatePosition(now, sat)
		}
	}

	e.runSpacing(ctx, now, sats, sensors)
	e.applySensorUpdates(now, sats, sensors)
	e.runScheduling(ctx, now, step, sensors)

	e.metrics.ObserveStep(time.Since(wallStart))
}

// runSpacing evaluates the trigger predicate against the lead satellite's
// displacement and executes the sensing event when it fires. UpdateFrameState
// runs after execution so frame-counted strategies can bookmark the lead
// satellite on skipped frames.
func (e *Engine) runSpacing(ctx context.Context, now time.Time, sats []*Satellite, sensors map[string]*Sensor) {
	lead := e.leadSatellite(sats)
	leadSensor := sensors[lead.ID]

	distanceKm := lead.ECIPosn.DistanceTo(leadSensor.PrevSensePosn())
	thresholdKm := e.thresholds[lead.ID]

	if !e.strategy.ShouldTriggerObservation(lead.ECIPosn, leadSensor.PrevSensePosn(),
		leadSensor.PrevSenseTime(), now, distanceKm, thresholdKm, lead.ID, sats) {
		return
	}

	e.strategy.ExecuteObservation(sats, sensors, e.thresholds, e.threshCoeff, now, e.rec)
	e.strategy.UpdateFrameState(lead.ID, lead.ECIPosn, now, sensors)

	e.log.Debug(ctx, "sensing event evaluated",
		logging.String("strategy", e.strategy.Name()),
		logging.String("lead_satellite", lead.ID),
		logging.Any("distance_km", distanceKm),
		logging.Any("threshold_km", thresholdKm),
	)
}

func (e *Engine) leadSatellite(sats []*Satellite) *Satellite {
	if selector, ok := e.strategy.(leadSelector); ok {
		if lead := selector.LeadSatellite(sats); lead != nil {
			return lead
		}
	}
	return sats[0]
}

// applySensorUpdates applies pending sense triggers and publishes buffer
// occupancy and loss telemetry.
func (e *Engine) applySensorUpdates(now time.Time, sats []*Satellite, sensors map[string]*Sensor) {
	for _, sat := range sats {
		sensor := sensors[sat.ID]
		if sensor.SenseTrigger() {
			e.satStats[sat.ID].triggers++
			e.metrics.IncTrigger(sat.ID)
		}
		sensor.Update(now, sat.ECIPosn)

		buffered := sensor.BitsBuffered()
		e.metrics.SetBufferedBits(sat.ID, buffered)
		e.rec.Meas("MB-buffered-sat-"+sat.ID, now, float64(buffered)/BitsPerMB)

		if lost := sensor.TotalBitsLost(); lost > e.prevLostBits[sat.ID] {
			e.metrics.AddBitsLost(sat.ID, lost-e.prevLostBits[sat.ID])
			e.prevLostBits[sat.ID] = lost
		}
	}
}

// runScheduling evaluates every ground station in fixed order. The occupancy
// map marks satellites committed to a different station: this step's earlier
// commitments first, last step's assignments otherwise. A decision that
// lands on a satellite already committed this step is discarded.
func (e *Engine) runScheduling(ctx context.Context, now time.Time, step uint64, sensors map[string]*Sensor) {
	prevOwner := make(map[string]string, len(e.assignments))
	for gsID, satID := range e.assignments {
		prevOwner[satID] = gsID
	}

	committed := make(map[string]string)
	newAssignments := make(map[string]string)
	tickSeconds := e.clock.Tick.Seconds()

	for _, gs := range e.constellation.GroundStations() {
		visible := e.constellation.VisibleSatellites(gs)

		occupied := make(map[string]bool, len(visible))
		for _, satID := range visible {
			if owner, ok := committed[satID]; ok {
				occupied[satID] = owner != gs.ID
				continue
			}
			if owner, ok := prevOwner[satID]; ok {
				occupied[satID] = owner != gs.ID
			}
		}

		stats := e.stationStats[gs.ID]
		satID, ok := e.policy.Decide(visible, sensors, occupied, now, gs.ID, e.assignments[gs.ID], step)
		if !ok {
			stats.idleSteps++
			e.metrics.IncDecision(gs.ID, "idle")
			continue
		}
		if owner, taken := committed[satID]; taken && owner != gs.ID {
			// Another station won this satellite earlier in the step.
			stats.idleSteps++
			e.metrics.IncDecision(gs.ID, "conflict")
			e.log.Debug(ctx, "scheduling conflict discarded",
				logging.String("ground_station", gs.ID),
				logging.String("satellite", satID),
				logging.String("holder", owner),
			)
			continue
		}

		committed[satID] = gs.ID
		newAssignments[gs.ID] = satID
		stats.stepsConnected++
		e.metrics.IncDecision(gs.ID, "serve")

		// Downlink transfer at the station's configured rate.
		capacityBits := uint64(gs.DownlinkMbps * 1e6 * tickSeconds)
		drained := sensors[satID].DrainBuffer(capacityBits)
		stats.receivedBits += drained
		e.satStats[satID].downlinkedBits += drained
		e.metrics.AddDownlinkedBits(satID, gs.ID, drained)

		e.rec.Meas("downlink-Mbps", now, float64(drained)/1e6/tickSeconds)
		e.rec.Meas("downlink-tx-rx-"+satID+"-"+gs.ID, now, float64(drained)/BitsPerMB)
	}

	e.assignments = newAssignments
}

// Assignment returns the satellite currently assigned to a ground station,
// or ("", false) if the station served nothing last step.
func (e *Engine) Assignment(gsID string) (string, bool) {
	satID, ok := e.assignments[gsID]
	return satID, ok
}

// SatelliteReport is one satellite's slice of the run summary.
type SatelliteReport struct {
	ID           string
	BufferedMB   float64
	LostMB       float64
	DownlinkedMB float64
	Triggers     uint64
}

// StationReport is one ground station's slice of the run summary.
type StationReport struct {
	ID             string
	StepsConnected uint64
	IdleSteps      uint64
	ReceivedMB     float64
}

// Summary is the end-of-run report.
type Summary struct {
	Steps      uint64
	Satellites []SatelliteReport
	Stations   []StationReport
}

// Summary snapshots the run statistics in constellation order.
func (e *Engine) Summary() *Summary {
	sensors := e.constellation.Sensors()

	s := &Summary{Steps: e.clock.StepCount()}
	for _, sat := range e.constellation.Satellites() {
		sensor := sensors[sat.ID]
		stats := e.satStats[sat.ID]
		s.Satellites = append(s.Satellites, SatelliteReport{
			ID:           sat.ID,
			BufferedMB:   float64(sensor.BitsBuffered()) / BitsPerMB,
			LostMB:       float64(sensor.TotalBitsLost()) / BitsPerMB,
			DownlinkedMB: float64(stats.downlinkedBits) / BitsPerMB,
			Triggers:     stats.triggers,
		})
	}
	for _, gs := range e.constellation.GroundStations() {
		stats := e.stationStats[gs.ID]
		s.Stations = append(s.Stations, StationReport{
			ID:             gs.ID,
			StepsConnected: stats.stepsConnected,
			IdleSteps:      stats.idleSteps,
			ReceivedMB:     float64(stats.receivedBits) / BitsPerMB,
		})
	}
	return s
}
