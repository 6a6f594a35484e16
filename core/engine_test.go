package core

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/downlink-simulator/internal/telemetry"
	"github.com/signalsfoundry/downlink-simulator/timectrl"
)

// stubStrategy fires every satellite's sensor on every step while on is true.
type stubStrategy struct {
	on bool
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) ShouldTriggerObservation(currPosn, prevSensePosn Vec3, prevSenseTime, now time.Time,
	distanceKm, thresholdKm float64, leadSatID string, sats []*Satellite) bool {
	return s.on
}

func (s *stubStrategy) ExecuteObservation(sats []*Satellite, sensors map[string]*Sensor,
	thresholds map[string]float64, threshCoeff float64, now time.Time, rec telemetry.Recorder) {
	triggerAll(sats, sensors, thresholds, threshCoeff, now, rec)
}

func (s *stubStrategy) UpdateFrameState(leadSatID string, currPosn Vec3, now time.Time, sensors map[string]*Sensor) {
}

// stubPolicy always claims the same satellite, ignoring occupancy.
type stubPolicy struct {
	satID string
}

func (p *stubPolicy) Name() string { return "stub" }

func (p *stubPolicy) Decide(visible []string, sensors map[string]*Sensor, occupied map[string]bool,
	now time.Time, gsID string, currentSatID string, stepCount uint64) (string, bool) {
	for _, satID := range visible {
		if satID == p.satID {
			return p.satID, true
		}
	}
	return "", false
}

// engineFixture wires one fixed satellite overhead of stations at the
// reference meridian.
func engineFixture(t *testing.T, bitsPerSense uint64, downlinkMbps float64, stationIDs ...string) *Constellation {
	t.Helper()
	c := NewConstellation()

	posn := Vec3{X: EarthRadiusKm + 550}
	sat := &Satellite{ID: "sat-1", Motion: &FixedMotionModel{Posn: posn}}
	sensor := NewSensor("sat-1", posn, testTime(), nil)
	sensor.SetBitsPerSense(bitsPerSense)
	if err := c.AddSatellite(sat, sensor); err != nil {
		t.Fatal(err)
	}

	for _, id := range stationIDs {
		gs := &GroundStation{
			ID:              id,
			ECEFPosn:        GeodeticToECEF(0, 0, 0),
			MinElevationDeg: 10,
			DownlinkMbps:    downlinkMbps,
		}
		if err := c.AddGroundStation(gs); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func newTestClock() *timectrl.TimeController {
	return timectrl.NewTimeController(testTime(), time.Second, timectrl.Accelerated)
}

func TestNewEngineValidation(t *testing.T) {
	c := engineFixture(t, 100, 10, "gs-1")
	valid := EngineConfig{
		Constellation: c,
		Strategy:      &stubStrategy{},
		Policy:        &stubPolicy{satID: "sat-1"},
		Clock:         newTestClock(),
	}

	if _, err := NewEngine(valid); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"nil constellation", func(cfg *EngineConfig) { cfg.Constellation = nil }},
		{"empty constellation", func(cfg *EngineConfig) { cfg.Constellation = NewConstellation() }},
		{"nil strategy", func(cfg *EngineConfig) { cfg.Strategy = nil }},
		{"nil policy", func(cfg *EngineConfig) { cfg.Policy = nil }},
		{"nil clock", func(cfg *EngineConfig) { cfg.Clock = nil }},
	}
	for _, tc := range tests {
		cfg := valid
		tc.mutate(&cfg)
		if _, err := NewEngine(cfg); err == nil {
			t.Errorf("%s: NewEngine = nil error, want error", tc.name)
		}
	}
}

func TestEngineStepSensesAndDownlinks(t *testing.T) {
	// 8 Mbps over a 1 s tick drains 8e6 bits per step; each step buffers 1e7.
	c := engineFixture(t, 1e7, 8, "gs-1")
	rec := telemetry.NewMemory()

	e, err := NewEngine(EngineConfig{
		Constellation: c,
		Strategy:      &stubStrategy{on: true},
		Policy:        &stubPolicy{satID: "sat-1"},
		Clock:         newTestClock(),
		Recorder:      rec,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Step(context.Background())

	if got := c.Sensor("sat-1").BitsBuffered(); got != 2e6 {
		t.Errorf("buffered after step = %d, want 2e6 (1e7 sensed - 8e6 drained)", got)
	}
	if satID, ok := e.Assignment("gs-1"); !ok || satID != "sat-1" {
		t.Errorf("Assignment(gs-1) = (%q, %v), want sat-1", satID, ok)
	}
	if got := rec.EventsNamed("trigger-time"); len(got) != 1 {
		t.Errorf("trigger-time events = %d, want 1", len(got))
	}
	if got := rec.MeasurementsNamed("downlink-tx-rx-sat-1-gs-1"); len(got) != 1 {
		t.Errorf("downlink measurements = %d, want 1", len(got))
	} else if want := 8e6 / BitsPerMB; !almostEqual(got[0].Value, want, 1e-9) {
		t.Errorf("downlink measurement = %v MB, want %v", got[0].Value, want)
	}
}

func TestEngineConflictDiscard(t *testing.T) {
	// Both stations claim the only satellite; the second one's decision is
	// discarded and counted as an idle step.
	c := engineFixture(t, 1e6, 10, "gs-1", "gs-2")

	e, err := NewEngine(EngineConfig{
		Constellation: c,
		Strategy:      &stubStrategy{on: true},
		Policy:        &stubPolicy{satID: "sat-1"},
		Clock:         newTestClock(),
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Step(context.Background())

	if satID, ok := e.Assignment("gs-1"); !ok || satID != "sat-1" {
		t.Errorf("Assignment(gs-1) = (%q, %v), want sat-1", satID, ok)
	}
	if _, ok := e.Assignment("gs-2"); ok {
		t.Error("Assignment(gs-2) set, want conflict discard")
	}

	s := e.Summary()
	if s.Stations[0].StepsConnected != 1 || s.Stations[0].IdleSteps != 0 {
		t.Errorf("gs-1 stats = %+v, want 1 connected, 0 idle", s.Stations[0])
	}
	if s.Stations[1].StepsConnected != 0 || s.Stations[1].IdleSteps != 1 {
		t.Errorf("gs-2 stats = %+v, want 0 connected, 1 idle", s.Stations[1])
	}
}

func TestEngineRunSummary(t *testing.T) {
	c := engineFixture(t, 1e6, 100, "gs-1")

	e, err := NewEngine(EngineConfig{
		Constellation: c,
		Strategy:      &stubStrategy{on: true},
		Policy:        &stubPolicy{satID: "sat-1"},
		Clock:         newTestClock(),
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := e.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if s.Steps != 10 {
		t.Errorf("Steps = %d, want 10", s.Steps)
	}
	if len(s.Satellites) != 1 || len(s.Stations) != 1 {
		t.Fatalf("summary shape = %d satellites, %d stations", len(s.Satellites), len(s.Stations))
	}
	if s.Satellites[0].Triggers != 10 {
		t.Errorf("Triggers = %d, want 10", s.Satellites[0].Triggers)
	}
	// 100 Mbps drains each 1e6-bit sense fully every step.
	if want := 10 * 1e6 / BitsPerMB; !almostEqual(s.Satellites[0].DownlinkedMB, want, 1e-9) {
		t.Errorf("DownlinkedMB = %v, want %v", s.Satellites[0].DownlinkedMB, want)
	}
	if s.Stations[0].StepsConnected != 10 {
		t.Errorf("StepsConnected = %d, want 10", s.Stations[0].StepsConnected)
	}
}

func TestEngineRunStopsOnCancelledContext(t *testing.T) {
	c := engineFixture(t, 1e6, 10, "gs-1")

	e, err := NewEngine(EngineConfig{
		Constellation: c,
		Strategy:      &stubStrategy{},
		Policy:        &stubPolicy{satID: "sat-1"},
		Clock:         newTestClock(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Run(ctx, 100); err == nil {
		t.Error("Run with cancelled context = nil error, want interruption error")
	}
}

func TestEngineStepWithoutTriggerIsIdle(t *testing.T) {
	// No sensing and an empty buffer: the station has nothing to serve.
	c := engineFixture(t, 1e6, 10, "gs-1")

	e, err := NewEngine(EngineConfig{
		Constellation: c,
		Strategy:      &stubStrategy{on: false},
		Policy:        &StickyPolicy{},
		Clock:         newTestClock(),
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Step(context.Background())

	if got := c.Sensor("sat-1").BitsBuffered(); got != 0 {
		t.Errorf("buffered = %d, want 0", got)
	}
	s := e.Summary()
	if s.Stations[0].IdleSteps != 1 {
		t.Errorf("IdleSteps = %d, want 1", s.Stations[0].IdleSteps)
	}
}

func TestEngineOccupancyCarriesAcrossSteps(t *testing.T) {
	// gs-1 serves the satellite on step 1. On step 2 the occupancy seeded
	// from the previous assignment keeps gs-2's sticky pick away from it.
	c := engineFixture(t, 1e6, 1, "gs-1", "gs-2")

	e, err := NewEngine(EngineConfig{
		Constellation: c,
		Strategy:      &stubStrategy{on: true},
		Policy:        &StickyPolicy{},
		Clock:         newTestClock(),
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Step(context.Background())
	e.Step(context.Background())

	if satID, ok := e.Assignment("gs-1"); !ok || satID != "sat-1" {
		t.Errorf("Assignment(gs-1) = (%q, %v), want sticky hold on sat-1", satID, ok)
	}
	if _, ok := e.Assignment("gs-2"); ok {
		t.Error("Assignment(gs-2) set, want idle while gs-1 holds the satellite")
	}
}
