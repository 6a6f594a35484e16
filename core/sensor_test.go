package core

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/signalsfoundry/downlink-simulator/internal/telemetry"
)

func testTime() time.Time {
	return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
}

func TestSensorDefaults(t *testing.T) {
	posn := Vec3{X: 7000, Y: 0, Z: 0}
	now := testTime()
	s := NewSensor("sat-1", posn, now, nil)

	if s.SenseTrigger() {
		t.Errorf("new sensor has pending trigger")
	}
	if s.BitsBuffered() != 0 {
		t.Errorf("BitsBuffered = %d, want 0", s.BitsBuffered())
	}
	if s.MaxBufferCapacity() != math.MaxUint64 {
		t.Errorf("MaxBufferCapacity = %d, want unbounded", s.MaxBufferCapacity())
	}
	if s.PrevSensePosn() != posn {
		t.Errorf("PrevSensePosn = %+v, want %+v", s.PrevSensePosn(), posn)
	}
	if !s.PrevSenseTime().Equal(now) {
		t.Errorf("PrevSenseTime = %v, want %v", s.PrevSenseTime(), now)
	}
}

func TestSensorUpdateWithoutTriggerIsNoOp(t *testing.T) {
	posn := Vec3{X: 7000, Y: 0, Z: 0}
	s := NewSensor("sat-1", posn, testTime(), nil)
	s.SetBitsPerSense(500)

	later := testTime().Add(time.Minute)
	s.Update(later, Vec3{X: 0, Y: 7000, Z: 0})

	if s.BitsBuffered() != 0 {
		t.Errorf("BitsBuffered = %d, want 0 without trigger", s.BitsBuffered())
	}
	if s.PrevSensePosn() != posn {
		t.Errorf("bookmark moved without trigger")
	}
}

func TestSensorTriggeredUpdateAccumulatesAndBookmarks(t *testing.T) {
	s := NewSensor("sat-1", Vec3{X: 7000, Y: 0, Z: 0}, testTime(), nil)
	s.SetBitsPerSense(500)

	s.TriggerSense()
	s.TriggerSense() // idempotent

	later := testTime().Add(time.Minute)
	newPosn := Vec3{X: 0, Y: 7000, Z: 0}
	s.Update(later, newPosn)

	if s.BitsBuffered() != 500 {
		t.Errorf("BitsBuffered = %d, want 500", s.BitsBuffered())
	}
	if s.SenseTrigger() {
		t.Errorf("trigger not cleared by Update")
	}
	if s.PrevSensePosn() != newPosn {
		t.Errorf("PrevSensePosn = %+v, want %+v", s.PrevSensePosn(), newPosn)
	}
	if !s.PrevSenseTime().Equal(later) {
		t.Errorf("PrevSenseTime = %v, want %v", s.PrevSenseTime(), later)
	}
}

// Capacity 1000, 600 bits per sense: the second triggered update clamps the
// buffer to capacity with exactly the clipped excess accounted as loss.
func TestSensorOverflowScenario(t *testing.T) {
	rec := telemetry.NewMemory()
	s := NewSensor("sat-7", Vec3{X: 7000, Y: 0, Z: 0}, testTime(), rec)
	s.SetBitsPerSense(600)
	s.SetMaxBufferCapacity(1000)

	now := testTime()
	s.TriggerSense()
	s.Update(now, Vec3{X: 7000, Y: 0, Z: 0})
	if s.BitsBuffered() != 600 {
		t.Fatalf("after first sense BitsBuffered = %d, want 600", s.BitsBuffered())
	}
	if s.TotalBitsLost() != 0 {
		t.Fatalf("after first sense TotalBitsLost = %d, want 0", s.TotalBitsLost())
	}

	now = now.Add(time.Minute)
	s.TriggerSense()
	s.Update(now, Vec3{X: 7000, Y: 100, Z: 0})
	if s.BitsBuffered() != 1000 {
		t.Errorf("after overflow BitsBuffered = %d, want 1000", s.BitsBuffered())
	}
	if s.TotalBitsLost() != 200 {
		t.Errorf("after overflow TotalBitsLost = %d, want 200", s.TotalBitsLost())
	}

	meas := rec.MeasurementsNamed("buffer-overflow-sat-sat-7")
	if len(meas) != 1 {
		t.Fatalf("overflow measurements = %d, want 1", len(meas))
	}
	wantMB := 200.0 / BitsPerMB
	if math.Abs(meas[0].Value-wantMB) > 1e-12 {
		t.Errorf("overflow measurement = %v MB, want %v", meas[0].Value, wantMB)
	}
}

func TestSensorDrainBuffer(t *testing.T) {
	tests := []struct {
		name        string
		buffered    uint64
		drain       uint64
		wantDrained uint64
		wantLeft    uint64
	}{
		{"partial drain", 1000, 400, 400, 600},
		{"exact drain", 1000, 1000, 1000, 0},
		{"over-drain clamps", 300, 1000, 300, 0},
		{"drain empty", 0, 500, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSensor("sat-1", Vec3{}, testTime(), nil)
			s.SetBitsPerSense(tc.buffered)
			s.TriggerSense()
			s.Update(testTime(), Vec3{})

			if got := s.DrainBuffer(tc.drain); got != tc.wantDrained {
				t.Errorf("DrainBuffer(%d) = %d, want %d", tc.drain, got, tc.wantDrained)
			}
			if s.BitsBuffered() != tc.wantLeft {
				t.Errorf("BitsBuffered = %d, want %d", s.BitsBuffered(), tc.wantLeft)
			}
		})
	}
}

// Property check: across any sequence of trigger/update/drain operations the
// buffer never exceeds capacity, the loss counter never decreases, and loss
// grows by exactly the clipped excess of each overflowing accumulation.
func TestSensorInvariantsUnderRandomOps(t *testing.T) {
	const capacity = 10_000
	const perSense = 1700

	rng := rand.New(rand.NewSource(1))
	s := NewSensor("sat-1", Vec3{}, testTime(), nil)
	s.SetBitsPerSense(perSense)
	s.SetMaxBufferCapacity(capacity)

	now := testTime()
	for i := 0; i < 5000; i++ {
		now = now.Add(time.Second)
		switch rng.Intn(3) {
		case 0:
			s.TriggerSense()
		case 1:
			prevBuf := s.BitsBuffered()
			prevLost := s.TotalBitsLost()
			triggered := s.SenseTrigger()
			s.Update(now, Vec3{X: float64(i)})

			if !triggered {
				if s.BitsBuffered() != prevBuf || s.TotalBitsLost() != prevLost {
					t.Fatalf("step %d: untriggered update changed state", i)
				}
				continue
			}
			wantLoss := uint64(0)
			if prevBuf+perSense > capacity {
				wantLoss = prevBuf + perSense - capacity
			}
			if got := s.TotalBitsLost() - prevLost; got != wantLoss {
				t.Fatalf("step %d: loss grew by %d, want %d", i, got, wantLoss)
			}
		case 2:
			prevBuf := s.BitsBuffered()
			bits := uint64(rng.Intn(2 * capacity))
			drained := s.DrainBuffer(bits)
			want := bits
			if prevBuf < bits {
				want = prevBuf
			}
			if drained != want {
				t.Fatalf("step %d: DrainBuffer(%d) = %d, want %d", i, bits, drained, want)
			}
			if s.BitsBuffered() != prevBuf-drained {
				t.Fatalf("step %d: drain underflow", i)
			}
		}

		if s.BitsBuffered() > capacity {
			t.Fatalf("step %d: BitsBuffered %d exceeds capacity %d", i, s.BitsBuffered(), capacity)
		}
	}
}

func TestSensorSetPrevSensePosnDateTime(t *testing.T) {
	s := NewSensor("sat-1", Vec3{X: 7000}, testTime(), nil)

	posn := Vec3{X: 100, Y: 200, Z: 300}
	at := testTime().Add(time.Hour)
	s.SetPrevSensePosnDateTime(posn, at)

	if s.PrevSensePosn() != posn || !s.PrevSenseTime().Equal(at) {
		t.Errorf("bookmark = (%+v, %v), want (%+v, %v)", s.PrevSensePosn(), s.PrevSenseTime(), posn, at)
	}
	if s.BitsBuffered() != 0 || s.SenseTrigger() {
		t.Errorf("bookmark setter touched buffer state")
	}
}
