package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/downlink-simulator/internal/telemetry"
)

// BitsPerMB converts bits to megabytes for reporting.
const BitsPerMB = 8.0 * 1024.0 * 1024.0

// Sensor is the per-satellite observation buffer: a pending sense trigger,
// buffered bits bounded by a capacity, a cumulative loss counter, and a
// bookmark of the position/time of the last applied sense.
//
// Accumulation beyond capacity is clipped to capacity and the clipped excess
// is added to the loss counter; overflow is accounted data, not an error.
type Sensor struct {
	satID string
	rec   telemetry.Recorder

	senseTrigger      bool
	bitsBuffered      uint64
	bitsPerSense      uint64
	maxBufferCapacity uint64
	totalBitsLost     uint64

	prevSensePosn Vec3
	prevSenseTime time.Time
}

// NewSensor constructs a sensor for the given satellite with an unbounded
// buffer, bookmarked at the satellite's creation position and time.
func NewSensor(satID string, eciPosn Vec3, now time.Time, rec telemetry.Recorder) *Sensor {
	if rec == nil {
		rec = telemetry.Noop()
	}
	return &Sensor{
		satID:             satID,
		rec:               rec,
		maxBufferCapacity: math.MaxUint64,
		prevSensePosn:     eciPosn,
		prevSenseTime:     now,
	}
}

// SatID returns the owning satellite's identifier.
func (s *Sensor) SatID() string { return s.satID }

// SenseTrigger reports whether a sense is pending.
func (s *Sensor) SenseTrigger() bool { return s.senseTrigger }

// BitsBuffered returns the current buffer occupancy in bits.
func (s *Sensor) BitsBuffered() uint64 { return s.bitsBuffered }

// BitsPerSense returns the bits produced per sensing event.
func (s *Sensor) BitsPerSense() uint64 { return s.bitsPerSense }

// MaxBufferCapacity returns the buffer capacity in bits.
func (s *Sensor) MaxBufferCapacity() uint64 { return s.maxBufferCapacity }

// TotalBitsLost returns the cumulative bits lost to overflow.
func (s *Sensor) TotalBitsLost() uint64 { return s.totalBitsLost }

// PrevSensePosn returns the ECI position recorded at the last applied sense.
func (s *Sensor) PrevSensePosn() Vec3 { return s.prevSensePosn }

// PrevSenseTime returns the simulation time recorded at the last applied sense.
func (s *Sensor) PrevSenseTime() time.Time { return s.prevSenseTime }

// SetBitsPerSense sets the bits produced per sensing event.
func (s *Sensor) SetBitsPerSense(bits uint64) { s.bitsPerSense = bits }

// SetMaxBufferCapacity sets the buffer capacity in bits.
func (s *Sensor) SetMaxBufferCapacity(capacityBits uint64) { s.maxBufferCapacity = capacityBits }

// TriggerSense marks a sense as pending. Idempotent; the effect is deferred
// until the next Update.
func (s *Sensor) TriggerSense() { s.senseTrigger = true }

// SetPrevSensePosnDateTime bookmarks the position/time of the last sense
// without a full sense event. Frame-spaced strategies use this to keep a
// skipped satellite's displacement tracking honest.
func (s *Sensor) SetPrevSensePosnDateTime(eciPosn Vec3, t time.Time) {
	s.prevSensePosn = eciPosn
	s.prevSenseTime = t
}

// Update applies a pending sense trigger at the current position and time.
// The caller must have already advanced the satellite's position for this
// step. On overflow the buffer is clamped to capacity, the clipped excess is
// added to the loss counter, and a cumulative-loss measurement is emitted.
// Without a pending trigger this is a no-op.
func (s *Sensor) Update(now time.Time, eciPosn Vec3) {
	if !s.senseTrigger {
		return
	}

	if s.bitsPerSense > s.maxBufferCapacity-s.bitsBuffered {
		excess := s.bitsPerSense - (s.maxBufferCapacity - s.bitsBuffered)
		s.bitsBuffered = s.maxBufferCapacity
		s.totalBitsLost += excess
		s.rec.Meas("buffer-overflow-sat-"+s.satID, now, float64(s.totalBitsLost)/BitsPerMB)
	} else {
		s.bitsBuffered += s.bitsPerSense
	}

	s.SetPrevSensePosnDateTime(eciPosn, now)
	s.senseTrigger = false
}

// DrainBuffer removes up to bits from the buffer and returns the amount
// actually drained. Never underflows.
func (s *Sensor) DrainBuffer(bits uint64) uint64 {
	if s.bitsBuffered >= bits {
		s.bitsBuffered -= bits
		return bits
	}
	drained := s.bitsBuffered
	s.bitsBuffered = 0
	return drained
}
