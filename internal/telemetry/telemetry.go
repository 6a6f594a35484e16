// Package telemetry provides the event/measurement recording surface the
// simulation core produces into. A Recorder accepts two record kinds:
// named events (a timestamp) and named measurements (a timestamp plus a
// scalar value). Series names carry entity identifiers, e.g.
// "buffer-overflow-sat-sat-3".
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/signalsfoundry/downlink-simulator/internal/logging"
)

// TimeLayout is the timestamp format used in CSV output.
const TimeLayout = time.RFC3339

// Recorder accepts simulation events and measurements. Implementations are
// treated as synchronous and non-failing by the core; write errors are the
// recorder's own problem to surface (logged or returned at Close).
type Recorder interface {
	// Evnt records a named event at the given simulation time.
	Evnt(name string, t time.Time)
	// Meas records a named measurement at the given simulation time.
	Meas(name string, t time.Time, value float64)
}

// Noop returns a Recorder that drops all records.
func Noop() Recorder { return noopRecorder{} }

type noopRecorder struct{}

func (noopRecorder) Evnt(string, time.Time)          {}
func (noopRecorder) Meas(string, time.Time, float64) {}

// Event is a single recorded event.
type Event struct {
	Name string
	Time time.Time
}

// Measurement is a single recorded measurement.
type Measurement struct {
	Name  string
	Time  time.Time
	Value float64
}

// Memory is an in-memory Recorder for tests and post-run inspection.
type Memory struct {
	mu           sync.Mutex
	events       []Event
	measurements []Measurement
}

// NewMemory constructs an empty in-memory recorder.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Evnt(name string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Name: name, Time: t})
}

func (m *Memory) Meas(name string, t time.Time, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.measurements = append(m.measurements, Measurement{Name: name, Time: t, Value: value})
}

// Events returns a copy of all recorded events in record order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Measurements returns a copy of all recorded measurements in record order.
func (m *Memory) Measurements() []Measurement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Measurement, len(m.measurements))
	copy(out, m.measurements)
	return out
}

// MeasurementsNamed returns recorded measurements for a single series.
func (m *Memory) MeasurementsNamed(name string) []Measurement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Measurement
	for _, meas := range m.measurements {
		if meas.Name == name {
			out = append(out, meas)
		}
	}
	return out
}

// EventsNamed returns recorded events for a single series.
func (m *Memory) EventsNamed(name string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// CSVDir writes one CSV file per series into a directory: evnt-<name>.csv
// holds one timestamp per row, meas-<name>.csv holds timestamp,value rows.
// Files are created lazily on first record for a series.
type CSVDir struct {
	mu    sync.Mutex
	dir   string
	files map[string]*os.File
	errs  []error
}

// NewCSVDir constructs a CSV recorder rooted at dir, creating the directory
// if needed.
func NewCSVDir(dir string) (*CSVDir, error) {
	if dir == "" {
		return nil, fmt.Errorf("telemetry: empty output directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: create output directory %q: %w", dir, err)
	}
	return &CSVDir{dir: dir, files: make(map[string]*os.File)}, nil
}

func (c *CSVDir) Evnt(name string, t time.Time) {
	c.write("evnt-"+name, t.UTC().Format(TimeLayout)+"\n")
}

func (c *CSVDir) Meas(name string, t time.Time, value float64) {
	c.write("meas-"+name, t.UTC().Format(TimeLayout)+","+strconv.FormatFloat(value, 'f', -1, 64)+"\n")
}

func (c *CSVDir) write(series, row string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.files[series]
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(c.dir, series+".csv"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			c.errs = append(c.errs, err)
			return
		}
		c.files[series] = f
	}
	if _, err := f.WriteString(row); err != nil {
		c.errs = append(c.errs, err)
	}
}

// Close flushes and closes all series files, returning the first error
// encountered during the recorder's lifetime.
func (c *CSVDir) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.files {
		if err := f.Close(); err != nil {
			c.errs = append(c.errs, err)
		}
	}
	c.files = make(map[string]*os.File)
	if len(c.errs) > 0 {
		return fmt.Errorf("telemetry: %d write errors, first: %w", len(c.errs), c.errs[0])
	}
	return nil
}

// LogRecorder forwards records to a structured logger at debug level. Useful
// when no CSV output directory is configured.
type LogRecorder struct {
	log logging.Logger
}

// NewLogRecorder constructs a recorder backed by the given logger.
func NewLogRecorder(log logging.Logger) *LogRecorder {
	if log == nil {
		log = logging.Noop()
	}
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Evnt(name string, t time.Time) {
	r.log.Debug(context.Background(), "evnt",
		logging.String("series", name),
		logging.String("time", t.UTC().Format(TimeLayout)),
	)
}

func (r *LogRecorder) Meas(name string, t time.Time, value float64) {
	r.log.Debug(context.Background(), "meas",
		logging.String("series", name),
		logging.String("time", t.UTC().Format(TimeLayout)),
		logging.Any("value", value),
	)
}

// Multi fans records out to several recorders.
type Multi []Recorder

func (m Multi) Evnt(name string, t time.Time) {
	for _, r := range m {
		r.Evnt(name, t)
	}
}

func (m Multi) Meas(name string, t time.Time, value float64) {
	for _, r := range m {
		r.Meas(name, t, value)
	}
}
