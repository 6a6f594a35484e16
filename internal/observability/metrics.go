package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles the simulator's Prometheus metrics: per-satellite
// buffer gauges and loss/trigger/downlink counters, per-station decision
// counters, and step counters/durations.
type SimCollector struct {
	gatherer prometheus.Gatherer

	SensorBufferedBits *prometheus.GaugeVec
	SensorBitsLost     *prometheus.CounterVec
	SensorTriggers     *prometheus.CounterVec
	DownlinkedBits     *prometheus.CounterVec
	StationDecisions   *prometheus.CounterVec
	Steps              prometheus.Counter
	StepDuration       prometheus.Histogram
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	buffered := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_sensor_buffered_bits",
		Help: "Bits currently buffered in each satellite's sensor.",
	}, []string{"satellite"})
	buffered, err := registerGaugeVec(reg, buffered, "sim_sensor_buffered_bits")
	if err != nil {
		return nil, err
	}

	lost := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_sensor_bits_lost_total",
		Help: "Cumulative bits lost to buffer overflow per satellite.",
	}, []string{"satellite"})
	lost, err = registerCounterVec(reg, lost, "sim_sensor_bits_lost_total")
	if err != nil {
		return nil, err
	}

	triggers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_sensor_triggers_total",
		Help: "Cumulative sensing events applied per satellite.",
	}, []string{"satellite"})
	triggers, err = registerCounterVec(reg, triggers, "sim_sensor_triggers_total")
	if err != nil {
		return nil, err
	}

	downlinked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_downlink_bits_total",
		Help: "Cumulative bits downlinked, labeled by satellite and ground station.",
	}, []string{"satellite", "station"})
	downlinked, err = registerCounterVec(reg, downlinked, "sim_downlink_bits_total")
	if err != nil {
		return nil, err
	}

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_station_decisions_total",
		Help: "Scheduling decision outcomes per ground station (serve, idle, conflict).",
	}, []string{"station", "outcome"})
	decisions, err = registerCounterVec(reg, decisions, "sim_station_decisions_total")
	if err != nil {
		return nil, err
	}

	steps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_steps_total",
		Help: "Completed simulation steps.",
	})
	steps, err = registerCounter(reg, steps, "sim_steps_total")
	if err != nil {
		return nil, err
	}

	stepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_step_duration_seconds",
		Help:    "Wall-clock duration of one simulation step.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	stepDuration, err = registerHistogram(reg, stepDuration, "sim_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:           gatherer,
		SensorBufferedBits: buffered,
		SensorBitsLost:     lost,
		SensorTriggers:     triggers,
		DownlinkedBits:     downlinked,
		StationDecisions:   decisions,
		Steps:              steps,
		StepDuration:       stepDuration,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetBufferedBits updates a satellite's buffer occupancy gauge.
func (c *SimCollector) SetBufferedBits(satID string, bits uint64) {
	if c == nil || c.SensorBufferedBits == nil {
		return
	}
	c.SensorBufferedBits.WithLabelValues(satID).Set(float64(bits))
}

// AddBitsLost adds newly lost bits to a satellite's loss counter.
func (c *SimCollector) AddBitsLost(satID string, bits uint64) {
	if c == nil || c.SensorBitsLost == nil {
		return
	}
	c.SensorBitsLost.WithLabelValues(satID).Add(float64(bits))
}

// IncTrigger counts one applied sensing event for a satellite.
func (c *SimCollector) IncTrigger(satID string) {
	if c == nil || c.SensorTriggers == nil {
		return
	}
	c.SensorTriggers.WithLabelValues(satID).Inc()
}

// AddDownlinkedBits counts bits transferred from a satellite to a station.
func (c *SimCollector) AddDownlinkedBits(satID, stationID string, bits uint64) {
	if c == nil || c.DownlinkedBits == nil {
		return
	}
	c.DownlinkedBits.WithLabelValues(satID, stationID).Add(float64(bits))
}

// IncDecision counts one scheduling decision outcome for a station.
func (c *SimCollector) IncDecision(stationID, outcome string) {
	if c == nil || c.StationDecisions == nil {
		return
	}
	c.StationDecisions.WithLabelValues(stationID, outcome).Inc()
}

// ObserveStep records one completed step and its wall-clock duration.
func (c *SimCollector) ObserveStep(d time.Duration) {
	if c == nil {
		return
	}
	if c.Steps != nil {
		c.Steps.Inc()
	}
	if c.StepDuration != nil {
		c.StepDuration.Observe(d.Seconds())
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
