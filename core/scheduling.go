package core

import (
	"math/rand"
	"strings"
	"time"
)

// DefaultMinConnectionSteps is the minimum dwell quantum for the policies
// that enforce one.
const DefaultMinConnectionSteps uint64 = 30

// DefaultSchedulingSeed seeds the random policy's deterministic source.
const DefaultSchedulingSeed int64 = 42

// SchedulingPolicy decides, per ground station and per step, which visible
// satellite (if any) is granted the downlink. One instance serves all ground
// stations by design; per-station bookkeeping is keyed by station ID inside
// the instance.
//
// Decide must return ("", false) or the ID of a satellite present in
// visible. It has no side effects beyond the policy's own per-station
// bookkeeping; draining the winner is the engine's job.
type SchedulingPolicy interface {
	// Name returns the policy's configuration name.
	Name() string

	// Decide picks a satellite for the ground station this step.
	// visible holds currently visible satellite IDs in constellation order,
	// occupied marks satellites already committed to a different station
	// this step, currentSatID is the station's assignment from the previous
	// step ("" if none).
	Decide(visible []string, sensors map[string]*Sensor, occupied map[string]bool,
		now time.Time, gsID string, currentSatID string, stepCount uint64) (string, bool)
}

// SchedulingConfig parameterises policy construction. Zero values select
// the package defaults.
type SchedulingConfig struct {
	MinConnectionSteps uint64
	Seed               int64
}

// SchedulingPolicyNames lists the recognised policy names.
func SchedulingPolicyNames() []string {
	return []string{"sticky", "greedy", "fifo", "roundrobin", "random", "sjf", "shortestjobfirst", "srtf", "shortestremainingtime"}
}

// NewSchedulingPolicy constructs a policy by configuration name. An
// unrecognised name falls back to Sticky; this is the documented default,
// not an error.
func NewSchedulingPolicy(name string, cfg SchedulingConfig) SchedulingPolicy {
	quantum := cfg.MinConnectionSteps
	if quantum == 0 {
		quantum = DefaultMinConnectionSteps
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = DefaultSchedulingSeed
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random":
		return &RandomPolicy{
			rng:                rand.New(rand.NewSource(seed)),
			minConnectionSteps: quantum,
			connectionStart:    make(map[string]uint64),
		}
	case "fifo":
		return &FIFOPolicy{queues: make(map[string][]string)}
	case "roundrobin":
		return &RoundRobinPolicy{
			minConnectionSteps: quantum,
			queues:             make(map[string][]string),
			inQueue:            make(map[string]map[string]struct{}),
			connectionStart:    make(map[string]uint64),
		}
	case "sjf", "shortestjobfirst":
		return &ShortestJobFirstPolicy{}
	case "srtf", "shortestremainingtime":
		return &ShortestRemainingTimePolicy{}
	default:
		// "sticky", "greedy", and anything unrecognised.
		return &StickyPolicy{}
	}
}

// StickyPolicy keeps the current satellite unconditionally while it stays
// visible. Otherwise it picks the unoccupied visible satellite with the most
// buffered data, first-encountered winning ties; satellites with empty
// buffers are never picked. The only policy that consults the occupancy map.
type StickyPolicy struct{}

func (p *StickyPolicy) Name() string { return "sticky" }

func (p *StickyPolicy) Decide(visible []string, sensors map[string]*Sensor, occupied map[string]bool,
	now time.Time, gsID string, currentSatID string, stepCount uint64) (string, bool) {
	if currentSatID != "" {
		for _, satID := range visible {
			if satID == currentSatID {
				return currentSatID, true
			}
		}
	}

	best := ""
	var bestBuf uint64
	for _, satID := range visible {
		buf := sensors[satID].BitsBuffered()
		if !occupied[satID] && buf > bestBuf {
			best = satID
			bestBuf = buf
		}
	}
	return best, best != ""
}

// FIFOPolicy is work-conserving: it continues with the current satellite as
// long as it stays visible with a non-empty buffer, then serves satellites
// in the order they became visible. The per-station queue holds each tracked
// satellite at most once; membership is defined by queue contents.
type FIFOPolicy struct {
	queues map[string][]string
}

func (p *FIFOPolicy) Name() string { return "fifo" }

func (p *FIFOPolicy) Decide(visible []string, sensors map[string]*Sensor, occupied map[string]bool,
	now time.Time, gsID string, currentSatID string, stepCount uint64) (string, bool) {
	visibleSet := make(map[string]struct{}, len(visible))
	for _, satID := range visible {
		visibleSet[satID] = struct{}{}
	}

	if currentSatID != "" {
		if _, ok := visibleSet[currentSatID]; ok && sensors[currentSatID].BitsBuffered() > 0 {
			return currentSatID, true
		}
	}

	queue := p.queues[gsID]

	// Enqueue newly visible satellites at the back, preserving arrival order.
	for _, satID := range visible {
		inQueue := false
		for _, queued := range queue {
			if queued == satID {
				inQueue = true
				break
			}
		}
		if !inQueue {
			queue = append(queue, satID)
		}
	}

	// Pop from the front, dropping entries that left visibility, until a
	// satellite with buffered data is found.
	for len(queue) > 0 {
		front := queue[0]
		queue = queue[1:]
		if _, ok := visibleSet[front]; !ok {
			continue
		}
		if sensors[front].BitsBuffered() > 0 {
			p.queues[gsID] = queue
			return front, true
		}
	}

	p.queues[gsID] = queue
	return "", false
}

// RoundRobinPolicy uses FIFO's queueing discipline but enforces a minimum
// dwell quantum: a newly assigned satellite is held for minConnectionSteps
// steps while visible, regardless of other candidates. The membership set
// mirrors queue contents exactly, so a served satellite re-enters the queue
// at the back on a later pass while it remains visible.
type RoundRobinPolicy struct {
	minConnectionSteps uint64

	queues          map[string][]string
	inQueue         map[string]map[string]struct{}
	connectionStart map[string]uint64
}

func (p *RoundRobinPolicy) Name() string { return "roundrobin" }

func (p *RoundRobinPolicy) Decide(visible []string, sensors map[string]*Sensor, occupied map[string]bool,
	now time.Time, gsID string, currentSatID string, stepCount uint64) (string, bool) {
	visibleSet := make(map[string]struct{}, len(visible))
	for _, satID := range visible {
		visibleSet[satID] = struct{}{}
	}

	if currentSatID != "" {
		_, currentVisible := visibleSet[currentSatID]
		if currentVisible && stepCount-p.connectionStart[gsID] < p.minConnectionSteps {
			return currentSatID, true
		}
	}

	inQueue := p.inQueue[gsID]
	if inQueue == nil {
		inQueue = make(map[string]struct{})
		p.inQueue[gsID] = inQueue
	}
	queue := p.queues[gsID]

	for _, satID := range visible {
		if _, ok := inQueue[satID]; !ok {
			queue = append(queue, satID)
			inQueue[satID] = struct{}{}
		}
	}

	for len(queue) > 0 {
		front := queue[0]
		queue = queue[1:]
		delete(inQueue, front)
		if _, ok := visibleSet[front]; !ok {
			continue
		}
		if sensors[front].BitsBuffered() > 0 {
			p.queues[gsID] = queue
			p.connectionStart[gsID] = stepCount
			return front, true
		}
	}

	p.queues[gsID] = queue
	return "", false
}

// RandomPolicy enforces the same dwell quantum as round-robin and otherwise
// draws uniformly among visible satellites with buffered data, ignoring
// occupancy. The source is seeded once at construction so runs are
// reproducible; determinism also depends on the engine evaluating ground
// stations in a fixed order.
type RandomPolicy struct {
	rng                *rand.Rand
	minConnectionSteps uint64
	connectionStart    map[string]uint64
}

func (p *RandomPolicy) Name() string { return "random" }

func (p *RandomPolicy) Decide(visible []string, sensors map[string]*Sensor, occupied map[string]bool,
	now time.Time, gsID string, currentSatID string, stepCount uint64) (string, bool) {
	if currentSatID != "" {
		currentVisible := false
		for _, satID := range visible {
			if satID == currentSatID {
				currentVisible = true
				break
			}
		}
		if currentVisible && stepCount-p.connectionStart[gsID] < p.minConnectionSteps {
			return currentSatID, true
		}
	}

	var eligible []string
	for _, satID := range visible {
		if sensors[satID].BitsBuffered() > 0 {
			eligible = append(eligible, satID)
		}
	}
	if len(eligible) == 0 {
		return "", false
	}

	selected := eligible[p.rng.Intn(len(eligible))]
	p.connectionStart[gsID] = stepCount
	return selected, true
}

// ShortestJobFirstPolicy is an acknowledged placeholder: it serves the first
// visible satellite with buffered data in iteration order. True job-length
// ranking is deliberately not inferred from the name.
type ShortestJobFirstPolicy struct{}

func (p *ShortestJobFirstPolicy) Name() string { return "shortestjobfirst" }

func (p *ShortestJobFirstPolicy) Decide(visible []string, sensors map[string]*Sensor, occupied map[string]bool,
	now time.Time, gsID string, currentSatID string, stepCount uint64) (string, bool) {
	return firstWithData(visible, sensors)
}

// ShortestRemainingTimePolicy is an acknowledged placeholder with the same
// behaviour as ShortestJobFirstPolicy.
type ShortestRemainingTimePolicy struct{}

func (p *ShortestRemainingTimePolicy) Name() string { return "shortestremainingtime" }

func (p *ShortestRemainingTimePolicy) Decide(visible []string, sensors map[string]*Sensor, occupied map[string]bool,
	now time.Time, gsID string, currentSatID string, stepCount uint64) (string, bool) {
	return firstWithData(visible, sensors)
}

func firstWithData(visible []string, sensors map[string]*Sensor) (string, bool) {
	for _, satID := range visible {
		if sensors[satID].BitsBuffered() > 0 {
			return satID, true
		}
	}
	return "", false
}
