// Package feed ingests line-delimited telemetry and routes each message to
// exactly one world-service update.
//
// Every line is a JSON envelope:
//
//	{"kind": "chassis", "data": {...}}
//
// where kind is one of chassis, localization, planning, perception or monitor
// and data is the message in its upstream field names.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/simworld/internal/simworld"
)

// ErrUnknownKind is returned for envelopes whose kind is not routable.
var ErrUnknownKind = errors.New("unknown message kind")

// Kind names a telemetry message type.
type Kind string

const (
	KindChassis      Kind = "chassis"
	KindLocalization Kind = "localization"
	KindPlanning     Kind = "planning"
	KindPerception   Kind = "perception"
	KindMonitor      Kind = "monitor"
)

// Kinds lists every routable kind in display order.
var Kinds = []Kind{KindChassis, KindLocalization, KindPlanning, KindPerception, KindMonitor}

// Updater is the subset of the world service the feed drives.
type Updater interface {
	UpdateChassis(*simworld.Chassis)
	UpdateLocalization(*simworld.LocalizationEstimate)
	UpdateTrajectory(*simworld.ADCTrajectory)
	UpdatePerception(*simworld.PerceptionObstacles)
	UpdateMonitor(*simworld.MonitorMessage)
}

// MonitorSink receives monitor batches after they are applied, e.g. for
// archiving. It must not block for long.
type MonitorSink func(*simworld.MonitorMessage)

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Dispatcher decodes envelopes and applies them to an Updater.
type Dispatcher struct {
	updater Updater
	sink    MonitorSink

	mu     sync.Mutex
	counts map[Kind]uint64
	errors uint64
}

// NewDispatcher creates a Dispatcher for u.
func NewDispatcher(u Updater) *Dispatcher {
	return &Dispatcher{
		updater: u,
		counts:  make(map[Kind]uint64, len(Kinds)),
	}
}

// SetMonitorSink registers a callback for applied monitor batches.
func (d *Dispatcher) SetMonitorSink(sink MonitorSink) {
	d.sink = sink
}

// HandleLine decodes one line and applies it. Blank lines and lines starting
// with '#' are ignored and return an empty kind.
func (d *Dispatcher) HandleLine(line string) (Kind, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil
	}
	kind, err := d.apply([]byte(line))
	d.mu.Lock()
	if err != nil {
		d.errors++
	} else {
		d.counts[kind]++
	}
	d.mu.Unlock()
	return kind, err
}

func (d *Dispatcher) apply(raw []byte) (Kind, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("failed to decode envelope: %w", err)
	}

	switch env.Kind {
	case KindChassis:
		var m simworld.Chassis
		if err := decode(env, &m); err != nil {
			return env.Kind, err
		}
		d.updater.UpdateChassis(&m)
	case KindLocalization:
		var m simworld.LocalizationEstimate
		if err := decode(env, &m); err != nil {
			return env.Kind, err
		}
		d.updater.UpdateLocalization(&m)
	case KindPlanning:
		var m simworld.ADCTrajectory
		if err := decode(env, &m); err != nil {
			return env.Kind, err
		}
		d.updater.UpdateTrajectory(&m)
	case KindPerception:
		var m simworld.PerceptionObstacles
		if err := decode(env, &m); err != nil {
			return env.Kind, err
		}
		d.updater.UpdatePerception(&m)
	case KindMonitor:
		var m simworld.MonitorMessage
		if err := decode(env, &m); err != nil {
			return env.Kind, err
		}
		d.updater.UpdateMonitor(&m)
		if d.sink != nil {
			d.sink(&m)
		}
	default:
		return env.Kind, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	return env.Kind, nil
}

func decode(env envelope, v any) error {
	if len(env.Data) == 0 {
		// An envelope without data is an all-defaults message.
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s message: %w", env.Kind, err)
	}
	return nil
}

// DispatchStats is a point-in-time copy of the dispatch counters.
type DispatchStats struct {
	Counts map[Kind]uint64
	Errors uint64
}

// Stats returns the number of applied messages per kind and the error count.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	counts := make(map[Kind]uint64, len(d.counts))
	for k, v := range d.counts {
		counts[k] = v
	}
	return DispatchStats{Counts: counts, Errors: d.errors}
}
