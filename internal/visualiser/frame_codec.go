package visualiser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/simworld/internal/simworld"
)

// StreamOptions selects which parts of the world a client receives. The
// ego vehicle and sequence are always sent.
type StreamOptions struct {
	IncludeObjects    bool
	IncludeTrajectory bool
	IncludeMonitor    bool
}

// DefaultStreamOptions includes everything.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{IncludeObjects: true, IncludeTrajectory: true, IncludeMonitor: true}
}

func (o *StreamOptions) set(key string, v bool) error {
	switch key {
	case "include_objects":
		o.IncludeObjects = v
	case "include_trajectory":
		o.IncludeTrajectory = v
	case "include_monitor":
		o.IncludeMonitor = v
	default:
		return fmt.Errorf("unknown stream option %q", key)
	}
	return nil
}

// optionsFromStruct reads options from a gRPC request. Absent options
// default to true.
func optionsFromStruct(req *structpb.Struct) (StreamOptions, error) {
	opts := DefaultStreamOptions()
	for key, v := range req.GetFields() {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return opts, fmt.Errorf("stream option %q must be a bool", key)
		}
		if err := opts.set(key, b.BoolValue); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// optionsFromQuery reads options from websocket URL parameters.
func optionsFromQuery(q url.Values) (StreamOptions, error) {
	opts := DefaultStreamOptions()
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		b, err := strconv.ParseBool(vals[len(vals)-1])
		if err != nil {
			return opts, fmt.Errorf("stream option %q: %w", key, err)
		}
		if err := opts.set(key, b); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// Struct returns the options as a gRPC request message.
func (o StreamOptions) Struct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"include_objects":    structpb.NewBoolValue(o.IncludeObjects),
		"include_trajectory": structpb.NewBoolValue(o.IncludeTrajectory),
		"include_monitor":    structpb.NewBoolValue(o.IncludeMonitor),
	}}
}

// frameMap renders a frame in the world's JSON shape with excluded
// sections removed.
func frameMap(frame *Frame, opts StreamOptions) (map[string]any, error) {
	raw, err := json.Marshal(frame.World)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if !opts.IncludeObjects {
		delete(m, "object")
	}
	if !opts.IncludeTrajectory {
		delete(m, "planning_trajectory")
	}
	if !opts.IncludeMonitor {
		delete(m, "monitor")
	}
	m["frame_id"] = frame.FrameID
	m["timestamp_ns"] = frame.TimestampNanos
	return m, nil
}

func frameToStruct(frame *Frame, opts StreamOptions) (*structpb.Struct, error) {
	m, err := frameMap(frame, opts)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// WorldFromStruct decodes a streamed frame back into a snapshot. Sections
// the stream excluded are left empty.
func WorldFromStruct(s *structpb.Struct) (simworld.WorldSnapshot, error) {
	var world simworld.WorldSnapshot
	raw, err := protojson.Marshal(s)
	if err != nil {
		return world, err
	}
	err = json.Unmarshal(raw, &world)
	return world, err
}
