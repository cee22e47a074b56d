package simworld

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/simworld/internal/geom"
)

// MaxMonitorItems bounds the monitor log held in the snapshot.
const MaxMonitorItems = 30

// WorldSnapshot is the display-oriented aggregate of everything the service
// has heard. Handlers own disjoint fields; the Service owns the whole value.
type WorldSnapshot struct {
	// Sequence increments on every applied update.
	Sequence uint64 `json:"sequence"`

	AutoDrivingCar     VehicleObject     `json:"auto_driving_car"`
	Objects            []DisplayObject   `json:"object"`
	PlanningTrajectory []TrajectoryPoint `json:"planning_trajectory"`
	Monitor            Monitor           `json:"monitor"`
}

// Clone returns a deep copy that shares no slices with w.
func (w *WorldSnapshot) Clone() WorldSnapshot {
	out := *w
	if w.Objects != nil {
		out.Objects = make([]DisplayObject, len(w.Objects))
		for i, o := range w.Objects {
			out.Objects[i] = o.clone()
		}
	}
	if w.PlanningTrajectory != nil {
		out.PlanningTrajectory = make([]TrajectoryPoint, len(w.PlanningTrajectory))
		for i, p := range w.PlanningTrajectory {
			p.Polygon = append([]geom.Point2D(nil), p.Polygon...)
			out.PlanningTrajectory[i] = p
		}
	}
	if w.Monitor.Items != nil {
		out.Monitor.Items = append([]LogItem(nil), w.Monitor.Items...)
	}
	return out
}

// VehicleObject is the ego vehicle. It always exists.
type VehicleObject struct {
	TimestampSec float64 `json:"timestamp_sec"`

	// Pose (localization)
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`
	Heading   float64 `json:"heading"`

	// Dimensions (vehicle configuration)
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// Dynamics (chassis)
	Speed              float64       `json:"speed"`
	ThrottlePercentage float64       `json:"throttle_percentage"`
	BrakePercentage    float64       `json:"brake_percentage"`
	SteeringAngle      float64       `json:"steering_angle"`
	CurrentSignal      Signal        `json:"current_signal"`
	DisengageType      DisengageType `json:"disengage_type"`
}

// Signal is the display turn-signal state.
type Signal int

const (
	SignalNone Signal = iota
	SignalLeft
	SignalRight
	SignalEmergency
)

var signalNames = [...]string{
	SignalNone:      "NONE",
	SignalLeft:      "LEFT",
	SignalRight:     "RIGHT",
	SignalEmergency: "EMERGENCY",
}

func (s Signal) String() string {
	if s < 0 || int(s) >= len(signalNames) {
		return fmt.Sprintf("Signal(%d)", int(s))
	}
	return signalNames[s]
}

// MarshalText renders the symbolic name for JSON consumers.
func (s Signal) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signal) UnmarshalText(text []byte) error {
	i, err := lookupName(signalNames[:], "signal", text)
	*s = Signal(i)
	return err
}

// DisengageType describes who is in control of the vehicle.
type DisengageType int

const (
	DisengageNone DisengageType = iota
	DisengageUnknown
	DisengageManual
	DisengageAutoSteerOnly
	DisengageAutoSpeedOnly
	DisengageEmergency
)

var disengageNames = [...]string{
	DisengageNone:          "DISENGAGE_NONE",
	DisengageUnknown:       "DISENGAGE_UNKNOWN",
	DisengageManual:        "DISENGAGE_MANUAL",
	DisengageAutoSteerOnly: "DISENGAGE_AUTO_STEER_ONLY",
	DisengageAutoSpeedOnly: "DISENGAGE_AUTO_SPEED_ONLY",
	DisengageEmergency:     "DISENGAGE_EMERGENCY",
}

func (d DisengageType) String() string {
	if d < 0 || int(d) >= len(disengageNames) {
		return fmt.Sprintf("DisengageType(%d)", int(d))
	}
	return disengageNames[d]
}

func (d DisengageType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DisengageType) UnmarshalText(text []byte) error {
	i, err := lookupName(disengageNames[:], "disengage type", text)
	*d = DisengageType(i)
	return err
}

// ObjectType is the display classification of an object.
type ObjectType int

const (
	ObjectUnknown ObjectType = iota
	ObjectUnknownMovable
	ObjectUnknownUnmovable
	ObjectPedestrian
	ObjectBicycle
	ObjectVehicle
)

var objectTypeNames = [...]string{
	ObjectUnknown:          "UNKNOWN",
	ObjectUnknownMovable:   "UNKNOWN_MOVABLE",
	ObjectUnknownUnmovable: "UNKNOWN_UNMOVABLE",
	ObjectPedestrian:       "PEDESTRIAN",
	ObjectBicycle:          "BICYCLE",
	ObjectVehicle:          "VEHICLE",
}

func (t ObjectType) String() string {
	if t < 0 || int(t) >= len(objectTypeNames) {
		return fmt.Sprintf("ObjectType(%d)", int(t))
	}
	return objectTypeNames[t]
}

func (t ObjectType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ObjectType) UnmarshalText(text []byte) error {
	i, err := lookupName(objectTypeNames[:], "object type", text)
	*t = ObjectType(i)
	return err
}

// Geometry is the shape of a DisplayObject: either a Polygon or a Box.
type Geometry interface {
	isGeometry()
}

// Polygon is an explicit boundary, in order.
type Polygon []geom.Point2D

// Box is a centre pose with extents.
type Box struct {
	PositionX float64
	PositionY float64
	Heading   float64
	Length    float64
	Width     float64
	Height    float64
}

func (Polygon) isGeometry() {}
func (Box) isGeometry()     {}

// DisplayObject is one obstacle as the renderer sees it.
type DisplayObject struct {
	ID           string
	TimestampSec float64
	Type         ObjectType
	Speed        float64
	Geometry     Geometry
}

// PolygonPoints returns the polygon boundary, or nil for box-shaped objects.
func (o DisplayObject) PolygonPoints() []geom.Point2D {
	if p, ok := o.Geometry.(Polygon); ok {
		return p
	}
	return nil
}

// BoxPose returns the box pose, or the zero Box for polygon-shaped objects.
func (o DisplayObject) BoxPose() Box {
	if b, ok := o.Geometry.(Box); ok {
		return b
	}
	return Box{}
}

func (o DisplayObject) clone() DisplayObject {
	if p, ok := o.Geometry.(Polygon); ok {
		o.Geometry = append(Polygon(nil), p...)
	}
	return o
}

// displayObjectJSON is the flat wire shape expected by the frontend.
type displayObjectJSON struct {
	ID           string         `json:"id"`
	TimestampSec float64        `json:"timestamp_sec"`
	Type         ObjectType     `json:"type"`
	Speed        float64        `json:"speed"`
	PolygonPoint []geom.Point2D `json:"polygon_point"`
	PositionX    float64        `json:"position_x"`
	PositionY    float64        `json:"position_y"`
	Heading      float64        `json:"heading"`
	Length       float64        `json:"length"`
	Width        float64        `json:"width"`
	Height       float64        `json:"height"`
}

// MarshalJSON flattens the geometry variant into the frontend's object shape.
func (o DisplayObject) MarshalJSON() ([]byte, error) {
	b := o.BoxPose()
	poly := o.PolygonPoints()
	if poly == nil {
		poly = []geom.Point2D{}
	}
	return json.Marshal(displayObjectJSON{
		ID:           o.ID,
		TimestampSec: o.TimestampSec,
		Type:         o.Type,
		Speed:        o.Speed,
		PolygonPoint: poly,
		PositionX:    b.PositionX,
		PositionY:    b.PositionY,
		Heading:      b.Heading,
		Length:       b.Length,
		Width:        b.Width,
		Height:       b.Height,
	})
}

// UnmarshalJSON restores the geometry variant from the flat shape: a
// non-empty polygon wins, anything else is a box.
func (o *DisplayObject) UnmarshalJSON(data []byte) error {
	var raw displayObjectJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = DisplayObject{
		ID:           raw.ID,
		TimestampSec: raw.TimestampSec,
		Type:         raw.Type,
		Speed:        raw.Speed,
	}
	if len(raw.PolygonPoint) > 0 {
		o.Geometry = Polygon(raw.PolygonPoint)
	} else {
		o.Geometry = Box{
			PositionX: raw.PositionX,
			PositionY: raw.PositionY,
			Heading:   raw.Heading,
			Length:    raw.Length,
			Width:     raw.Width,
			Height:    raw.Height,
		}
	}
	return nil
}

// TrajectoryPoint is one downsampled planning sample.
type TrajectoryPoint struct {
	PositionX float64        `json:"position_x"`
	PositionY float64        `json:"position_y"`
	Heading   float64        `json:"heading"`
	Polygon   []geom.Point2D `json:"polygon_point"`
}

// LogItem is one monitor line. Items are never mutated after creation.
type LogItem struct {
	Source string       `json:"source,omitempty"`
	Msg    string       `json:"msg"`
	Level  MonitorLevel `json:"log_level"`
}

// Monitor is the bounded operator log, newest first.
type Monitor struct {
	TimestampSec float64   `json:"timestamp_sec"`
	Items        []LogItem `json:"item"`
}

var monitorLevelNames = [...]string{
	MonitorInfo:  "INFO",
	MonitorWarn:  "WARN",
	MonitorError: "ERROR",
	MonitorFatal: "FATAL",
}

func (l MonitorLevel) String() string {
	if l < 0 || int(l) >= len(monitorLevelNames) {
		return fmt.Sprintf("MonitorLevel(%d)", int(l))
	}
	return monitorLevelNames[l]
}

// OrInfo returns l, or MonitorInfo when l is outside the known levels.
func (l MonitorLevel) OrInfo() MonitorLevel {
	if l < 0 || int(l) >= len(monitorLevelNames) {
		return MonitorInfo
	}
	return l
}

func (l MonitorLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalJSON accepts either the upstream numeric value or the symbolic name.
func (l *MonitorLevel) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*l = MonitorLevel(n)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("invalid monitor level %s", data)
	}
	i, err := lookupName(monitorLevelNames[:], "monitor level", []byte(name))
	*l = MonitorLevel(i)
	return err
}

func lookupName(names []string, what string, text []byte) (int, error) {
	for i, n := range names {
		if n == string(text) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, text)
}
