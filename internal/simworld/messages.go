package simworld

// This file defines the inbound telemetry messages. They mirror the upstream
// message shapes field-for-field; absent fields decode as zero values.

// Header carries the upstream publish time of a message.
type Header struct {
	TimestampSec float64 `json:"timestamp_sec"`
	ModuleName   string  `json:"module_name,omitempty"`
	SequenceNum  uint32  `json:"sequence_num,omitempty"`
}

// TurnSignal is the chassis turn-signal state.
type TurnSignal int

const (
	TurnNone  TurnSignal = 0
	TurnLeft  TurnSignal = 1
	TurnRight TurnSignal = 2
)

// VehicleSignal groups the chassis light states.
type VehicleSignal struct {
	TurnSignal     TurnSignal `json:"turn_signal"`
	EmergencyLight bool       `json:"emergency_light,omitempty"`
}

// DrivingMode is the chassis control authority.
type DrivingMode int

const (
	DrivingModeCompleteManual    DrivingMode = 0
	DrivingModeCompleteAutoDrive DrivingMode = 1
	DrivingModeAutoSteerOnly     DrivingMode = 2
	DrivingModeAutoSpeedOnly     DrivingMode = 3
	DrivingModeEmergencyMode     DrivingMode = 4
)

// Chassis is a vehicle dynamics report.
type Chassis struct {
	Header             Header        `json:"header"`
	SpeedMps           float64       `json:"speed_mps"`
	ThrottlePercentage float64       `json:"throttle_percentage"`
	BrakePercentage    float64       `json:"brake_percentage"`
	SteeringPercentage float64       `json:"steering_percentage"`
	DrivingMode        DrivingMode   `json:"driving_mode"`
	Signal             VehicleSignal `json:"signal"`
}

// Quaternion is an orientation in Hamilton convention.
type Quaternion struct {
	Qw float64 `json:"qw"`
	Qx float64 `json:"qx"`
	Qy float64 `json:"qy"`
	Qz float64 `json:"qz"`
}

// PointENU is a position in the local East-North-Up frame.
type PointENU struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pose is a localization pose. Heading is advisory; the service always
// derives heading from Orientation.
type Pose struct {
	Position    PointENU   `json:"position"`
	Orientation Quaternion `json:"orientation"`
	Heading     float64    `json:"heading,omitempty"`
}

// LocalizationEstimate is a localization fix.
type LocalizationEstimate struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// PathPoint is a spatial sample of a planned path.
type PathPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z,omitempty"`
	Theta float64 `json:"theta,omitempty"`
}

// PlanningPoint is one time-stamped sample of a planned trajectory.
type PlanningPoint struct {
	PathPoint    PathPoint `json:"path_point"`
	V            float64   `json:"v,omitempty"`
	RelativeTime float64   `json:"relative_time"`
}

// ADCTrajectory is a planning output.
type ADCTrajectory struct {
	Header          Header          `json:"header"`
	TrajectoryPoint []PlanningPoint `json:"trajectory_point"`
}

// ObstacleType classifies a perception obstacle.
type ObstacleType int

const (
	ObstacleUnknown          ObstacleType = 0
	ObstacleUnknownMovable   ObstacleType = 1
	ObstacleUnknownUnmovable ObstacleType = 2
	ObstaclePedestrian       ObstacleType = 3
	ObstacleBicycle          ObstacleType = 4
	ObstacleVehicle          ObstacleType = 5
)

// Point is a perception-frame point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// PerceptionObstacle is one detected obstacle. Upstream fills either
// PolygonPoint or the center/box fields.
type PerceptionObstacle struct {
	ID           int32        `json:"id"`
	Position     Point        `json:"position"`
	Theta        float64      `json:"theta"`
	Velocity     Point        `json:"velocity"`
	Length       float64      `json:"length"`
	Width        float64      `json:"width"`
	Height       float64      `json:"height"`
	PolygonPoint []Point      `json:"polygon_point"`
	Timestamp    float64      `json:"timestamp"`
	Type         ObstacleType `json:"type"`
}

// PerceptionObstacles is a perception frame.
type PerceptionObstacles struct {
	Header             Header               `json:"header"`
	PerceptionObstacle []PerceptionObstacle `json:"perception_obstacle"`
}

// MonitorLevel is the severity of a monitor message.
type MonitorLevel int

const (
	MonitorInfo  MonitorLevel = 0
	MonitorWarn  MonitorLevel = 1
	MonitorError MonitorLevel = 2
	MonitorFatal MonitorLevel = 3
)

// MonitorMessageItem is one operator-facing log line.
type MonitorMessageItem struct {
	Source   string       `json:"source,omitempty"`
	Msg      string       `json:"msg"`
	LogLevel MonitorLevel `json:"log_level"`
}

// MonitorMessage is a batch of monitor items, oldest first.
type MonitorMessage struct {
	Header Header               `json:"header"`
	Item   []MonitorMessageItem `json:"item"`
}
