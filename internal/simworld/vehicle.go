package simworld

import (
	"github.com/banshee-data/simworld/internal/geom"
)

// VehicleDimensions are the fixed physical extents of the ego vehicle.
type VehicleDimensions struct {
	Length float64
	Width  float64
	Height float64
}

// signalFor maps chassis light state onto the display signal. The emergency
// light overrides any turn signal.
func signalFor(s VehicleSignal) Signal {
	if s.EmergencyLight {
		return SignalEmergency
	}
	switch s.TurnSignal {
	case TurnLeft:
		return SignalLeft
	case TurnRight:
		return SignalRight
	case TurnNone:
		return SignalNone
	}
	return SignalNone
}

func disengageFor(mode DrivingMode) DisengageType {
	switch mode {
	case DrivingModeCompleteAutoDrive:
		return DisengageNone
	case DrivingModeCompleteManual:
		return DisengageManual
	case DrivingModeAutoSteerOnly:
		return DisengageAutoSteerOnly
	case DrivingModeAutoSpeedOnly:
		return DisengageAutoSpeedOnly
	case DrivingModeEmergencyMode:
		return DisengageEmergency
	}
	return DisengageUnknown
}

// ApplyChassis copies chassis dynamics onto car. Values are copied verbatim
// in their upstream units; dimensions always come from dims.
func ApplyChassis(car *VehicleObject, chassis *Chassis, dims VehicleDimensions) {
	car.Length = dims.Length
	car.Width = dims.Width
	car.Height = dims.Height

	car.Speed = chassis.SpeedMps
	car.ThrottlePercentage = chassis.ThrottlePercentage
	car.BrakePercentage = chassis.BrakePercentage
	car.SteeringAngle = chassis.SteeringPercentage
	car.CurrentSignal = signalFor(chassis.Signal)
	car.DisengageType = disengageFor(chassis.DrivingMode)

	car.TimestampSec = max(car.TimestampSec, chassis.Header.TimestampSec)
}

// ApplyLocalization copies the pose position onto car and derives heading
// from the orientation quaternion. Any heading carried by the message is
// ignored.
func ApplyLocalization(car *VehicleObject, loc *LocalizationEstimate) {
	pose := loc.Pose
	car.PositionX = pose.Position.X
	car.PositionY = pose.Position.Y
	car.Heading = geom.QuaternionToHeading(
		pose.Orientation.Qw, pose.Orientation.Qx, pose.Orientation.Qy, pose.Orientation.Qz)

	car.TimestampSec = max(car.TimestampSec, loc.Header.TimestampSec)
}
