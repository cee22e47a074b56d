package simworld

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/simworld/internal/monitoring"
)

// ErrVehicleParamsUnset is returned by NewService when the vehicle
// dimensions were never loaded.
var ErrVehicleParamsUnset = errors.New("vehicle parameters not initialised")

var logf = monitoring.Component("SimWorld")

// Options configures a Service.
type Options struct {
	// Dimensions of the ego vehicle, from vehicle configuration. Required.
	Dimensions VehicleDimensions

	// TrajectoryStride is the planning downsample stride (default 10).
	TrajectoryStride int

	// MonitorCapacity bounds the monitor log (default MaxMonitorItems).
	MonitorCapacity int

	// DropStaleTrajectory skips planning points that are already behind the
	// vehicle's latest timestamp. The result then depends on whether chassis
	// or localization arrived before the plan, so it is off by default.
	DropStaleTrajectory bool
}

// Service owns the world snapshot and applies telemetry updates to it.
// Updates and reads are serialised by an RWMutex; readers only ever see
// deep copies.
type Service struct {
	mu    sync.RWMutex
	world WorldSnapshot

	dims      VehicleDimensions
	stride    int
	capacity  int
	dropStale bool
}

// NewService creates a Service. It fails if the vehicle dimensions are not
// set, since every footprint and the ego object depend on them.
func NewService(opts Options) (*Service, error) {
	d := opts.Dimensions
	if d.Length <= 0 || d.Width <= 0 || d.Height <= 0 {
		return nil, fmt.Errorf("new service: %w (length=%g width=%g height=%g)",
			ErrVehicleParamsUnset, d.Length, d.Width, d.Height)
	}
	s := &Service{
		dims:      d,
		stride:    opts.TrajectoryStride,
		capacity:  opts.MonitorCapacity,
		dropStale: opts.DropStaleTrajectory,
	}
	if s.stride <= 0 {
		s.stride = DefaultTrajectoryStride
	}
	if s.capacity <= 0 {
		s.capacity = MaxMonitorItems
	}
	s.world.AutoDrivingCar.Length = d.Length
	s.world.AutoDrivingCar.Width = d.Width
	s.world.AutoDrivingCar.Height = d.Height
	return s, nil
}

// UpdateChassis applies vehicle dynamics.
func (s *Service) UpdateChassis(chassis *Chassis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ApplyChassis(&s.world.AutoDrivingCar, chassis, s.dims)
	s.world.Sequence++
}

// UpdateLocalization applies the vehicle pose.
func (s *Service) UpdateLocalization(loc *LocalizationEstimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ApplyLocalization(&s.world.AutoDrivingCar, loc)
	s.world.Sequence++
}

// UpdateTrajectory replaces the planning trajectory.
func (s *Service) UpdateTrajectory(traj *ADCTrajectory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keep func(int) bool
	if s.dropStale {
		cutoff := s.world.AutoDrivingCar.TimestampSec
		keep = freshAfter(traj, cutoff)
		stale := 0
		for i := range traj.TrajectoryPoint {
			if !keep(i) {
				stale++
			}
		}
		if stale > 0 {
			logf("skipping %d stale trajectory points (cutoff %.3f)", stale, cutoff)
		}
	}
	s.world.PlanningTrajectory = downsample(pathPoints(traj), s.stride, s.dims, keep)
	s.world.Sequence++
}

// UpdatePerception replaces the displayed obstacles.
func (s *Service) UpdatePerception(obstacles *PerceptionObstacles) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.world.Objects = MapObstacles(obstacles.PerceptionObstacle)
	s.world.Sequence++
}

// UpdateMonitor merges a monitor batch into the log.
func (s *Service) UpdateMonitor(msg *MonitorMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	incoming := logItemsFromMessage(msg)
	if len(incoming) > s.capacity {
		logf("monitor batch of %d items truncated to %d", len(incoming), s.capacity)
	}
	s.world.Monitor.Items = MergeMonitorLog(s.world.Monitor.Items, incoming, s.capacity)
	s.world.Monitor.TimestampSec = msg.Header.TimestampSec
	s.world.Sequence++
}

// Snapshot returns a deep copy of the current world.
func (s *Service) Snapshot() WorldSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world.Clone()
}

// Sequence returns the number of updates applied so far.
func (s *Service) Sequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world.Sequence
}

// Dimensions returns the configured vehicle dimensions.
func (s *Service) Dimensions() VehicleDimensions {
	return s.dims
}
