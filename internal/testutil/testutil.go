// Package testutil provides shared test helpers and telemetry fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/simworld/internal/simworld"
)

// MKZDimensions are the reference vehicle dimensions used across tests.
var MKZDimensions = simworld.VehicleDimensions{Length: 4.933, Width: 2.11, Height: 1.48}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewAdminRequest creates a request that tsweb's debug handlers accept as
// coming from localhost.
func NewAdminRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// NewTestService returns a world service sized for the reference vehicle.
func NewTestService(t *testing.T) *simworld.Service {
	t.Helper()
	svc, err := simworld.NewService(simworld.Options{Dimensions: MKZDimensions})
	AssertNoError(t, err)
	return svc
}

// PopulateWorld feeds one message of every kind into svc, so the snapshot
// has a car, an obstacle, a trajectory and a monitor line.
func PopulateWorld(svc *simworld.Service) {
	svc.UpdateChassis(&simworld.Chassis{
		Header:             simworld.Header{TimestampSec: 100},
		SpeedMps:           3.5,
		ThrottlePercentage: 20,
		DrivingMode:        simworld.DrivingModeCompleteAutoDrive,
	})
	svc.UpdateLocalization(&simworld.LocalizationEstimate{
		Header: simworld.Header{TimestampSec: 100},
		Pose: simworld.Pose{
			Position:    simworld.PointENU{X: 10, Y: 20},
			Orientation: simworld.Quaternion{Qw: 1},
		},
	})
	points := make([]simworld.PlanningPoint, 30)
	for i := range points {
		points[i].PathPoint.X = float64(i * 10)
		points[i].PathPoint.Y = float64(i*10 + 10)
	}
	svc.UpdateTrajectory(&simworld.ADCTrajectory{
		Header:          simworld.Header{TimestampSec: 100},
		TrajectoryPoint: points,
	})
	svc.UpdatePerception(&simworld.PerceptionObstacles{
		Header: simworld.Header{TimestampSec: 100},
		PerceptionObstacle: []simworld.PerceptionObstacle{{
			ID:       7,
			Position: simworld.Point{X: 30, Y: 40},
			Length:   4,
			Width:    2,
			Height:   1.5,
			Type:     simworld.ObstacleVehicle,
		}},
	})
	svc.UpdateMonitor(&simworld.MonitorMessage{
		Header: simworld.Header{TimestampSec: 100},
		Item: []simworld.MonitorMessageItem{
			{Source: "planning", Msg: "route ready", LogLevel: simworld.MonitorInfo},
		},
	})
}
