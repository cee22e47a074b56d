package simworld

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/simworld/internal/geom"
)

const epsilon = 1e-4

var testDims = VehicleDimensions{Length: 4.933, Width: 2.11, Height: 1.48}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Options{Dimensions: testDims})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestNewService_RequiresVehicleParams(t *testing.T) {
	_, err := NewService(Options{})
	if !errors.Is(err, ErrVehicleParamsUnset) {
		t.Fatalf("expected ErrVehicleParamsUnset, got %v", err)
	}

	svc := newTestService(t)
	car := svc.Snapshot().AutoDrivingCar
	if car.Length != 4.933 || car.Width != 2.11 || car.Height != 1.48 {
		t.Errorf("dimensions not set at construction: %+v", car)
	}
}

func TestUpdateMonitorSuccess(t *testing.T) {
	svc := newTestService(t)
	svc.world.Monitor.TimestampSec = 1990
	svc.world.Monitor.Items = []LogItem{{Msg: "I am the previous message."}}

	svc.UpdateMonitor(&MonitorMessage{
		Header: Header{TimestampSec: 2000},
		Item:   []MonitorMessageItem{{Msg: "I am the latest message."}},
	})

	mon := svc.Snapshot().Monitor
	if len(mon.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(mon.Items))
	}
	if mon.Items[0].Msg != "I am the latest message." {
		t.Errorf("item 0 = %q", mon.Items[0].Msg)
	}
	if mon.Items[1].Msg != "I am the previous message." {
		t.Errorf("item 1 = %q", mon.Items[1].Msg)
	}
	if mon.TimestampSec != 2000 {
		t.Errorf("monitor timestamp = %v, want 2000", mon.TimestampSec)
	}
}

func TestUpdateMonitorRemove(t *testing.T) {
	svc := newTestService(t)
	for i := 0; i < MaxMonitorItems; i++ {
		svc.world.Monitor.Items = append(svc.world.Monitor.Items, LogItem{Msg: fmt.Sprintf("I am message %d", i)})
	}
	last := MaxMonitorItems - 1

	msg := &MonitorMessage{
		Header: Header{TimestampSec: 2000},
		Item:   []MonitorMessageItem{{Msg: "I am message -2"}, {Msg: "I am message -1"}},
	}
	svc.UpdateMonitor(msg)

	items := svc.Snapshot().Monitor.Items
	if len(items) != MaxMonitorItems {
		t.Fatalf("expected %d items, got %d", MaxMonitorItems, len(items))
	}
	if items[0].Msg != "I am message -2" || items[1].Msg != "I am message -1" {
		t.Errorf("unexpected head: %q, %q", items[0].Msg, items[1].Msg)
	}
	if want := fmt.Sprintf("I am message %d", last-len(msg.Item)); items[last].Msg != want {
		t.Errorf("last item = %q, want %q", items[last].Msg, want)
	}
}

func TestUpdateMonitorTruncate(t *testing.T) {
	svc := newTestService(t)
	large := MaxMonitorItems + 10
	msg := &MonitorMessage{Header: Header{TimestampSec: 2000}}
	for i := 0; i < large; i++ {
		msg.Item = append(msg.Item, MonitorMessageItem{Msg: fmt.Sprintf("I am message %d", i)})
	}

	svc.UpdateMonitor(msg)

	items := svc.Snapshot().Monitor.Items
	last := MaxMonitorItems - 1
	if len(items) != MaxMonitorItems {
		t.Fatalf("expected %d items, got %d", MaxMonitorItems, len(items))
	}
	if items[0].Msg != "I am message 0" {
		t.Errorf("item 0 = %q", items[0].Msg)
	}
	if want := fmt.Sprintf("I am message %d", last); items[last].Msg != want {
		t.Errorf("last item = %q, want %q", items[last].Msg, want)
	}
	if len(msg.Item) != large {
		t.Errorf("input batch was modified")
	}
}

func TestUpdateChassis(t *testing.T) {
	svc := newTestService(t)
	svc.UpdateChassis(&Chassis{
		SpeedMps:           25,
		ThrottlePercentage: 50,
		BrakePercentage:    10,
		SteeringPercentage: 25,
		Signal:             VehicleSignal{TurnSignal: TurnRight},
	})

	car := svc.Snapshot().AutoDrivingCar
	checks := []struct {
		name      string
		got, want float64
	}{
		{"length", car.Length, 4.933},
		{"width", car.Width, 2.11},
		{"height", car.Height, 1.48},
		{"speed", car.Speed, 25.0},
		{"throttle", car.ThrottlePercentage, 50.0},
		{"brake", car.BrakePercentage, 10.0},
		{"steering", car.SteeringAngle, 25.0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if car.CurrentSignal.String() != "RIGHT" {
		t.Errorf("current signal = %q, want RIGHT", car.CurrentSignal)
	}
}

func TestUpdateChassis_Signals(t *testing.T) {
	tests := []struct {
		signal VehicleSignal
		want   Signal
	}{
		{VehicleSignal{TurnSignal: TurnNone}, SignalNone},
		{VehicleSignal{TurnSignal: TurnLeft}, SignalLeft},
		{VehicleSignal{TurnSignal: TurnRight}, SignalRight},
		{VehicleSignal{TurnSignal: TurnLeft, EmergencyLight: true}, SignalEmergency},
		{VehicleSignal{TurnSignal: TurnSignal(42)}, SignalNone},
	}
	for _, tt := range tests {
		svc := newTestService(t)
		svc.UpdateChassis(&Chassis{Signal: tt.signal})
		if got := svc.Snapshot().AutoDrivingCar.CurrentSignal; got != tt.want {
			t.Errorf("signal %+v mapped to %v, want %v", tt.signal, got, tt.want)
		}
	}
}

func TestUpdateLocalization(t *testing.T) {
	svc := newTestService(t)
	svc.UpdateLocalization(&LocalizationEstimate{
		Pose: Pose{
			Position:    PointENU{X: 1.0, Y: 1.5},
			Orientation: Quaternion{},
			Heading:     123,
		},
	})

	car := svc.Snapshot().AutoDrivingCar
	if car.PositionX != 1.0 || car.PositionY != 1.5 {
		t.Errorf("position = (%v, %v), want (1.0, 1.5)", car.PositionX, car.PositionY)
	}
	if want := geom.QuaternionToHeading(0, 0, 0, 0); car.Heading != want {
		t.Errorf("heading = %v, want %v", car.Heading, want)
	}
}

func TestUpdateTrajectory(t *testing.T) {
	svc := newTestService(t)
	traj := &ADCTrajectory{}
	for i := 0; i < 30; i++ {
		traj.TrajectoryPoint = append(traj.TrajectoryPoint, PlanningPoint{
			PathPoint: PathPoint{X: float64(i * 10), Y: float64(i*10 + 10)},
		})
	}

	svc.UpdateTrajectory(traj)

	got := svc.Snapshot().PlanningTrajectory
	if len(got) != 4 {
		t.Fatalf("expected 4 trajectory points, got %d", len(got))
	}
	wantHeading := math.Atan2(100.0, 100.0)

	first := got[0]
	if first.PositionX != 0.0 || first.PositionY != 10.0 {
		t.Errorf("first point = (%v, %v), want (0, 10)", first.PositionX, first.PositionY)
	}
	if math.Abs(first.Heading-wantHeading) > 1e-12 {
		t.Errorf("first heading = %v, want %v", first.Heading, wantHeading)
	}
	if len(first.Polygon) != 4 {
		t.Errorf("first polygon has %d points, want 4", len(first.Polygon))
	}

	last := got[3]
	if last.PositionX != 280.0 || last.PositionY != 290.0 {
		t.Errorf("last point = (%v, %v), want (280, 290)", last.PositionX, last.PositionY)
	}
	if math.Abs(last.Heading-wantHeading) > 1e-12 {
		t.Errorf("last heading = %v, want %v", last.Heading, wantHeading)
	}
	if len(last.Polygon) != 4 {
		t.Errorf("last polygon has %d points, want 4", len(last.Polygon))
	}
}

func TestUpdateTrajectory_ArrivalOrderIndependent(t *testing.T) {
	traj := &ADCTrajectory{}
	for i := 0; i < 30; i++ {
		traj.TrajectoryPoint = append(traj.TrajectoryPoint, PlanningPoint{
			PathPoint:    PathPoint{X: float64(i * 10), Y: float64(i*10 + 10)},
			RelativeTime: float64(i) * 0.1,
		})
	}
	loc := &LocalizationEstimate{Header: Header{TimestampSec: 100}}

	planFirst := newTestService(t)
	planFirst.UpdateTrajectory(traj)
	planFirst.UpdateLocalization(loc)

	locFirst := newTestService(t)
	locFirst.UpdateLocalization(loc)
	locFirst.UpdateTrajectory(traj)

	a := planFirst.Snapshot().PlanningTrajectory
	b := locFirst.Snapshot().PlanningTrajectory
	if len(a) != 4 {
		t.Fatalf("expected 4 trajectory points, got %d", len(a))
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("trajectory depends on arrival order (-plan first +localization first):\n%s", diff)
	}
}

func TestUpdateTrajectory_DropsStalePoints(t *testing.T) {
	svc, err := NewService(Options{Dimensions: testDims, DropStaleTrajectory: true})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	svc.UpdateChassis(&Chassis{Header: Header{TimestampSec: 100}})

	traj := &ADCTrajectory{Header: Header{TimestampSec: 95}}
	for i := 0; i < 20; i++ {
		traj.TrajectoryPoint = append(traj.TrajectoryPoint, PlanningPoint{
			PathPoint:    PathPoint{X: float64(i), Y: 0},
			RelativeTime: float64(i),
		})
	}
	svc.UpdateTrajectory(traj)

	// Points 0..4 are before the cutoff. The stride still counts from the
	// first point of the plan, so x=10 is the first stride point kept and
	// x=18, x=19 close the path.
	got := svc.Snapshot().PlanningTrajectory
	var xs []float64
	for _, p := range got {
		xs = append(xs, p.PositionX)
	}
	if want := []float64{10, 18}; !cmp.Equal(xs, want) {
		t.Fatalf("kept positions = %v, want %v", xs, want)
	}
}

func TestUpdateTrajectory_StalePointsKeptByDefault(t *testing.T) {
	svc := newTestService(t)
	svc.UpdateChassis(&Chassis{Header: Header{TimestampSec: 100}})

	traj := &ADCTrajectory{Header: Header{TimestampSec: 95}}
	for i := 0; i < 20; i++ {
		traj.TrajectoryPoint = append(traj.TrajectoryPoint, PlanningPoint{
			PathPoint:    PathPoint{X: float64(i), Y: 0},
			RelativeTime: float64(i),
		})
	}
	svc.UpdateTrajectory(traj)

	got := svc.Snapshot().PlanningTrajectory
	if len(got) != 3 || got[0].PositionX != 0 || got[1].PositionX != 10 || got[2].PositionX != 18 {
		t.Fatalf("expected points at x=0, 10 and 18, got %+v", got)
	}
}

func TestUpdatePerceptionObstacles(t *testing.T) {
	svc := newTestService(t)
	svc.UpdatePerception(&PerceptionObstacles{
		PerceptionObstacle: []PerceptionObstacle{
			{
				ID:           1,
				PolygonPoint: []Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0}},
				Timestamp:    1489794020.123,
				Type:         ObstacleUnknown,
			},
			{
				ID:       2,
				Position: Point{X: 1.0, Y: 2.0},
				Theta:    3.0,
				Length:   4.0,
				Width:    5.0,
				Height:   6.0,
				Type:     ObstacleVehicle,
			},
		},
	})

	objects := svc.Snapshot().Objects
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}
	for _, obj := range objects {
		switch obj.ID {
		case "1":
			if math.Abs(obj.TimestampSec-1489794020.123) > epsilon {
				t.Errorf("timestamp = %v", obj.TimestampSec)
			}
			if n := len(obj.PolygonPoints()); n != 3 {
				t.Errorf("polygon size = %d, want 3", n)
			}
			if obj.BoxPose() != (Box{}) {
				t.Errorf("polygon object has box fields: %+v", obj.BoxPose())
			}
			if obj.Type != ObjectUnknown {
				t.Errorf("type = %v, want UNKNOWN", obj.Type)
			}
		case "2":
			b := obj.BoxPose()
			want := Box{PositionX: 1, PositionY: 2, Heading: 3, Length: 4, Width: 5, Height: 6}
			if b != want {
				t.Errorf("box = %+v, want %+v", b, want)
			}
			if n := len(obj.PolygonPoints()); n != 0 {
				t.Errorf("polygon size = %d, want 0", n)
			}
			if obj.Type != ObjectVehicle {
				t.Errorf("type = %v, want VEHICLE", obj.Type)
			}
		default:
			t.Errorf("unexpected object id %q", obj.ID)
		}
	}
}

func TestUpdatesTouchOnlyOwnFields(t *testing.T) {
	svc := newTestService(t)
	svc.UpdatePerception(&PerceptionObstacles{PerceptionObstacle: []PerceptionObstacle{{ID: 7}}})
	svc.UpdateMonitor(&MonitorMessage{Item: []MonitorMessageItem{{Msg: "hello"}}})
	before := svc.Snapshot()

	svc.UpdateChassis(&Chassis{SpeedMps: 3})
	svc.UpdateLocalization(&LocalizationEstimate{Pose: Pose{Position: PointENU{X: 4}}})

	after := svc.Snapshot()
	if len(after.Objects) != 1 || after.Objects[0].ID != before.Objects[0].ID {
		t.Errorf("objects changed by vehicle updates: %+v", after.Objects)
	}
	if len(after.Monitor.Items) != 1 || after.Monitor.Items[0].Msg != "hello" {
		t.Errorf("monitor changed by vehicle updates: %+v", after.Monitor.Items)
	}
	if after.Sequence != before.Sequence+2 {
		t.Errorf("sequence = %d, want %d", after.Sequence, before.Sequence+2)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	svc := newTestService(t)
	svc.UpdatePerception(&PerceptionObstacles{PerceptionObstacle: []PerceptionObstacle{
		{ID: 1, PolygonPoint: []Point{{X: 1, Y: 1}}},
	}})

	snap := svc.Snapshot()
	snap.Objects[0].Geometry.(Polygon)[0].X = 99
	snap.Objects[0].ID = "mutated"

	again := svc.Snapshot()
	if again.Objects[0].ID != "1" || again.Objects[0].PolygonPoints()[0].X != 1 {
		t.Errorf("snapshot mutation leaked into service: %+v", again.Objects[0])
	}
}

func TestConcurrentUpdatesAndReads(t *testing.T) {
	svc := newTestService(t)
	const writers = 4
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				switch w {
				case 0:
					svc.UpdateChassis(&Chassis{SpeedMps: float64(i)})
				case 1:
					svc.UpdateLocalization(&LocalizationEstimate{Pose: Pose{Position: PointENU{X: float64(i)}}})
				case 2:
					svc.UpdateMonitor(&MonitorMessage{Item: []MonitorMessageItem{{Msg: fmt.Sprint(i)}}})
				case 3:
					svc.UpdatePerception(&PerceptionObstacles{PerceptionObstacle: []PerceptionObstacle{{ID: int32(i)}}})
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			snap := svc.Snapshot()
			if len(snap.Monitor.Items) > MaxMonitorItems {
				t.Errorf("monitor log exceeded capacity: %d", len(snap.Monitor.Items))
			}
		}
	}()
	wg.Wait()

	if got := svc.Sequence(); got != writers*perWriter {
		t.Errorf("sequence = %d, want %d", got, writers*perWriter)
	}
}
