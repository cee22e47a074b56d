package visualiser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/simworld/internal/simworld"
	"github.com/banshee-data/simworld/internal/testutil"
	"github.com/banshee-data/simworld/internal/timeutil"
)

func newStartedPublisher(t *testing.T) *Publisher {
	t.Helper()
	p := NewPublisher(DefaultConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Stop)
	return p
}

func recvFrame(t *testing.T, ch <-chan *Frame) *Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func expectNoFrame(t *testing.T, ch <-chan *Frame) {
	t.Helper()
	select {
	case f := <-ch:
		t.Fatalf("unexpected frame %d", f.FrameID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublisher_StartTwice(t *testing.T) {
	p := newStartedPublisher(t)
	if err := p.Start(); err == nil {
		t.Fatal("expected error starting twice")
	}
}

func TestPublisher_BroadcastAndLatest(t *testing.T) {
	p := newStartedPublisher(t)

	idA, chA := p.Subscribe("a")
	if !strings.HasPrefix(idA, "a-") {
		t.Errorf("client id %q missing name prefix", idA)
	}

	p.Publish(&Frame{World: simworld.WorldSnapshot{Sequence: 3}})
	f := recvFrame(t, chA)
	if f.FrameID != 1 || f.World.Sequence != 3 {
		t.Errorf("got frame %d seq %d", f.FrameID, f.World.Sequence)
	}

	// Late subscribers get the latest frame straight away.
	idB, chB := p.Subscribe("")
	if got := recvFrame(t, chB); got != f {
		t.Errorf("late subscriber got %+v", got)
	}

	stats := p.Stats()
	if stats.ClientCount != 2 || stats.FrameCount != 1 || !stats.Running {
		t.Errorf("stats = %+v", stats)
	}

	p.Unsubscribe(idA)
	p.Unsubscribe(idB)
	p.Unsubscribe("missing")
	if n := p.Stats().ClientCount; n != 0 {
		t.Errorf("ClientCount = %d after unsubscribe", n)
	}
}

func TestPublisher_SlowClientDrops(t *testing.T) {
	p := NewPublisher(Config{ClientBuffer: 1})
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	_, slow := p.Subscribe("slow")
	_, probe := p.Subscribe("probe")

	for i := 0; i < 3; i++ {
		p.Publish(&Frame{})
		recvFrame(t, probe)
	}
	// Stop waits for the broadcast loop, so the drop count is final.
	p.Stop()
	if d := p.Stats().DroppedFrames; d != 2 {
		t.Errorf("DroppedFrames = %d, want 2", d)
	}
	if f := recvFrame(t, slow); f.FrameID != 1 {
		t.Errorf("slow client got frame %d, want 1", f.FrameID)
	}
}

func TestPublisher_PublishWhenStopped(t *testing.T) {
	p := NewPublisher(DefaultConfig())
	p.Publish(&Frame{})
	if n := p.Stats().FrameCount; n != 0 {
		t.Errorf("FrameCount = %d for a publisher that never started", n)
	}
}

func TestPublisher_RunPublishesChanges(t *testing.T) {
	p := newStartedPublisher(t)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	p.SetClock(clock)

	svc := testutil.NewTestService(t)
	_, frames := p.Subscribe("test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, svc) }()

	deadline := time.Now().Add(2 * time.Second)
	for clock.TickerCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run never created its ticker")
		}
		time.Sleep(time.Millisecond)
	}
	interval := DefaultConfig().PublishInterval

	// The first tick always publishes, even an untouched world.
	clock.Advance(interval)
	f := recvFrame(t, frames)
	if f.World.Sequence != 0 || f.TimestampNanos != time.Unix(1000, 0).Add(interval).UnixNano() {
		t.Errorf("first frame seq=%d ts=%d", f.World.Sequence, f.TimestampNanos)
	}

	clock.Advance(interval)
	expectNoFrame(t, frames)

	svc.UpdateChassis(&simworld.Chassis{SpeedMps: 4})
	clock.Advance(interval)
	f = recvFrame(t, frames)
	if f.World.Sequence != 1 || f.World.AutoDrivingCar.Speed != 4 {
		t.Errorf("frame after update: seq=%d speed=%v", f.World.Sequence, f.World.AutoDrivingCar.Speed)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
}

func TestPublisher_AdminRoutes(t *testing.T) {
	p := newStartedPublisher(t)
	mux := http.NewServeMux()
	p.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewAdminRequest(http.MethodGet, "/debug/visualiser"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"running":true`) {
		t.Errorf("stats body = %s", w.Body.String())
	}
}
