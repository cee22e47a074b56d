package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/simworld/internal/testutil"
	"github.com/banshee-data/simworld/internal/timeutil"
)

func countSnapshots(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM world_snapshots`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRecorder_RecordsOnlyChanges(t *testing.T) {
	db := newTestDB(t)
	svc := testutil.NewTestService(t)
	ctx := context.Background()

	r := &Recorder{DB: db, Source: svc, Interval: time.Second}

	// Sequence 0 matches the initial lastSeq, so nothing is written.
	if err := r.recordOnce(ctx, time.Unix(1, 0)); err != nil {
		t.Fatal(err)
	}
	if n := countSnapshots(t, db); n != 0 {
		t.Fatalf("recorded %d snapshots of an untouched world", n)
	}

	testutil.PopulateWorld(svc)
	if err := r.recordOnce(ctx, time.Unix(2, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.recordOnce(ctx, time.Unix(3, 0)); err != nil {
		t.Fatal(err)
	}
	if n := countSnapshots(t, db); n != 1 {
		t.Fatalf("snapshots = %d, want 1", n)
	}
}

func TestRecorder_RunWithMockClock(t *testing.T) {
	db := newTestDB(t)
	svc := testutil.NewTestService(t)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	r := &Recorder{DB: db, Source: svc, Interval: time.Second, Keep: 1, Clock: clock}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for clock.TickerCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("recorder never created its ticker")
		}
		time.Sleep(time.Millisecond)
	}

	testutil.PopulateWorld(svc)
	clock.Advance(time.Second)
	waitForSnapshots(t, db, 1)

	// A second change is recorded and the older row pruned.
	testutil.PopulateWorld(svc)
	clock.Advance(time.Second)
	deadline = time.Now().Add(2 * time.Second)
	for {
		rec, err := db.LatestSnapshot(context.Background())
		if err == nil && rec.Sequence == svc.Sequence() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second snapshot never recorded (last err %v)", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitForSnapshots(t, db, 1)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func waitForSnapshots(t *testing.T, db *DB, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for countSnapshots(t, db) != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d snapshots", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
