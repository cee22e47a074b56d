package db

import (
	"context"
	"log"
	"time"

	"github.com/banshee-data/simworld/internal/simworld"
	"github.com/banshee-data/simworld/internal/timeutil"
)

// SnapshotSource is the part of the world service the Recorder reads.
type SnapshotSource interface {
	Snapshot() simworld.WorldSnapshot
	Sequence() uint64
}

// Recorder periodically persists the world snapshot while it is changing.
type Recorder struct {
	DB       *DB
	Source   SnapshotSource
	Interval time.Duration
	// Keep bounds the number of stored snapshots; zero keeps everything.
	Keep  int
	Clock timeutil.Clock

	lastSeq uint64
}

// Run records until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ticker := clock.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			if err := r.recordOnce(ctx, now); err != nil {
				log.Printf("[Recorder] %v", err)
			}
		}
	}
}

func (r *Recorder) recordOnce(ctx context.Context, now time.Time) error {
	if r.Source.Sequence() == r.lastSeq {
		return nil
	}
	world := r.Source.Snapshot()
	if _, err := r.DB.RecordSnapshot(ctx, world, now); err != nil {
		return err
	}
	r.lastSeq = world.Sequence
	if r.Keep > 0 {
		if _, err := r.DB.PruneSnapshots(ctx, r.Keep); err != nil {
			return err
		}
	}
	return nil
}
