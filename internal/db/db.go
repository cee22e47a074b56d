// Package db persists world history: periodic compressed snapshots and the
// full monitor log, which the in-memory snapshot only keeps a window of.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/simworld/internal/simworld"
)

// ErrNoSnapshot is returned when no snapshot has been recorded yet.
var ErrNoSnapshot = errors.New("no recorded snapshot")

// DB wraps the SQLite handle.
type DB struct {
	*sql.DB
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
)

// NewDB opens (or creates) the database at path and applies migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SnapshotRecord is one stored world snapshot.
type SnapshotRecord struct {
	ID         int64
	Sequence   uint64
	RecordedAt time.Time
	World      simworld.WorldSnapshot
}

// RecordSnapshot stores world as zstd-compressed JSON.
func (db *DB) RecordSnapshot(ctx context.Context, world simworld.WorldSnapshot, recordedAt time.Time) (int64, error) {
	raw, err := json.Marshal(world)
	if err != nil {
		return 0, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO world_snapshots (sequence, recorded_at, payload_zstd) VALUES (?, ?, ?)`,
		int64(world.Sequence), recordedAt.UnixNano(), encoder.EncodeAll(raw, nil),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LatestSnapshot returns the most recently recorded snapshot.
func (db *DB) LatestSnapshot(ctx context.Context) (*SnapshotRecord, error) {
	row := db.QueryRowContext(ctx,
		`SELECT snapshot_id, sequence, recorded_at, payload_zstd
		   FROM world_snapshots
		  ORDER BY snapshot_id DESC
		  LIMIT 1`)

	var (
		rec        SnapshotRecord
		seq        int64
		recordedAt int64
		payload    []byte
	)
	if err := row.Scan(&rec.ID, &seq, &recordedAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	raw, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal(raw, &rec.World); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %d: %w", rec.ID, err)
	}
	rec.Sequence = uint64(seq)
	rec.RecordedAt = time.Unix(0, recordedAt)
	return &rec, nil
}

// PruneSnapshots deletes all but the newest keep snapshots and returns the
// number of rows removed.
func (db *DB) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM world_snapshots
		  WHERE snapshot_id NOT IN (
		        SELECT snapshot_id FROM world_snapshots ORDER BY snapshot_id DESC LIMIT ?)`,
		keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// MonitorRecord is one archived monitor line.
type MonitorRecord struct {
	TimestampSec float64
	Source       string
	Level        simworld.MonitorLevel
	Msg          string
}

// RecordMonitorMessage archives every item of a monitor batch in order.
func (db *DB) RecordMonitorMessage(ctx context.Context, msg *simworld.MonitorMessage) error {
	if len(msg.Item) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO monitor_log (timestamp_sec, source, level, msg) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range msg.Item {
		if _, err := stmt.ExecContext(ctx, msg.Header.TimestampSec, it.Source, it.LogLevel.OrInfo().String(), it.Msg); err != nil {
			return fmt.Errorf("failed to insert monitor item: %w", err)
		}
	}
	return tx.Commit()
}

// RecentMonitorItems returns up to limit archived items, newest batch first.
// Items of one batch keep their arrival order, as in the snapshot log.
func (db *DB) RecentMonitorItems(ctx context.Context, limit int) ([]MonitorRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT timestamp_sec, source, level, msg
		   FROM monitor_log
		  ORDER BY timestamp_sec DESC, log_id ASC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitor log: %w", err)
	}
	defer rows.Close()

	var out []MonitorRecord
	for rows.Next() {
		var (
			r     MonitorRecord
			level string
		)
		if err := rows.Scan(&r.TimestampSec, &r.Source, &level, &r.Msg); err != nil {
			return nil, err
		}
		if err := r.Level.UnmarshalJSON([]byte(`"` + level + `"`)); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
