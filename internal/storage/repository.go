// Package storage is the SQLite journal: every artifact resolution and every
// refreshed balances snapshot is appended here for later inspection.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finbot/internal/core"

	_ "modernc.org/sqlite"
)

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SnapshotSummary describes one archived balances snapshot.
type SnapshotSummary struct {
	ID                 int64
	FetchedAt          time.Time
	Records            int
	Total              core.Money
	ConversionFailures int
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the journal is small.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) RecordResolution(ctx context.Context, res core.Resolution) error {
	err := r.queries.CreateResolution(ctx, Resolution{
		ID:           res.ID,
		QueryText:    res.Text,
		Year:         int64(res.Period.Year),
		Month:        int64(res.Period.Month),
		Quality:      res.Quality.String(),
		Strategy:     res.Strategy,
		Diagnostic:   res.Diagnostic,
		ArtifactSize: int64(res.Bytes),
		Repositioned: res.Repositioned,
		CreatedAt:    res.CreatedAt.UTC().Format(timeLayout),
	})
	if err != nil {
		return fmt.Errorf("create resolution: %w", err)
	}

	slog.DebugContext(ctx, "Resolution journaled",
		"component", "storage",
		"id", res.ID,
		"quality", res.Quality.String())
	return nil
}

// RecentResolutions returns up to limit entries, newest first.
func (r *SQLiteRepository) RecentResolutions(ctx context.Context, limit int) ([]core.Resolution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.queries.ListResolutions(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list resolutions: %w", err)
	}

	out := make([]core.Resolution, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(timeLayout, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("resolution %s: parse created_at: %w", row.ID, err)
		}
		out = append(out, core.Resolution{
			ID:           row.ID,
			Text:         row.QueryText,
			Period:       core.Period{Year: int(row.Year), Month: int(row.Month)},
			Quality:      core.ParseQuality(row.Quality),
			Strategy:     row.Strategy,
			Diagnostic:   row.Diagnostic,
			Bytes:        int(row.ArtifactSize),
			Repositioned: row.Repositioned,
			CreatedAt:    createdAt,
		})
	}
	return out, nil
}

// QualityCounts tallies journaled resolutions per quality tier.
func (r *SQLiteRepository) QualityCounts(ctx context.Context) (map[core.Quality]int, error) {
	rows, err := r.queries.CountResolutionsByQuality(ctx)
	if err != nil {
		return nil, fmt.Errorf("count resolutions: %w", err)
	}
	out := make(map[core.Quality]int, len(rows))
	for _, row := range rows {
		out[core.ParseQuality(row.Quality)] += int(row.Count)
	}
	return out, nil
}

// RecordSnapshot archives a balances snapshot and its records in one
// transaction.
func (r *SQLiteRepository) RecordSnapshot(ctx context.Context, snap core.Snapshot) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	id, err := q.CreateBalanceSnapshot(ctx, CreateBalanceSnapshotParams{
		FetchedAt:          snap.FetchedAt.UTC().Format(timeLayout),
		RecordCount:        int64(snap.Len()),
		TotalCents:         snap.Total().Cents,
		ConversionFailures: int64(snap.ConversionFailures()),
	})
	if err != nil {
		return 0, fmt.Errorf("create snapshot: %w", err)
	}

	for i, rec := range snap.Records {
		err := q.CreateBalanceRecord(ctx, BalanceRecord{
			SnapshotID:       id,
			Position:         int64(i),
			Account:          rec.Account,
			BalanceCents:     rec.Balance.Cents,
			Raw:              rec.Raw,
			ConversionFailed: rec.ConversionFailed,
		})
		if err != nil {
			return 0, fmt.Errorf("create record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot: %w", err)
	}

	slog.DebugContext(ctx, "Balances snapshot archived",
		"component", "storage",
		"id", id,
		"records", snap.Len())
	return id, nil
}

// RecentSnapshots lists archived snapshots, newest first.
func (r *SQLiteRepository) RecentSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.queries.ListBalanceSnapshots(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]SnapshotSummary, 0, len(rows))
	for _, row := range rows {
		fetchedAt, err := time.Parse(timeLayout, row.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: parse fetched_at: %w", row.ID, err)
		}
		out = append(out, SnapshotSummary{
			ID:                 row.ID,
			FetchedAt:          fetchedAt,
			Records:            int(row.RecordCount),
			Total:              core.Money{Cents: row.TotalCents},
			ConversionFailures: int(row.ConversionFailures),
		})
	}
	return out, nil
}

// Snapshot loads one archived snapshot with its records. A missing id
// yields an error matching sql.ErrNoRows.
func (r *SQLiteRepository) Snapshot(ctx context.Context, id int64) (core.Snapshot, error) {
	head, err := r.queries.GetBalanceSnapshot(ctx, id)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot %d: %w", id, err)
	}
	fetchedAt, err := time.Parse(timeLayout, head.FetchedAt)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot %d: parse fetched_at: %w", id, err)
	}

	rows, err := r.queries.GetBalanceRecords(ctx, id)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("get records: %w", err)
	}
	snap := core.Snapshot{FetchedAt: fetchedAt, Records: make([]core.BalanceRecord, 0, len(rows))}
	for _, row := range rows {
		snap.Records = append(snap.Records, core.BalanceRecord{
			Account:          row.Account,
			Balance:          core.Money{Cents: row.BalanceCents},
			Raw:              row.Raw,
			ConversionFailed: row.ConversionFailed,
		})
	}
	return snap, nil
}
