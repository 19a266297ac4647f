package storage

import (
	"context"
)

type Resolution struct {
	ID           string
	QueryText    string
	Year         int64
	Month        int64
	Quality      string
	Strategy     string
	Diagnostic   string
	ArtifactSize int64
	Repositioned bool
	CreatedAt    string
}

type BalanceSnapshot struct {
	ID                 int64
	FetchedAt          string
	RecordCount        int64
	TotalCents         int64
	ConversionFailures int64
}

type BalanceRecord struct {
	SnapshotID       int64
	Position         int64
	Account          string
	BalanceCents     int64
	Raw              string
	ConversionFailed bool
}

const createResolution = `-- name: CreateResolution :exec
INSERT INTO resolutions (id, query_text, year, month, quality, strategy, diagnostic, artifact_size, repositioned, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateResolution(ctx context.Context, arg Resolution) error {
	_, err := q.db.ExecContext(ctx, createResolution,
		arg.ID,
		arg.QueryText,
		arg.Year,
		arg.Month,
		arg.Quality,
		arg.Strategy,
		arg.Diagnostic,
		arg.ArtifactSize,
		arg.Repositioned,
		arg.CreatedAt,
	)
	return err
}

const listResolutions = `-- name: ListResolutions :many
SELECT id, query_text, year, month, quality, strategy, diagnostic, artifact_size, repositioned, created_at
FROM resolutions
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`

func (q *Queries) ListResolutions(ctx context.Context, limit int64) ([]Resolution, error) {
	rows, err := q.db.QueryContext(ctx, listResolutions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Resolution
	for rows.Next() {
		var i Resolution
		if err := rows.Scan(
			&i.ID,
			&i.QueryText,
			&i.Year,
			&i.Month,
			&i.Quality,
			&i.Strategy,
			&i.Diagnostic,
			&i.ArtifactSize,
			&i.Repositioned,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countResolutionsByQuality = `-- name: CountResolutionsByQuality :many
SELECT quality, COUNT(*) FROM resolutions GROUP BY quality
`

type QualityCount struct {
	Quality string
	Count   int64
}

func (q *Queries) CountResolutionsByQuality(ctx context.Context) ([]QualityCount, error) {
	rows, err := q.db.QueryContext(ctx, countResolutionsByQuality)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []QualityCount
	for rows.Next() {
		var i QualityCount
		if err := rows.Scan(&i.Quality, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createBalanceSnapshot = `-- name: CreateBalanceSnapshot :one
INSERT INTO balance_snapshots (fetched_at, record_count, total_cents, conversion_failures)
VALUES (?, ?, ?, ?)
RETURNING id
`

type CreateBalanceSnapshotParams struct {
	FetchedAt          string
	RecordCount        int64
	TotalCents         int64
	ConversionFailures int64
}

func (q *Queries) CreateBalanceSnapshot(ctx context.Context, arg CreateBalanceSnapshotParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createBalanceSnapshot,
		arg.FetchedAt,
		arg.RecordCount,
		arg.TotalCents,
		arg.ConversionFailures,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createBalanceRecord = `-- name: CreateBalanceRecord :exec
INSERT INTO balance_records (snapshot_id, position, account, balance_cents, raw, conversion_failed)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateBalanceRecord(ctx context.Context, arg BalanceRecord) error {
	_, err := q.db.ExecContext(ctx, createBalanceRecord,
		arg.SnapshotID,
		arg.Position,
		arg.Account,
		arg.BalanceCents,
		arg.Raw,
		arg.ConversionFailed,
	)
	return err
}

const listBalanceSnapshots = `-- name: ListBalanceSnapshots :many
SELECT id, fetched_at, record_count, total_cents, conversion_failures
FROM balance_snapshots
ORDER BY id DESC
LIMIT ?
`

func (q *Queries) ListBalanceSnapshots(ctx context.Context, limit int64) ([]BalanceSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, listBalanceSnapshots, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BalanceSnapshot
	for rows.Next() {
		var i BalanceSnapshot
		if err := rows.Scan(
			&i.ID,
			&i.FetchedAt,
			&i.RecordCount,
			&i.TotalCents,
			&i.ConversionFailures,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getBalanceRecords = `-- name: GetBalanceRecords :many
SELECT snapshot_id, position, account, balance_cents, raw, conversion_failed
FROM balance_records
WHERE snapshot_id = ?
ORDER BY position
`

func (q *Queries) GetBalanceRecords(ctx context.Context, snapshotID int64) ([]BalanceRecord, error) {
	rows, err := q.db.QueryContext(ctx, getBalanceRecords, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BalanceRecord
	for rows.Next() {
		var i BalanceRecord
		if err := rows.Scan(
			&i.SnapshotID,
			&i.Position,
			&i.Account,
			&i.BalanceCents,
			&i.Raw,
			&i.ConversionFailed,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getBalanceSnapshot = `-- name: GetBalanceSnapshot :one
SELECT id, fetched_at, record_count, total_cents, conversion_failures
FROM balance_snapshots
WHERE id = ?
`

func (q *Queries) GetBalanceSnapshot(ctx context.Context, id int64) (BalanceSnapshot, error) {
	row := q.db.QueryRowContext(ctx, getBalanceSnapshot, id)
	var i BalanceSnapshot
	err := row.Scan(
		&i.ID,
		&i.FetchedAt,
		&i.RecordCount,
		&i.TotalCents,
		&i.ConversionFailures,
	)
	return i, err
}
