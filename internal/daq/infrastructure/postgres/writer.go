// Package postgres persists aggregate records to a Postgres table, one row
// per device channel per write tick.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

const defaultRecordTable = "aggregate_records"

// RecordRepository is a Postgres implementation of daq.RecordWriter.
type RecordRepository struct {
	db    *sql.DB
	table string
}

// NewRecordRepository constructs a repository with the default table name.
func NewRecordRepository(db *sql.DB, opts ...RepositoryOption) *RecordRepository {
	repo := &RecordRepository{db: db, table: defaultRecordTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*RecordRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *RecordRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Name identifies this sink in metrics and logs.
func (r *RecordRepository) Name() string { return "postgres" }

// Close releases the connection pool.
func (r *RecordRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// WriteRecord inserts one row per device channel. NaN channels and no-data
// entries are stored as NULL so downstream queries can average with
// ordinary aggregate functions.
func (r *RecordRepository) WriteRecord(ctx context.Context, rec daq.AggregateRecord) error {
	if r == nil || r.db == nil {
		return errors.New("record repo: nil db")
	}
	if len(rec.Entries) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	recorded_at,
	device_id,
	channel,
	value,
	status
) VALUES (
	$1, $2, $3, $4, $5
)
ON CONFLICT (recorded_at, device_id, channel)
DO UPDATE SET
	value = EXCLUDED.value,
	status = EXCLUDED.status`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, entry := range rec.Entries {
		if entry.Device == "" || rec.TS.IsZero() {
			_ = tx.Rollback()
			return errors.New("record repo: invalid entry")
		}
		for j, ch := range entry.Channels {
			value := sql.NullFloat64{}
			if entry.Status != daq.StatusNoData && j < len(entry.Values) && !math.IsNaN(entry.Values[j]) {
				value = sql.NullFloat64{Float64: entry.Values[j], Valid: true}
			}
			if _, err := stmt.ExecContext(
				ctx,
				rec.TS,
				entry.Device,
				ch,
				value,
				entry.Status,
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}

	return tx.Commit()
}
