// Package cassandra persists aggregate records to a Cassandra table
// partitioned by device and day. Rows carry a timeuuid clustering key so a
// day's ticks read back in order.
package cassandra

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gocql/gocql"

	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

const (
	defaultRecordTable  = "aggregate_records"
	defaultWriteTimeout = 5 * time.Second
)

// Connect builds a session against the given hosts and keyspace with retry
// and reconnection policies suited to a long-running collector.
func Connect(hosts []string, keyspace string) (*gocql.Session, error) {
	if len(hosts) == 0 {
		return nil, errors.New("cassandra sink: no hosts")
	}
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.ProtoVersion = 4
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.Consistency = gocql.LocalQuorum
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 1}
	cluster.ReconnectionPolicy = &gocql.ExponentialReconnectionPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
	return cluster.CreateSession()
}

// RecordRepository is a Cassandra implementation of daq.RecordWriter.
type RecordRepository struct {
	session      *gocql.Session
	table        string
	writeTimeout time.Duration
}

// NewRecordRepository wraps an existing session.
func NewRecordRepository(session *gocql.Session, opts ...RepositoryOption) *RecordRepository {
	repo := &RecordRepository{
		session:      session,
		table:        defaultRecordTable,
		writeTimeout: defaultWriteTimeout,
	}
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

// WithWriteTimeout bounds each insert.
func WithWriteTimeout(d time.Duration) RepositoryOption {
	return func(repo *RecordRepository) {
		if d > 0 {
			repo.writeTimeout = d
		}
	}
}

// Name identifies this sink in metrics and logs.
func (r *RecordRepository) Name() string { return "cassandra" }

// WriteRecord inserts one row per device. Channel values ride in a
// map column; NaN channels are omitted from the map since Cassandra
// rejects NaN map values.
func (r *RecordRepository) WriteRecord(ctx context.Context, rec daq.AggregateRecord) error {
	if r == nil || r.session == nil {
		return errors.New("cassandra sink: nil session")
	}

	ts := gocql.UUIDFromTime(rec.TS)
	day := rec.TS.UTC().Truncate(24 * time.Hour)

	for _, entry := range rec.Entries {
		readings := make(map[string]float64, len(entry.Channels))
		if entry.Status != daq.StatusNoData {
			for j, ch := range entry.Channels {
				if j < len(entry.Values) && !math.IsNaN(entry.Values[j]) {
					readings[ch] = entry.Values[j]
				}
			}
		}

		writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
		err := r.session.Query(
			`INSERT INTO `+r.table+` (device_id, day_bucket, ts, readings, status)
         VALUES (?, ?, ?, ?, ?)`,
			entry.Device,
			day,
			ts,
			readings,
			entry.Status,
		).WithContext(writeCtx).Exec()
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying session.
func (r *RecordRepository) Close() error {
	if r.session != nil {
		r.session.Close()
	}
	return nil
}
