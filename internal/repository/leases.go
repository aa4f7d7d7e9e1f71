package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/libriscan/libriscan/internal/entity"
)

const leaseKeyPrefix = "extracting-"

// LeaseKey is the in-flight marker key for a page.
func LeaseKey(pageID uuid.UUID) string {
	return leaseKeyPrefix + pageID.String()
}

// PageIDFromLeaseKey reverses LeaseKey.
func PageIDFromLeaseKey(key string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(key, leaseKeyPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// LeaseStore holds in-flight extraction markers. Acquire is an atomic set-if-absent.
type LeaseStore interface {
	Acquire(ctx context.Context, key string, at time.Time) (bool, error)
	Get(ctx context.Context, key string) (*entity.Lease, error)
	Release(ctx context.Context, key string) error
	// ReleaseIfOlder deletes the lease only when it started before cutoff.
	ReleaseIfOlder(ctx context.Context, key string, cutoff time.Time) (bool, error)
	ListOlder(ctx context.Context, cutoff time.Time) ([]*entity.Lease, error)
}

type leaseStore struct {
	db     *DB
	logger *slog.Logger
}

func NewLeaseStore(db *DB, logger *slog.Logger) LeaseStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &leaseStore{db: db, logger: logger}
}

func (s *leaseStore) Acquire(ctx context.Context, key string, at time.Time) (bool, error) {
	query, args := s.db.Builder().Insert("extraction_leases").
		Columns("key", "started_at").
		Values(key, at.UTC()).
		OnConflict(entsql.ConflictColumns("key"), entsql.DoNothing()).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to acquire lease", "key", key, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *leaseStore) Get(ctx context.Context, key string) (*entity.Lease, error) {
	b := s.db.Builder()
	query, args := b.Select("key", "started_at").
		From(b.Table("extraction_leases")).
		Where(entsql.EQ("key", key)).
		Query()
	var l entity.Lease
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&l.Key, &l.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("failed to read lease", "key", key, "error", err)
		return nil, err
	}
	return &l, nil
}

func (s *leaseStore) Release(ctx context.Context, key string) error {
	query, args := s.db.Builder().Delete("extraction_leases").Where(entsql.EQ("key", key)).Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error("failed to release lease", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *leaseStore) ReleaseIfOlder(ctx context.Context, key string, cutoff time.Time) (bool, error) {
	query, args := s.db.Builder().Delete("extraction_leases").
		Where(entsql.And(entsql.EQ("key", key), entsql.LT("started_at", cutoff.UTC()))).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to release stale lease", "key", key, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *leaseStore) ListOlder(ctx context.Context, cutoff time.Time) ([]*entity.Lease, error) {
	b := s.db.Builder()
	query, args := b.Select("key", "started_at").
		From(b.Table("extraction_leases")).
		Where(entsql.LT("started_at", cutoff.UTC())).
		OrderBy("started_at").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to list leases", "error", err)
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Lease
	for rows.Next() {
		var l entity.Lease
		if err := rows.Scan(&l.Key, &l.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
