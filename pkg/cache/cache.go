// Package cache persists retrieved annotations per identifier and source so
// repeated jobs only query the remote services for what is missing.
package cache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql" // register mysql as a database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// lookupChunk bounds the number of bind parameters per query.
const lookupChunk = 500

type dialect struct {
	driverName string
	schema     string
	upsert     string
	numbered   bool
}

var dialects = map[string]dialect{
	DriverSQLite: {
		driverName: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS annotation_cache (
			identifier TEXT NOT NULL,
			source TEXT NOT NULL,
			catalog_version INTEGER NOT NULL,
			features TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (identifier, source)
		)`,
		upsert: `INSERT INTO annotation_cache (identifier, source, catalog_version, features, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (identifier, source) DO UPDATE SET
				catalog_version = excluded.catalog_version,
				features = excluded.features,
				updated_at = excluded.updated_at`,
	},
	DriverPostgres: {
		driverName: "pgx",
		schema: `CREATE TABLE IF NOT EXISTS annotation_cache (
			identifier TEXT NOT NULL,
			source TEXT NOT NULL,
			catalog_version INTEGER NOT NULL,
			features TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (identifier, source)
		)`,
		upsert: `INSERT INTO annotation_cache (identifier, source, catalog_version, features, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (identifier, source) DO UPDATE SET
				catalog_version = EXCLUDED.catalog_version,
				features = EXCLUDED.features,
				updated_at = EXCLUDED.updated_at`,
		numbered: true,
	},
	DriverMySQL: {
		driverName: "mysql",
		schema: `CREATE TABLE IF NOT EXISTS annotation_cache (
			identifier VARCHAR(255) NOT NULL,
			source VARCHAR(32) NOT NULL,
			catalog_version INT NOT NULL,
			features LONGTEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (identifier, source)
		)`,
		upsert: `INSERT INTO annotation_cache (identifier, source, catalog_version, features, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				catalog_version = VALUES(catalog_version),
				features = VALUES(features),
				updated_at = VALUES(updated_at)`,
	},
}

// placeholder returns the n-th (1-based) bind parameter.
func (d dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Store is a SQL-backed annotation cache. Entries written under another
// catalog version are ignored on read.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
	now     func() time.Time
}

// Open connects to the cache database and creates the table if needed. For
// sqlite the DSN is a file path (or ":memory:").
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if driver == "" {
		driver = DriverSQLite
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported cache driver %q", driver)
	}
	if driver == DriverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create cache directory")
			}
		}
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open cache database")
	}
	if driver == DriverSQLite {
		// one connection keeps ":memory:" databases shared and avoids
		// SQLITE_BUSY between writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to cache database")
	}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to create cache table")
	}

	logger.Debug("annotation cache opened", zap.String("driver", driver))
	return &Store{
		db:      db,
		dialect: d,
		logger:  logger.With(zap.String("component", "cache")),
		now:     time.Now,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached features of source for each identifier that has
// an entry.
func (s *Store) Get(ctx context.Context, source annotation.Source, identifiers []string) (map[string]annotation.Features, error) {
	out := make(map[string]annotation.Features, len(identifiers))
	for start := 0; start < len(identifiers); start += lookupChunk {
		end := start + lookupChunk
		if end > len(identifiers) {
			end = len(identifiers)
		}
		if err := s.get(ctx, source, identifiers[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) get(ctx context.Context, source annotation.Source, ids []string, out map[string]annotation.Features) (retErr error) {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, string(source), annotation.CatalogVersion)
	marks := make([]string, len(ids))
	for i, id := range ids {
		marks[i] = s.dialect.placeholder(i + 3)
		args = append(args, id)
	}
	query := "SELECT identifier, features FROM annotation_cache WHERE source = " +
		s.dialect.placeholder(1) + " AND catalog_version = " + s.dialect.placeholder(2) +
		" AND identifier IN (" + strings.Join(marks, ", ") + ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to query cache")
	}
	defer func() {
		if err := rows.Close(); err != nil && retErr == nil {
			retErr = errors.Wrap(err, errors.ErrorTypeQuery, "failed to close cache rows")
		}
	}()

	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan cache row")
		}
		var f annotation.Features
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			s.logger.Warn("ignoring corrupt cache entry",
				zap.String("identifier", id),
				zap.String("source", string(source)),
				zap.Error(err))
			continue
		}
		out[id] = f
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to read cache rows")
	}
	return nil
}

// Put stores records for source, replacing earlier entries.
func (s *Store) Put(ctx context.Context, source annotation.Source, records []annotation.Record) (retErr error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to begin cache transaction")
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsert)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to prepare cache upsert")
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, r := range records {
		payload, err := json.Marshal(r.Features)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode features").
				WithDetail("identifier", r.Identifier)
		}
		if _, err := stmt.ExecContext(ctx, r.Identifier, string(source), annotation.CatalogVersion, string(payload), now); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to write cache entry").
				WithDetail("identifier", r.Identifier)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit cache transaction")
	}
	s.logger.Debug("cache entries written", zap.String("source", string(source)), zap.Int("records", len(records)))
	return nil
}

// Lookup splits identifiers into cache hits, whose entry holds every
// required field, and misses, in input order.
func (s *Store) Lookup(ctx context.Context, source annotation.Source, identifiers, required []string) ([]annotation.Record, []string, error) {
	cached, err := s.Get(ctx, source, identifiers)
	if err != nil {
		return nil, nil, err
	}

	var hits []annotation.Record
	var misses []string
	for _, id := range identifiers {
		f, ok := cached[id]
		if ok && covers(f, required) {
			hits = append(hits, annotation.NewRecord(id, f))
			continue
		}
		misses = append(misses, id)
	}

	metrics.CacheLookups.WithLabelValues(string(source), metrics.CacheHit).Add(float64(len(hits)))
	metrics.CacheLookups.WithLabelValues(string(source), metrics.CacheMiss).Add(float64(len(misses)))
	s.logger.Debug("cache lookup",
		zap.String("source", string(source)),
		zap.Int("hits", len(hits)),
		zap.Int("misses", len(misses)))
	return hits, misses, nil
}

func covers(f annotation.Features, required []string) bool {
	for _, name := range required {
		if !f.Has(name) {
			return false
		}
	}
	return true
}
