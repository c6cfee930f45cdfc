package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/pkg/classifier"
)

// Schema is the SQL DDL for the detection_runs table. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS detection_runs (
    run_id       TEXT PRIMARY KEY,
    interjection INTEGER NOT NULL DEFAULT 0,
    prolongation INTEGER NOT NULL DEFAULT 0,
    repetition   INTEGER NOT NULL DEFAULT 0,
    total        INTEGER NOT NULL DEFAULT 0,
    syllables    INTEGER NOT NULL DEFAULT 0,
    pss          DOUBLE PRECISION NOT NULL DEFAULT 0,
    pss_valid    BOOLEAN NOT NULL DEFAULT false,
    degraded     BOOLEAN NOT NULL DEFAULT false,
    errors       JSONB NOT NULL DEFAULT '{}',
    chunks       INTEGER NOT NULL DEFAULT 0,
    audio_ns     BIGINT NOT NULL DEFAULT 0,
    duration_ns  BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_detection_runs_created ON detection_runs(created_at DESC);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Store = (*Postgres)(nil)

// Postgres is a [Store] backed by PostgreSQL.
type Postgres struct {
	db   DB
	pool *pgxpool.Pool
}

// NewPostgres returns a Postgres store on an existing connection or pool.
// The caller owns db and must run [Postgres.Migrate] before use.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects a pool to dsn, verifies the connection and migrates
// the schema. Close releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("results: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("results: ping postgres: %w", err)
	}
	s := &Postgres{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes [Schema] against the database.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("results: migrate: %w", err)
	}
	return nil
}

// Save implements [Store]. An existing run with the same ID is replaced.
func (s *Postgres) Save(ctx context.Context, m detect.SessionMetrics) error {
	if m.RunID == "" {
		return errEmptyID
	}
	errs := m.Errors
	if errs == nil {
		errs = map[classifier.Type]string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("results: marshal errors: %w", err)
	}

	const query = `
		INSERT INTO detection_runs (
			run_id, interjection, prolongation, repetition, total, syllables,
			pss, pss_valid, degraded, errors, chunks, audio_ns, duration_ns, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (run_id) DO UPDATE SET
			interjection = EXCLUDED.interjection,
			prolongation = EXCLUDED.prolongation,
			repetition   = EXCLUDED.repetition,
			total        = EXCLUDED.total,
			syllables    = EXCLUDED.syllables,
			pss          = EXCLUDED.pss,
			pss_valid    = EXCLUDED.pss_valid,
			degraded     = EXCLUDED.degraded,
			errors       = EXCLUDED.errors,
			chunks       = EXCLUDED.chunks,
			audio_ns     = EXCLUDED.audio_ns,
			duration_ns  = EXCLUDED.duration_ns,
			created_at   = EXCLUDED.created_at`

	_, err = s.db.Exec(ctx, query,
		m.RunID, m.Interjection, m.Prolongation, m.Repetition, m.Total, m.Syllables,
		m.PSS, m.PSSValid, m.Degraded, errJSON, m.Chunks,
		int64(m.Audio), int64(m.Duration), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("results: save run %s: %w", m.RunID, err)
	}
	return nil
}

const selectColumns = `
	SELECT run_id, interjection, prolongation, repetition, total, syllables,
	       pss, pss_valid, degraded, errors, chunks, audio_ns, duration_ns, created_at
	FROM detection_runs`

// Get implements [Store].
func (s *Postgres) Get(ctx context.Context, id string) (detect.SessionMetrics, error) {
	m, err := scanRun(s.db.QueryRow(ctx, selectColumns+` WHERE run_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return detect.SessionMetrics{}, ErrNotFound
		}
		return detect.SessionMetrics{}, fmt.Errorf("results: get run %s: %w", id, err)
	}
	return m, nil
}

// List implements [Store].
func (s *Postgres) List(ctx context.Context, limit int) ([]detect.SessionMetrics, error) {
	rows, err := s.db.Query(ctx, selectColumns+` ORDER BY created_at DESC, run_id LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("results: list runs: %w", err)
	}
	defer rows.Close()

	var out []detect.SessionMetrics
	for rows.Next() {
		m, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("results: list runs: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results: list runs: %w", err)
	}
	return out, nil
}

// Close releases the pool opened by [OpenPostgres]. It is a no-op for stores
// built with [NewPostgres].
func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func scanRun(row pgx.Row) (detect.SessionMetrics, error) {
	var (
		m               detect.SessionMetrics
		errJSON         []byte
		audioNS, tookNS int64
	)
	err := row.Scan(
		&m.RunID, &m.Interjection, &m.Prolongation, &m.Repetition, &m.Total, &m.Syllables,
		&m.PSS, &m.PSSValid, &m.Degraded, &errJSON, &m.Chunks, &audioNS, &tookNS, &m.CreatedAt,
	)
	if err != nil {
		return detect.SessionMetrics{}, err
	}
	m.Audio = time.Duration(audioNS)
	m.Duration = time.Duration(tookNS)
	if len(errJSON) > 0 {
		if err := json.Unmarshal(errJSON, &m.Errors); err != nil {
			return detect.SessionMetrics{}, fmt.Errorf("unmarshal errors: %w", err)
		}
		if len(m.Errors) == 0 {
			m.Errors = nil
		}
	}
	return m, nil
}
