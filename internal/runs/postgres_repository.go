package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds the statements that create the run history table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS simulation_runs (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		kind         TEXT NOT NULL,
		params       JSONB NOT NULL,
		status       TEXT NOT NULL,
		http_status  INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT '',
		location     TEXT NOT NULL DEFAULT '',
		duration_ms  BIGINT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS simulation_runs_created_at_idx ON simulation_runs (created_at DESC)`,
}

const selectColumns = `
	id, session_id, kind, params, status, http_status, error, location, duration_ms, created_at
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL run repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create stores a new run.
func (r *PostgresRepository) Create(ctx context.Context, run *Run) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	query := `
		INSERT INTO simulation_runs (
			id, session_id, kind, params, status, http_status, error, location, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.SessionID,
		string(run.Kind),
		paramsJSON,
		string(run.Status),
		run.HTTPStatus,
		run.Error,
		run.Location,
		run.Duration.Milliseconds(),
		run.CreatedAt,
	)
	return err
}

// Get retrieves a run by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + selectColumns + ` FROM simulation_runs WHERE id = $1`

	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM simulation_runs
		WHERE ($1::text = '' OR session_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, opts.SessionID, opts.EffectiveLimit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	var (
		run        Run
		kind       string
		status     string
		paramsJSON []byte
		durationMS int64
	)

	err := row.Scan(
		&run.ID,
		&run.SessionID,
		&kind,
		&paramsJSON,
		&status,
		&run.HTTPStatus,
		&run.Error,
		&run.Location,
		&durationMS,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(paramsJSON, &run.Params); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	run.Kind = Kind(kind)
	run.Status = Status(status)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
