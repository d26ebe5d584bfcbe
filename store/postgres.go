package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apexorch/apex/apexerr"
)

// PostgresStore implements Store against PostgreSQL, for durable
// archival of contracts and DAG runs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "parse postgres config", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "create postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "ping postgres", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) SaveContract(ctx context.Context, rec *ContractRecord) error {
	query := `
		INSERT INTO contracts (id, parent_id, agent_id, status, tokens_used, cost_micros, api_calls, created_at, expires_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			tokens_used = EXCLUDED.tokens_used,
			cost_micros = EXCLUDED.cost_micros,
			api_calls = EXCLUDED.api_calls,
			closed_at = EXCLUDED.closed_at
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, nullable(rec.ParentID), rec.AgentID, rec.Status,
		rec.TokensUsed, rec.CostMicros, rec.APICalls,
		rec.CreatedAt, rec.ExpiresAt, rec.ClosedAt,
	)
	if err != nil {
		return apexerr.Wrap(apexerr.Internal, "save contract", err)
	}
	return nil
}

func (s *PostgresStore) GetContract(ctx context.Context, id string) (*ContractRecord, error) {
	query := `
		SELECT id, parent_id, agent_id, status, tokens_used, cost_micros, api_calls, created_at, expires_at, closed_at
		FROM contracts WHERE id = $1
	`
	var rec ContractRecord
	var parentID *string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &parentID, &rec.AgentID, &rec.Status,
		&rec.TokensUsed, &rec.CostMicros, &rec.APICalls,
		&rec.CreatedAt, &rec.ExpiresAt, &rec.ClosedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apexerr.New(apexerr.NotFound, "contract not found").WithContext("id", id)
	}
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "get contract", err)
	}
	if parentID != nil {
		rec.ParentID = *parentID
	}
	return &rec, nil
}

func (s *PostgresStore) ListContractsByAgent(ctx context.Context, agentID string, limit int) ([]*ContractRecord, error) {
	query := `
		SELECT id, parent_id, agent_id, status, tokens_used, cost_micros, api_calls, created_at, expires_at, closed_at
		FROM contracts WHERE agent_id = $1 ORDER BY closed_at DESC LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "list contracts", err)
	}
	defer rows.Close()

	var out []*ContractRecord
	for rows.Next() {
		var rec ContractRecord
		var parentID *string
		if err := rows.Scan(
			&rec.ID, &parentID, &rec.AgentID, &rec.Status,
			&rec.TokensUsed, &rec.CostMicros, &rec.APICalls,
			&rec.CreatedAt, &rec.ExpiresAt, &rec.ClosedAt,
		); err != nil {
			return nil, apexerr.Wrap(apexerr.Internal, "scan contract row", err)
		}
		if parentID != nil {
			rec.ParentID = *parentID
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *PostgresStore) SaveDagRun(ctx context.Context, rec *DagRunRecord) error {
	query := `
		INSERT INTO dag_runs (dag_id, status, task_count, failed_count, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dag_id) DO UPDATE SET
			status = EXCLUDED.status,
			task_count = EXCLUDED.task_count,
			failed_count = EXCLUDED.failed_count,
			finished_at = EXCLUDED.finished_at
	`
	_, err := s.pool.Exec(ctx, query, rec.DagID, rec.Status, rec.TaskCount, rec.FailedCount, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return apexerr.Wrap(apexerr.Internal, "save dag run", err)
	}
	return nil
}

func (s *PostgresStore) GetDagRun(ctx context.Context, dagID string) (*DagRunRecord, error) {
	query := `SELECT dag_id, status, task_count, failed_count, started_at, finished_at FROM dag_runs WHERE dag_id = $1`
	var rec DagRunRecord
	err := s.pool.QueryRow(ctx, query, dagID).Scan(&rec.DagID, &rec.Status, &rec.TaskCount, &rec.FailedCount, &rec.StartedAt, &rec.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apexerr.New(apexerr.NotFound, "dag run not found").WithContext("dag_id", dagID)
	}
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "get dag run", err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListDagRuns(ctx context.Context, status string, limit int) ([]*DagRunRecord, error) {
	query := `SELECT dag_id, status, task_count, failed_count, started_at, finished_at FROM dag_runs WHERE status = $1 ORDER BY finished_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "list dag runs", err)
	}
	defer rows.Close()

	var out []*DagRunRecord
	for rows.Next() {
		var rec DagRunRecord
		if err := rows.Scan(&rec.DagID, &rec.Status, &rec.TaskCount, &rec.FailedCount, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, apexerr.Wrap(apexerr.Internal, "scan dag run row", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Dispatch idempotency is not Postgres's job (see RedisStore); these
// exist only so PostgresStore satisfies Store when Redis isn't wired.
func (s *PostgresStore) GetDispatchResult(ctx context.Context, taskID string) (string, bool, error) {
	return "", false, nil
}

func (s *PostgresStore) SetDispatchResultNX(ctx context.Context, taskID string, value string, ttl time.Duration) (bool, error) {
	return true, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
