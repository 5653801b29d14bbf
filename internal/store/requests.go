package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

const insertRequestSQL = `
INSERT INTO requests
    (id, target_worker_id, endpoint_path, method, headers, query_params,
     body, status, priority, timeout_seconds, retry_count, max_retries)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10, $11)`

func (p *Postgres) InsertRequest(ctx context.Context, req *domain.Request) error {
	headers, err := encodeMap(req.Headers)
	if err != nil {
		return err
	}
	query, err := encodeMap(req.QueryParams)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, insertRequestSQL,
		req.ID, req.TargetWorkerID, req.EndpointPath, req.Method,
		headers, query, req.Body,
		req.Priority, req.TimeoutSeconds, req.RetryCount, req.MaxRetries)
	if err != nil {
		return fmt.Errorf("insert request %s: %w", req.ID, err)
	}
	return nil
}

// pendingSQL pulls up to $2 pending requests addressed to one worker.
// Highest priority first, oldest first among equal priority, bounding
// each poll cycle's work.
const pendingSQL = `
SELECT id, target_worker_id, endpoint_path, method, headers, query_params,
       body, status, priority, timeout_seconds, retry_count, max_retries,
       created_at, processed_at
FROM requests
WHERE target_worker_id = $1
  AND status = 'pending'
ORDER BY priority DESC, created_at ASC
LIMIT $2`

func (p *Postgres) ListPendingRequests(ctx context.Context, workerID string, limit int) ([]*domain.Request, error) {
	rows, err := p.pool.Query(ctx, pendingSQL, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var reqs []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (p *Postgres) GetRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, target_worker_id, endpoint_path, method, headers, query_params,
		       body, status, priority, timeout_seconds, retry_count, max_retries,
		       created_at, processed_at
		FROM requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

// MarkRequestProcessing guards on status='pending' so a double-pick of
// the same row by overlapping poll cycles transitions it only once.
func (p *Postgres) MarkRequestProcessing(ctx context.Context, id uuid.UUID) error {
	return p.markRequest(ctx, id, domain.StatusProcessing, domain.StatusPending)
}

func (p *Postgres) MarkRequestCompleted(ctx context.Context, id uuid.UUID) error {
	return p.markRequest(ctx, id, domain.StatusCompleted, domain.StatusProcessing)
}

func (p *Postgres) MarkRequestFailed(ctx context.Context, id uuid.UUID) error {
	return p.markRequest(ctx, id, domain.StatusFailed, domain.StatusProcessing)
}

func (p *Postgres) markRequest(ctx context.Context, id uuid.UUID, to, from domain.RequestStatus) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE requests
		SET status = $1, processed_at = NOW()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return fmt.Errorf("mark request %s %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanRequest populates a Request from the standard column order used by
// every request SELECT in this package.
func scanRequest(row pgx.Row) (*domain.Request, error) {
	req := &domain.Request{}
	var (
		status  string
		headers []byte
		query   []byte
	)
	err := row.Scan(
		&req.ID,
		&req.TargetWorkerID,
		&req.EndpointPath,
		&req.Method,
		&headers,
		&query,
		&req.Body,
		&status,
		&req.Priority,
		&req.TimeoutSeconds,
		&req.RetryCount,
		&req.MaxRetries,
		&req.CreatedAt,
		&req.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	if req.Headers, err = decodeMap(headers); err != nil {
		return nil, err
	}
	if req.QueryParams, err = decodeMap(query); err != nil {
		return nil, err
	}
	return req, nil
}
