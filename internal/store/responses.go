package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

func (p *Postgres) InsertResponse(ctx context.Context, resp *domain.Response) error {
	headers, err := encodeMap(resp.Headers)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO responses
		    (request_id, worker_id, status_code, headers, body,
		     content_type, processed_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		resp.RequestID, resp.WorkerID, resp.StatusCode, headers,
		resp.Body, resp.ContentType, resp.ProcessedTimeMs)
	if err != nil {
		return fmt.Errorf("insert response for %s: %w", resp.RequestID, err)
	}
	return nil
}

// takeSQL consumes matching responses in one statement. DELETE with
// RETURNING means a row is handed to exactly one of two concurrently
// polling coordinators; the loser simply sees no row.
const takeSQL = `
DELETE FROM responses
WHERE request_id = ANY($1::uuid[])
RETURNING request_id, worker_id, status_code, headers, body,
          content_type, processed_time_ms, created_at`

func (p *Postgres) TakeResponses(ctx context.Context, ids []uuid.UUID) ([]*domain.Response, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, takeSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("take responses: %w", err)
	}
	defer rows.Close()

	var resps []*domain.Response
	for rows.Next() {
		resp := &domain.Response{}
		var headers []byte
		err := rows.Scan(
			&resp.RequestID,
			&resp.WorkerID,
			&resp.StatusCode,
			&headers,
			&resp.Body,
			&resp.ContentType,
			&resp.ProcessedTimeMs,
			&resp.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if resp.Headers, err = decodeMap(headers); err != nil {
			return nil, err
		}
		resps = append(resps, resp)
	}
	return resps, rows.Err()
}

// PurgeExpiredResponses reclaims rows whose waiter timed out before the
// worker finished. Nothing will ever consume them through the normal
// poll path once the pending future is gone.
func (p *Postgres) PurgeExpiredResponses(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM responses WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired responses: %w", err)
	}
	return tag.RowsAffected(), nil
}
