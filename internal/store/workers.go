package store

import (
	"context"
	"fmt"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

// UpsertWorker registers a node or refreshes an existing row on restart.
// ON CONFLICT re-marks the worker online and resets the heartbeat, so a
// crashed node that comes back is immediately routable again.
func (p *Postgres) UpsertWorker(ctx context.Context, w *domain.Worker) error {
	metadata, err := encodeMap(w.Metadata)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO workers
		    (id, display_name, kind, host, port, current_load, max_load,
		     status, last_heartbeat, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'online', NOW(), $8)
		ON CONFLICT (id) DO UPDATE
			SET display_name   = EXCLUDED.display_name,
			    kind           = EXCLUDED.kind,
			    host           = EXCLUDED.host,
			    port           = EXCLUDED.port,
			    current_load   = EXCLUDED.current_load,
			    max_load       = EXCLUDED.max_load,
			    status         = 'online',
			    last_heartbeat = NOW(),
			    metadata       = EXCLUDED.metadata`,
		w.ID, w.DisplayName, w.Kind, w.Host, w.Port,
		w.CurrentLoad, w.MaxLoad, metadata)
	if err != nil {
		return fmt.Errorf("upsert worker %s: %w", w.ID, err)
	}
	return nil
}

func (p *Postgres) Heartbeat(ctx context.Context, workerID string, currentLoad, maxLoad int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE workers
		SET last_heartbeat = NOW(), current_load = $2, max_load = $3
		WHERE id = $1`, workerID, currentLoad, maxLoad)
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", workerID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkWorkerOffline is the graceful-shutdown path. An unclean crash
// leaves the stored status stale; readers fall back to the heartbeat
// liveness window.
func (p *Postgres) MarkWorkerOffline(ctx context.Context, workerID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE workers SET status = 'offline' WHERE id = $1`, workerID)
	if err != nil {
		return fmt.Errorf("mark worker %s offline: %w", workerID, err)
	}
	return nil
}

func (p *Postgres) ListWorkers(ctx context.Context) ([]*domain.Worker, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, display_name, kind, host, port, current_load, max_load,
		       status, last_heartbeat, metadata, created_at
		FROM workers
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []*domain.Worker
	for rows.Next() {
		w := &domain.Worker{}
		var (
			kind     string
			status   string
			metadata []byte
		)
		err := rows.Scan(
			&w.ID,
			&w.DisplayName,
			&kind,
			&w.Host,
			&w.Port,
			&w.CurrentLoad,
			&w.MaxLoad,
			&status,
			&w.LastHeartbeat,
			&metadata,
			&w.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		w.Kind = domain.WorkerKind(kind)
		w.Status = domain.WorkerStatus(status)
		if w.Metadata, err = decodeMap(metadata); err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}
