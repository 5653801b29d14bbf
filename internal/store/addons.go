package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
)

// UpsertAddon records an addon announcement. Rows are never deleted
// automatically; a stale entry persists until the worker announces a
// superseding version.
func (p *Postgres) UpsertAddon(ctx context.Context, a *domain.Addon) error {
	endpoints, err := json.Marshal(a.Endpoints)
	if err != nil {
		return fmt.Errorf("encode endpoints: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO addons
		    (worker_id, addon_name, version, enabled, endpoints, spec)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (worker_id, addon_name) DO UPDATE
			SET version    = EXCLUDED.version,
			    enabled    = EXCLUDED.enabled,
			    endpoints  = EXCLUDED.endpoints,
			    spec       = EXCLUDED.spec,
			    updated_at = NOW()`,
		a.WorkerID, a.Name, a.Version, a.Enabled, endpoints, a.Spec)
	if err != nil {
		return fmt.Errorf("upsert addon %s/%s: %w", a.WorkerID, a.Name, err)
	}
	return nil
}

func (p *Postgres) ListAddons(ctx context.Context) ([]*domain.Addon, error) {
	return p.queryAddons(ctx, `
		SELECT worker_id, addon_name, version, enabled, endpoints, spec,
		       registered_at, updated_at
		FROM addons
		ORDER BY worker_id, addon_name`)
}

func (p *Postgres) ListWorkerAddons(ctx context.Context, workerID string) ([]*domain.Addon, error) {
	return p.queryAddons(ctx, `
		SELECT worker_id, addon_name, version, enabled, endpoints, spec,
		       registered_at, updated_at
		FROM addons
		WHERE worker_id = $1
		ORDER BY addon_name`, workerID)
}

func (p *Postgres) queryAddons(ctx context.Context, sql string, args ...any) ([]*domain.Addon, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query addons: %w", err)
	}
	defer rows.Close()

	var addons []*domain.Addon
	for rows.Next() {
		a := &domain.Addon{}
		var endpoints []byte
		err := rows.Scan(
			&a.WorkerID,
			&a.Name,
			&a.Version,
			&a.Enabled,
			&endpoints,
			&a.Spec,
			&a.RegisteredAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(endpoints) > 0 {
			if err := json.Unmarshal(endpoints, &a.Endpoints); err != nil {
				return nil, fmt.Errorf("decode endpoints: %w", err)
			}
		}
		addons = append(addons, a)
	}
	return addons, rows.Err()
}
