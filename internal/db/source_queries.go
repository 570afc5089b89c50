package db

import (
	"context"
	"fmt"
)

// ListSources returns configured sources, optionally only enabled ones,
// ordered by id.
func (p *Pool) ListSources(ctx context.Context, enabledOnly bool) ([]Source, error) {
	const q = `
SELECT id, name, type, config, cursor, enabled, last_run_at, created_at
FROM radar.sources
WHERE ($1 = FALSE OR enabled)
ORDER BY id
`

	rows, err := p.Query(ctx, q, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	sources := make([]Source, 0, 8)
	for rows.Next() {
		var src Source
		if err := rows.Scan(
			&src.ID,
			&src.Name,
			&src.Type,
			&src.Config,
			&src.Cursor,
			&src.Enabled,
			&src.LastRunAt,
			&src.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source rows: %w", err)
	}

	return sources, nil
}

// SeedSources inserts sources that do not exist yet, keyed by name, and
// returns how many were created. Existing sources are left untouched.
func (p *Pool) SeedSources(ctx context.Context, sources []Source) (int, error) {
	const q = `
INSERT INTO radar.sources (name, type, config, cursor, enabled, created_at)
VALUES ($1, $2, $3, '', $4, NOW())
ON CONFLICT (name) DO NOTHING
`

	created := 0
	for _, src := range sources {
		affected, err := p.Exec(ctx, q, src.Name, src.Type, src.Config, src.Enabled)
		if err != nil {
			return created, fmt.Errorf("seed source %q: %w", src.Name, err)
		}
		created += int(affected)
	}
	return created, nil
}
