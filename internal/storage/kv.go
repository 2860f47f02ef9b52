package storage

import (
	"context"
	"fmt"
)

// LoadValues returns every key-value row, unsealing values when a sealer is
// configured.
func (r *Repository) LoadValues(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]string{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		value, err := r.sealer.Open(raw)
		if err != nil {
			return nil, fmt.Errorf("open value %s: %w", key, err)
		}
		result[key] = value
	}
	return result, rows.Err()
}

// ApplyValues writes puts and deletes removes in a single transaction.
func (r *Repository) ApplyValues(ctx context.Context, puts map[string]string, removes []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(puts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO kv(key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for key, value := range puts {
			sealed, err := r.sealer.Seal(value)
			if err != nil {
				return fmt.Errorf("seal value %s: %w", key, err)
			}
			if _, err := stmt.ExecContext(ctx, key, sealed); err != nil {
				return err
			}
		}
	}

	for _, key := range removes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}
