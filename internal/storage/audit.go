package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/micro-ha/kiosk-lock/internal/model"
)

func (r *Repository) InsertAuditEntry(ctx context.Context, entry model.AuditEntry) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entries(event, station_id, device_id, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		string(entry.Type),
		fromInt64Ptr(entry.StationID),
		entry.DeviceID,
		entry.Timestamp,
		fromStringPtr(entry.MetadataJSON),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListAuditEntries returns pending entries oldest first. A limit <= 0 means
// no limit.
func (r *Repository) ListAuditEntries(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	query := `SELECT sequence_id, event, station_id, device_id, timestamp, metadata
		FROM audit_entries ORDER BY sequence_id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.AuditEntry{}
	for rows.Next() {
		var (
			entry     model.AuditEntry
			event     string
			stationID sql.NullInt64
			metadata  sql.NullString
		)
		if err := rows.Scan(&entry.Sequence, &event, &stationID, &entry.DeviceID, &entry.Timestamp, &metadata); err != nil {
			return nil, err
		}
		entry.Type = model.AuditEventType(event)
		entry.StationID = nullInt64(stationID)
		entry.MetadataJSON = strPtr(metadata)
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteAuditEntries(ctx context.Context, sequences []int64) error {
	if len(sequences) == 0 {
		return nil
	}
	placeholders := make([]string, len(sequences))
	args := make([]any, len(sequences))
	for i, seq := range sequences {
		placeholders[i] = "?"
		args[i] = seq
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_entries WHERE sequence_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	return err
}

func (r *Repository) CountAuditEntries(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&count)
	return count, err
}
