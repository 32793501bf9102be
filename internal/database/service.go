package database

import (
	"context"
)

const upsertFieldQuery = `
	INSERT INTO proxy_fields (proxy_key, field, value) VALUES (?, ?, ?)
	ON CONFLICT(proxy_key, field) DO UPDATE SET value = excluded.value
`

// Service is the SQLite backed Store
type Service struct {
	db *DB
}

// NewService creates a new database service
func NewService(db *DB) *Service {
	return &Service{db: db}
}

// GetAllFields returns every field stored for key, empty when the key is unknown
func (s *Service) GetAllFields(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM proxy_fields WHERE proxy_key = ?`, key)
	if err != nil {
		return nil, unavailable("get fields of "+key, err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, unavailable("scan field row", err)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate field rows", err)
	}

	return fields, nil
}

// SetField inserts or overwrites a single field
func (s *Service) SetField(ctx context.Context, key, field, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertFieldQuery, key, field, value); err != nil {
		return unavailable("set "+field+" of "+key, err)
	}
	return nil
}

// SetFields upserts all fields inside one transaction, so either all of them land or none do
func (s *Service) SetFields(ctx context.Context, key string, fields map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin set fields of "+key, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertFieldQuery)
	if err != nil {
		return unavailable("prepare set fields of "+key, err)
	}
	defer stmt.Close()

	for field, value := range fields {
		if _, err := stmt.ExecContext(ctx, key, field, value); err != nil {
			return unavailable("set "+field+" of "+key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit fields of "+key, err)
	}
	return nil
}

// ScanKeys returns the distinct keys matching a redis style glob pattern
func (s *Service) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT proxy_key FROM proxy_fields WHERE proxy_key GLOB ? ORDER BY proxy_key`, pattern)
	if err != nil {
		return nil, unavailable("scan keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, unavailable("scan key row", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate key rows", err)
	}

	return keys, nil
}

// Delete removes a key and all of its fields
func (s *Service) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM proxy_fields WHERE proxy_key = ?`, key); err != nil {
		return unavailable("delete "+key, err)
	}
	return nil
}

// Close closes the underlying database
func (s *Service) Close() error {
	return s.db.Close()
}
