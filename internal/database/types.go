package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrStoreUnavailable wraps every I/O failure of a record store backend
var ErrStoreUnavailable = errors.New("record store unavailable")

// Store is the narrow key/field interface the pool reads and writes proxy records through.
// A missing key reads back as an empty mapping. Implementations must be safe for concurrent use.
type Store interface {
	GetAllFields(ctx context.Context, key string) (map[string]string, error)
	SetField(ctx context.Context, key, field, value string) error
	// SetFields writes every field of the mapping in one atomic step
	SetFields(ctx context.Context, key string, fields map[string]string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ProxyStats contains statistics about the stored records
type ProxyStats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// GetProxyStats scans pattern and groups the matching keys by scheme
func GetProxyStats(ctx context.Context, s Store, pattern string) (ProxyStats, error) {
	keys, err := s.ScanKeys(ctx, pattern)
	if err != nil {
		return ProxyStats{}, err
	}

	stats := ProxyStats{Total: len(keys), ByType: make(map[string]int)}
	for _, key := range keys {
		scheme, _, _ := strings.Cut(key, "://")
		stats.ByType[scheme]++
	}
	return stats, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
