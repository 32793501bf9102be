package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proxyrank/internal/logger"
	"proxyrank/pkg/record"
)

// ErrPruneInProgress is returned when a prune pass is asked for while one is running
var ErrPruneInProgress = errors.New("prune already in progress")

// PruneFloor is the persisted score at or below which a record is deleted
func (m *Manager) PruneFloor() float64 {
	return m.opts.MinScore - m.opts.PruneFloorOffset
}

// PruneFailed deletes every record whose persisted score is at or below the prune floor
// and returns how many were deleted. Records without a readable score are left alone.
func (m *Manager) PruneFailed(ctx context.Context) (int, error) {
	if !m.pruneMu.TryLock() {
		return 0, ErrPruneInProgress
	}
	defer m.pruneMu.Unlock()

	start := time.Now()
	floor := m.PruneFloor()
	log := m.logger.With("op", logger.GenerateID())

	keys, err := m.store.ScanKeys(ctx, m.opts.KeyPattern)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}

	removed := 0
	for _, key := range keys {
		fields, err := m.store.GetAllFields(ctx, key)
		if err != nil {
			m.metrics.pruned.Add(float64(removed))
			return removed, fmt.Errorf("prune: %w", err)
		}
		if len(fields) == 0 {
			continue
		}

		raw, ok := fields[record.FieldScore]
		if !ok {
			log.Warn("Skipping record without score", "key", key)
			continue
		}
		score, err := record.ParseScore(raw)
		if err != nil {
			log.Warn("Skipping record with unreadable score", "key", key, "error", err)
			continue
		}

		if score > floor {
			continue
		}

		if err := m.store.Delete(ctx, key); err != nil {
			m.metrics.pruned.Add(float64(removed))
			return removed, fmt.Errorf("prune: %w", err)
		}
		removed++
		log.Debug("Pruned proxy", "key", key, "score", score)
	}

	m.metrics.pruned.Add(float64(removed))
	log.Info("Prune finished",
		"scanned", len(keys),
		"removed", removed,
		"floor", floor,
		"took", time.Since(start).Round(time.Millisecond))

	return removed, nil
}
