package manager

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyrank/internal/database"
	"proxyrank/pkg/record"
)

func TestPruneFailed(t *testing.T) {
	m, store, _ := newTestManager(t, Options{MinScore: 0, PruneFloorOffset: 2})
	ctx := context.Background()

	scores := map[string]string{
		"http://10.0.0.1:8080": "-3.00",
		"http://10.0.0.2:8080": "-2.00",
		"http://10.0.0.3:8080": "-1.99",
		"http://10.0.0.4:8080": "5.10",
		"http://10.0.0.5:8080": "garbage",
	}
	for key, score := range scores {
		require.NoError(t, store.SetField(ctx, key, record.FieldScore, score))
	}
	require.NoError(t, store.SetField(ctx, "http://10.0.0.6:8080", record.FieldUsedCount, "1"))

	assert.Equal(t, -2.0, m.PruneFloor())

	removed, err := m.PruneFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := store.ScanKeys(ctx, "*://*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"http://10.0.0.3:8080",
		"http://10.0.0.4:8080",
		"http://10.0.0.5:8080",
		"http://10.0.0.6:8080",
	}, keys)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.pruned))

	removed, err = m.PruneFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "second pass finds nothing left to remove")
}

func TestPruneAfterRebuild(t *testing.T) {
	m, store, _ := newTestManager(t, Options{})
	ctx := context.Background()

	putRecord(t, store, "http://10.0.0.1:8080", 10, 5, 30, "", time.Minute)
	putRecord(t, store, "http://10.0.0.2:8080", 5, 0, 0, "", time.Minute)

	_, err := m.Rebuild(ctx)
	require.NoError(t, err)

	removed, err := m.PruneFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	fields, err := store.GetAllFields(ctx, "http://10.0.0.2:8080")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestPruneRefusesOverlap(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})

	m.pruneMu.Lock()
	_, err := m.PruneFailed(context.Background())
	m.pruneMu.Unlock()

	assert.ErrorIs(t, err, ErrPruneInProgress)

	_, err = m.PruneFailed(context.Background())
	assert.NoError(t, err)
}

func TestPruneStoreUnavailable(t *testing.T) {
	m, _, mr := newTestManager(t, Options{})
	mr.Close()

	removed, err := m.PruneFailed(context.Background())
	assert.Zero(t, removed)
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)
}
