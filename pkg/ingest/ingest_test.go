package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyrank/internal/database"
	"proxyrank/pkg/record"
)

var testNow = time.Unix(1_700_000_000, 0)

func newTestIngestor(t *testing.T) (*Ingestor, database.Store) {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)

	store := database.NewService(db)
	t.Cleanup(func() { _ = store.Close() })

	ing := New(store, 10)
	ing.now = func() time.Time { return testNow }
	return ing, store
}

func TestRecordProxyNewKey(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	require.NoError(t, ing.RecordProxy(ctx, "  203.0.113.7:3128 \n"))

	fields, err := store.GetAllFields(ctx, "http://203.0.113.7:3128")
	require.NoError(t, err)
	assert.Equal(t, record.Fresh(testNow), fields)
}

func TestRecordProxyExistingKeyRefreshesTimestamp(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()
	key := "socks5://203.0.113.7:1080"

	require.NoError(t, ing.RecordProxy(ctx, key))
	require.NoError(t, store.SetField(ctx, key, record.FieldUsedCount, "7"))
	require.NoError(t, store.SetField(ctx, key, record.FieldSuccessCount, "3"))

	ing.now = func() time.Time { return testNow.Add(time.Hour) }
	require.NoError(t, ing.RecordProxy(ctx, "SOCKS5://203.0.113.7:1080"))

	fields, err := store.GetAllFields(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "7", fields[record.FieldUsedCount])
	assert.Equal(t, "3", fields[record.FieldSuccessCount])
	assert.Equal(t, "1700003600", fields[record.FieldTimestamp])
}

// interruptedStore writes only the timestamp and score of a multi-field write and then fails,
// leaving the kind of incomplete record a crashed writer can leave behind.
type interruptedStore struct {
	database.Store
	interrupt bool
}

func (s *interruptedStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if !s.interrupt {
		return s.Store.SetFields(ctx, key, fields)
	}
	for _, name := range []string{record.FieldTimestamp, record.FieldScore} {
		if value, ok := fields[name]; ok {
			if err := s.Store.SetField(ctx, key, name, value); err != nil {
				return err
			}
		}
	}
	return errors.New("connection reset")
}

func TestRecordProxyRepairsIncompleteRecord(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()
	key := "http://203.0.113.9:8080"

	interrupted := &interruptedStore{Store: store, interrupt: true}
	ing.store = interrupted
	require.Error(t, ing.RecordProxy(ctx, key))

	fields, err := store.GetAllFields(ctx, key)
	require.NoError(t, err)
	_, err = record.Parse(key, fields)
	require.ErrorIs(t, err, record.ErrMalformedRecord)

	interrupted.interrupt = false
	ing.now = func() time.Time { return testNow.Add(time.Minute) }
	require.NoError(t, ing.RecordProxy(ctx, key))

	fields, err = store.GetAllFields(ctx, key)
	require.NoError(t, err)
	rec, err := record.Parse(key, fields)
	require.NoError(t, err)
	assert.Zero(t, rec.UsedCount)
	assert.Zero(t, rec.SuccessCount)
	assert.Zero(t, rec.TotalSeconds)
	assert.Equal(t, "", fields[record.FieldLastFail])
	assert.Equal(t, "1700000060", fields[record.FieldTimestamp])
}

func TestRecordProxyRejectsInvalidInput(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	cases := map[string]string{
		"too short":   "1.2.3.4:8",
		"bad scheme":  "ftp://203.0.113.7:21",
		"no port":     "http://203.0.113.7",
		"port zero":   "http://203.0.113.7:0",
		"port range":  "http://203.0.113.7:70000",
		"no host":     "http://:8080abcdef",
		"garbage":     "not a proxy at all",
		"only spaces": "              ",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			err := ing.RecordProxy(ctx, raw)
			assert.ErrorIs(t, err, record.ErrInvalidProxyFormat)
		})
	}

	keys, err := store.ScanKeys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLoad(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	input := strings.Join([]string{
		"# exported list",
		"",
		"http://203.0.113.1:8080",
		"https://203.0.113.2:443",
		"bogus",
		"203.0.113.3:3128",
		"http://203.0.113.1:8080",
		"   ",
	}, "\n")

	result, err := ing.Load(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, Result{Lines: 5, Recorded: 4, Rejected: 1}, result)

	keys, err := store.ScanKeys(ctx, "*://*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"http://203.0.113.1:8080",
		"https://203.0.113.2:443",
		"http://203.0.113.3:3128",
	}, keys)
}

func TestLoadStopsOnStoreFailure(t *testing.T) {
	ing, store := newTestIngestor(t)
	require.NoError(t, store.Close())

	_, err := ing.Load(context.Background(), strings.NewReader("http://203.0.113.1:8080\n"))
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)
}
