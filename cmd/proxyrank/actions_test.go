package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyrank/internal/config"
	"proxyrank/pkg/ingest"
	"proxyrank/pkg/manager"
)

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()

	sqliteStore, err := openStore(ctx, config.StoreConfig{
		Backend: "sqlite",
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cli.db")},
	})
	require.NoError(t, err)
	require.NoError(t, sqliteStore.SetField(ctx, "http://203.0.113.1:8080", "score", "1.00"))
	require.NoError(t, sqliteStore.Close())

	mr := miniredis.RunT(t)
	redisStore, err := openStore(ctx, config.StoreConfig{
		Backend: "redis",
		Redis:   config.RedisConfig{Addr: mr.Addr(), Timeout: time.Second},
	})
	require.NoError(t, err)
	require.NoError(t, redisStore.SetField(ctx, "http://203.0.113.1:8080", "score", "1.00"))
	assert.Equal(t, "1.00", mr.HGet("http://203.0.113.1:8080", "score"))
	require.NoError(t, redisStore.Close())
}

func TestBuildSources(t *testing.T) {
	sources := buildSources(config.IngestConfig{
		Sources:   []string{"https://lists.example.com/http.txt"},
		Files:     []string{"./proxies.txt"},
		Timeout:   time.Second,
		Protocols: []string{"http"},
	})

	require.Len(t, sources, 2)
	assert.Equal(t, "lists.example.com", sources[0].Name())
	assert.Equal(t, "file:./proxies.txt", sources[1].Name())
}

func TestLoadDumpAndPeers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := openStore(ctx, config.StoreConfig{
		Backend: "sqlite",
		SQLite:  config.SQLiteConfig{Path: filepath.Join(dir, "cli.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	list := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(list, []byte("http://203.0.113.1:8080\nbogus\n"), 0o644))

	ingestor := ingest.New(store, 10)
	require.NoError(t, loadProxies(ctx, ingestor, list))

	// a freshly ingested record has no successes yet, so make it rank
	key := "http://203.0.113.1:8080"
	require.NoError(t, store.SetField(ctx, key, "used_count", "4"))
	require.NoError(t, store.SetField(ctx, key, "success_count", "4"))
	require.NoError(t, store.SetField(ctx, key, "total_seconds", "8"))

	mgr := manager.New(store, manager.Options{PruneFloorOffset: 2})
	keys, err := mgr.GetRanked(ctx, "http")
	require.NoError(t, err)
	require.Equal(t, []string{key}, keys)

	dump := filepath.Join(dir, "out", "ranked.txt")
	require.NoError(t, dumpProxies(dump, keys))
	content, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Equal(t, key+"\n", string(content))

	var out bytes.Buffer
	require.NoError(t, writePeerConf(&out, append(keys, "nonsense")))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Equal(t, "cache_peer 203.0.113.1 parent 8080 0 no-query weighted-round-robin weight=1 connect-fail-limit=2 allow-miss max-conn=5 name=proxy-0", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "never_direct allow all", lines[len(lines)-1])
}
