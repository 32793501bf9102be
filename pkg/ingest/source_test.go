package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	name    string
	entries []string
	err     error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Fetch(ctx context.Context) ([]string, error) {
	return s.entries, s.err
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("# header\nhttp://203.0.113.1:8080\n\n203.0.113.2:3128\n"), 0o644))

	src := NewFileSource(path)
	entries, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://203.0.113.1:8080", "203.0.113.2:3128"}, entries)
	assert.Equal(t, "file:"+path, src.Name())

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.txt")).Fetch(context.Background())
	assert.Error(t, err)
}

func TestTextListSourceExpandsBareEntries(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, "203.0.113.1:8080\r\nsocks5://203.0.113.2:1080\n\n")
	}))
	defer srv.Close()

	src := NewTextListSource(srv.URL, SourceConfig{Timeout: time.Second, UserAgent: "proxyrank-test/1.0"})
	entries, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://203.0.113.1:8080",
		"https://203.0.113.1:8080",
		"socks5://203.0.113.2:1080",
	}, entries)
	assert.Equal(t, "proxyrank-test/1.0", gotUA)
}

func TestTextListSourceCustomProtocols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "203.0.113.1:1080")
	}))
	defer srv.Close()

	src := NewTextListSource(srv.URL, SourceConfig{Timeout: time.Second, Protocols: []string{"socks4"}})
	entries, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"socks4://203.0.113.1:1080"}, entries)
}

func TestTextListSourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewTextListSource(srv.URL, SourceConfig{Timeout: time.Second}).Fetch(context.Background())
	assert.EqualError(t, err, "HTTP 502")
}

func TestMultiRun(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	boom := errors.New("connection refused")
	multi := NewMulti(ing,
		staticSource{name: "a", entries: []string{"http://203.0.113.1:8080", "http://203.0.113.2:8080"}},
		staticSource{name: "b", entries: []string{"http://203.0.113.2:8080", "nonsense"}},
		staticSource{name: "down", err: boom},
	)

	result, err := multi.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
	assert.Contains(t, err.Error(), "down")

	assert.Equal(t, Result{Lines: 3, Recorded: 2, Rejected: 1}, result)

	keys, err := store.ScanKeys(ctx, "http://*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestMultiRunAllHealthy(t *testing.T) {
	ing, _ := newTestIngestor(t)

	multi := NewMulti(ing, staticSource{name: "a", entries: []string{"https://203.0.113.9:443"}})
	result, err := multi.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recorded)
	assert.Len(t, multi.Sources(), 1)
}

func TestMultiRunEveryStopsWithContext(t *testing.T) {
	ing, _ := newTestIngestor(t)
	multi := NewMulti(ing, staticSource{name: "a", entries: []string{"https://203.0.113.9:443"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		multi.RunEvery(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunEvery did not return after cancel")
	}
}
