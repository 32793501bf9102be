package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"proxyrank/internal/logger"
)

// Source yields raw proxy entries for the ingestor
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]string, error)
}

// SourceConfig tunes remote list fetches
type SourceConfig struct {
	Timeout   time.Duration
	UserAgent string
	// Protocols expand bare host:port entries, one key per protocol
	Protocols []string
}

// FileSource reads a local proxy list, one entry per line
type FileSource struct {
	Path string
}

// NewFileSource reads proxies from a local file
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Name() string {
	return "file:" + f.Path
}

func (f *FileSource) Fetch(ctx context.Context) ([]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseLines(file)
}

// TextListSource downloads a plain text proxy list
type TextListSource struct {
	url       string
	client    *http.Client
	userAgent string
	protocols []string
	logger    *logger.Logger
}

// NewTextListSource fetches a plain text proxy list over HTTP
func NewTextListSource(listURL string, config SourceConfig) *TextListSource {
	protocols := config.Protocols
	if len(protocols) == 0 {
		protocols = []string{"http", "https"}
	}

	return &TextListSource{
		url: listURL,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		userAgent: config.UserAgent,
		protocols: protocols,
		logger:    logger.New("textlist"),
	}
}

func (t *TextListSource) Name() string {
	if u, err := url.Parse(t.url); err == nil && u.Host != "" {
		return u.Host
	}
	return t.url
}

func (t *TextListSource) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, err
	}

	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	lines, err := parseLines(resp.Body)
	if err != nil {
		return nil, err
	}

	entries := make([]string, 0, len(lines))
	bare := 0
	for _, line := range lines {
		if strings.Contains(line, "://") {
			entries = append(entries, line)
			continue
		}
		bare++
		for _, protocol := range t.protocols {
			entries = append(entries, protocol+"://"+line)
		}
	}

	t.logger.Debug("Fetched proxy list", "source", t.Name(), "lines", len(lines), "bare", bare)
	return entries, nil
}
