package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"proxyrank/internal/database"
	"proxyrank/internal/logger"
	"proxyrank/pkg/record"
)

// Result summarizes one ingest pass
type Result struct {
	Lines    int `json:"lines"`
	Recorded int `json:"recorded"`
	Rejected int `json:"rejected"`
}

// Ingestor validates proxy entries and writes them to the record store
type Ingestor struct {
	store        database.Store
	minKeyLength int
	now          func() time.Time
	logger       *logger.Logger
}

// New returns an Ingestor that rejects keys shorter than minKeyLength
func New(store database.Store, minKeyLength int) *Ingestor {
	return &Ingestor{
		store:        store,
		minKeyLength: minKeyLength,
		now:          time.Now,
		logger:       logger.New("ingest"),
	}
}

// RecordProxy stores raw as a proxy record. A new key starts with zeroed counters,
// an existing one gets its timestamp refreshed and any missing counter filled with its
// starting value. Invalid input never touches the store.
func (i *Ingestor) RecordProxy(ctx context.Context, raw string) error {
	key, err := record.NormalizeKey(raw, i.minKeyLength)
	if err != nil {
		return err
	}

	fields, err := i.store.GetAllFields(ctx, key)
	if err != nil {
		return err
	}

	now := i.now()
	fresh := record.Fresh(now)
	if len(fields) == 0 {
		if err := i.store.SetFields(ctx, key, fresh); err != nil {
			return err
		}
		i.logger.Debug("Recorded new proxy", "key", key)
		return nil
	}

	update := map[string]string{record.FieldTimestamp: fresh[record.FieldTimestamp]}
	var missing []string
	for name, value := range fresh {
		if _, ok := fields[name]; !ok && name != record.FieldTimestamp {
			update[name] = value
			missing = append(missing, name)
		}
	}
	if err := i.store.SetFields(ctx, key, update); err != nil {
		return err
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		i.logger.Warn("Repaired incomplete proxy record", "key", key, "fields", missing)
	}
	return nil
}

// Load records one proxy per line from r. Blank lines and # comments are skipped,
// invalid entries are counted and passed over. A store failure stops the load.
func (i *Ingestor) Load(ctx context.Context, r io.Reader) (Result, error) {
	entries, err := parseLines(r)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read proxy list: %w", err)
	}
	return i.recordAll(ctx, entries)
}

func (i *Ingestor) recordAll(ctx context.Context, entries []string) (Result, error) {
	var result Result
	for _, entry := range entries {
		result.Lines++
		if err := i.RecordProxy(ctx, entry); err != nil {
			if errors.Is(err, record.ErrInvalidProxyFormat) {
				result.Rejected++
				i.logger.Debug("Rejected proxy entry", "entry", entry, "error", err)
				continue
			}
			return result, err
		}
		result.Recorded++
	}
	return result, nil
}

// parseLines returns the trimmed, non-comment lines of r
func parseLines(r io.Reader) ([]string, error) {
	var entries []string
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}

	return entries, scanner.Err()
}
