package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"proxyrank/internal/logger"
)

// maxConcurrentFetches bounds how many sources download at once
const maxConcurrentFetches = 4

// Multi fetches several sources and records their combined entries
type Multi struct {
	sources  []Source
	ingestor *Ingestor
	logger   *logger.Logger
}

// NewMulti combines sources behind one ingestor
func NewMulti(ingestor *Ingestor, sources ...Source) *Multi {
	return &Multi{
		sources:  sources,
		ingestor: ingestor,
		logger:   logger.New("multisource"),
	}
}

// Sources returns the configured sources
func (m *Multi) Sources() []Source {
	return m.sources
}

// Run fetches every source concurrently, then records each unique entry once.
// A failing source does not stop the others; all failures come back as one error.
func (m *Multi) Run(ctx context.Context) (Result, error) {
	var (
		mu     sync.Mutex
		errs   *multierror.Error
		perSrc = make([][]string, len(m.sources))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for i, src := range m.sources {
		g.Go(func() error {
			entries, err := src.Fetch(gctx)
			if err != nil {
				m.logger.Warn("Source failed", "source", src.Name(), "error", err)
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", src.Name(), err))
				mu.Unlock()
				return nil
			}
			perSrc[i] = entries
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var unique []string
	for i, entries := range perSrc {
		uniqueCount := 0
		for _, entry := range entries {
			if !seen[entry] {
				seen[entry] = true
				unique = append(unique, entry)
				uniqueCount++
			}
		}
		if entries != nil {
			m.logger.Info("Source collected", "source", m.sources[i].Name(), "total", len(entries), "unique", uniqueCount)
		}
	}

	result, err := m.ingestor.recordAll(ctx, unique)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("record: %w", err))
	}

	m.logger.Info("Ingest finished",
		"sources", len(m.sources),
		"unique", len(unique),
		"recorded", result.Recorded,
		"rejected", result.Rejected)

	return result, errs.ErrorOrNil()
}

// RunEvery runs an ingest pass right away and then on every interval until ctx is done
func (m *Multi) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.Run(ctx); err != nil {
			m.logger.Error("Ingest pass had failures", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
