package manager

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"proxyrank/internal/database"
	"proxyrank/internal/logger"
	"proxyrank/pkg/record"
	"proxyrank/pkg/scorer"
)

// ProxySource is the read side of the pool that the status server and CLI depend on
type ProxySource interface {
	GetRanked(ctx context.Context, protocol string) ([]string, error)
	ReportOutcome(key string, success bool)
	Stats() Stats
}

// Options configures a Manager. Zero intervals disable the matching loop.
type Options struct {
	MinScore         float64
	PruneFloorOffset float64
	RebuildInterval  time.Duration
	PruneInterval    time.Duration
	KeyPattern       string

	// Registerer receives the pool metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer
	// Now overrides the clock used for scoring
	Now func() time.Time
}

// Stats is a point in time view of the pool
type Stats struct {
	Ranked     int            `json:"ranked"`
	Scanned    int            `json:"scanned"`
	Malformed  int            `json:"malformed"`
	Good       int            `json:"good"`
	Dead       int            `json:"dead"`
	ByProtocol map[string]int `json:"by_protocol"`
	BuiltAt    time.Time      `json:"built_at"`
}

// Manager ranks the records of a store and serves the ranked working set
type Manager struct {
	store    database.Store
	opts     Options
	feedback *Feedback
	metrics  *metrics
	logger   *logger.Logger

	pool    atomic.Pointer[snapshot]
	rebuild singleflight.Group
	pruneMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager over store. Nothing is read until the first Rebuild or Select.
func New(store database.Store, opts Options) *Manager {
	if opts.KeyPattern == "" {
		opts.KeyPattern = "*://*"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		store:    store,
		opts:     opts,
		feedback: NewFeedback(),
		metrics:  newMetrics(opts.Registerer),
		logger:   logger.New("manager"),
	}
}

// Start runs the periodic rebuild loop and, when PruneInterval is set, the prune loop
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.logger.Info("Starting proxy pool manager",
		"pattern", m.opts.KeyPattern,
		"min_score", m.opts.MinScore,
		"rebuild_interval", m.opts.RebuildInterval,
		"prune_interval", m.opts.PruneInterval)

	if m.opts.RebuildInterval > 0 {
		m.wg.Add(1)
		go m.rebuildLoop()
	}

	if m.opts.PruneInterval > 0 {
		m.wg.Add(1)
		go m.pruneLoop()
	}
}

// Stop signals the loops once and waits for them. A rebuild already running completes first.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}

	m.logger.Info("Stopping proxy pool manager...")
	m.cancel()
	m.wg.Wait()
	m.logger.Info("Proxy pool manager stopped")
}

// Rebuild rescans the store, rescoring every record, and publishes a new working set.
// Concurrent calls share a single pass. On error the previous working set stays in place.
// The pass is bounded by the store timeouts, not by ctx: a caller that gives up gets
// ctx.Err() while the pass still completes for everyone else waiting on it.
func (m *Manager) Rebuild(ctx context.Context) ([]Entry, error) {
	ch := m.rebuild.DoChan("rebuild", func() (interface{}, error) {
		return m.buildSnapshot(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.(*snapshot).entries), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) buildSnapshot(ctx context.Context) (*snapshot, error) {
	start := time.Now()
	log := m.logger.With("op", logger.GenerateID())

	keys, err := m.store.ScanKeys(ctx, m.opts.KeyPattern)
	if err != nil {
		m.metrics.rebuilds.WithLabelValues("error").Inc()
		log.Error("Rebuild failed to scan keys", "error", err)
		return nil, fmt.Errorf("rebuild: %w", err)
	}

	now := m.opts.Now()
	entries := make([]Entry, 0, len(keys))
	malformed := 0

	for _, key := range keys {
		fields, err := m.store.GetAllFields(ctx, key)
		if err != nil {
			m.metrics.rebuilds.WithLabelValues("error").Inc()
			log.Error("Rebuild aborted", "key", key, "error", err)
			return nil, fmt.Errorf("rebuild: %w", err)
		}
		if len(fields) == 0 {
			// removed between scan and read
			continue
		}

		rec, err := record.Parse(key, fields)
		if err != nil {
			malformed++
			m.metrics.malformed.Inc()
			log.Warn("Skipping malformed record", "key", key, "error", err)
			continue
		}
		if raw, ok := fields[record.FieldScore]; ok && !rec.HasScore {
			log.Debug("Overwriting unreadable cached score", "key", key, "score", raw)
		}

		score := scorer.Score(rec, now)
		if err := m.store.SetField(ctx, key, record.FieldScore, record.FormatScore(score)); err != nil {
			m.metrics.rebuilds.WithLabelValues("error").Inc()
			log.Error("Rebuild aborted", "key", key, "error", err)
			return nil, fmt.Errorf("rebuild: %w", err)
		}

		if score > m.opts.MinScore {
			entries = append(entries, Entry{Score: score, Key: key})
		}
	}

	sortEntries(entries)

	snap := &snapshot{
		entries:   entries,
		scanned:   len(keys),
		malformed: malformed,
		builtAt:   now,
	}
	m.pool.Store(snap)

	m.metrics.rebuilds.WithLabelValues("ok").Inc()
	m.metrics.ranked.Set(float64(len(entries)))
	m.metrics.scanned.Set(float64(len(keys)))

	log.Info("Pool rebuilt",
		"scanned", len(keys),
		"ranked", len(entries),
		"malformed", malformed,
		"took", time.Since(start).Round(time.Millisecond))

	return snap, nil
}

// Select opens a pass over the current working set, rebuilding first if none exists.
// An empty protocol matches every key.
func (m *Manager) Select(ctx context.Context, protocol string) (*Cursor, error) {
	snap := m.pool.Load()
	if snap == nil {
		if _, err := m.Rebuild(ctx); err != nil {
			return nil, err
		}
		snap = m.pool.Load()
	}
	return newCursor(snap.entries, protocol), nil
}

// GetRanked returns every ranked key of protocol, best first
func (m *Manager) GetRanked(ctx context.Context, protocol string) ([]string, error) {
	cursor, err := m.Select(ctx, protocol)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, cursor.Remaining())
	for key := range cursor.All() {
		keys = append(keys, key)
	}
	return keys, nil
}

// Entries returns a copy of the current working set, nil before the first rebuild
func (m *Manager) Entries() []Entry {
	snap := m.pool.Load()
	if snap == nil {
		return nil
	}
	return slices.Clone(snap.entries)
}

// ReportOutcome records a caller observed success or failure for key
func (m *Manager) ReportOutcome(key string, success bool) {
	if success {
		m.feedback.MarkGood(key)
	} else if m.feedback.MarkDead(key) {
		m.logger.Debug("Proxy moved from good to dead", "key", key)
	}
	m.metrics.setFeedback(m.feedback.Counts())
}

// Feedback exposes the outcome sets
func (m *Manager) Feedback() *Feedback {
	return m.feedback
}

// Stats reports the current working set and feedback counts
func (m *Manager) Stats() Stats {
	good, dead := m.feedback.Counts()
	stats := Stats{
		Good:       good,
		Dead:       dead,
		ByProtocol: make(map[string]int),
	}

	snap := m.pool.Load()
	if snap == nil {
		return stats
	}

	stats.Ranked = len(snap.entries)
	stats.Scanned = snap.scanned
	stats.Malformed = snap.malformed
	stats.BuiltAt = snap.builtAt
	for _, entry := range snap.entries {
		scheme, _, _ := strings.Cut(entry.Key, "://")
		stats.ByProtocol[scheme]++
	}
	return stats
}

// background returns a context for loop work that outlives the stop signal,
// so a pass that has started always runs to completion.
func (m *Manager) background() context.Context {
	return context.WithoutCancel(m.ctx)
}

// rebuildLoop runs the periodic pool rebuild
func (m *Manager) rebuildLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.RebuildInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.logger.Debug("Running scheduled pool rebuild...")
			if _, err := m.Rebuild(m.background()); err != nil {
				m.logger.Error("Scheduled rebuild failed", "error", err)
			}
		}
	}
}

func (m *Manager) pruneLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.PruneFailed(m.background()); err != nil {
				m.logger.Error("Scheduled prune failed", "error", err)
			}
		}
	}
}
