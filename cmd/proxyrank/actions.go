package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"proxyrank/internal/config"
	"proxyrank/internal/database"
	"proxyrank/pkg/ingest"
	"proxyrank/pkg/manager"
	"proxyrank/pkg/peers"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (database.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := database.NewDB(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return database.NewService(db), nil
	default:
		client, err := database.NewRedisClient(ctx, database.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Timeout:  cfg.Redis.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return database.NewRedisStore(client, cfg.Redis.Timeout), nil
	}
}

func buildSources(cfg config.IngestConfig) []ingest.Source {
	sourceConfig := ingest.SourceConfig{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Protocols: cfg.Protocols,
	}

	sources := make([]ingest.Source, 0, len(cfg.Sources)+len(cfg.Files))
	for _, listURL := range cfg.Sources {
		sources = append(sources, ingest.NewTextListSource(listURL, sourceConfig))
	}
	for _, path := range cfg.Files {
		sources = append(sources, ingest.NewFileSource(path))
	}
	return sources
}

// runActions performs the one-shot commands in a fixed order: load, prune, dump, peers.
// Peer lines go to out.
func runActions(ctx context.Context, mgr *manager.Manager, ingestor *ingest.Ingestor, out io.Writer) error {
	if *loadFile != "" {
		if err := loadProxies(ctx, ingestor, *loadFile); err != nil {
			return err
		}
	}

	if *prune {
		removed, err := mgr.PruneFailed(ctx)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		log.Info("Prune complete", "removed", removed, "floor", mgr.PruneFloor())
	}

	if *dumpFile != "" {
		keys, err := mgr.GetRanked(ctx, *protocol)
		if err != nil {
			return fmt.Errorf("dump: %w", err)
		}
		if err := dumpProxies(*dumpFile, keys); err != nil {
			return err
		}
		log.Info("Ranked proxies written", "path", *dumpFile, "count", len(keys), "protocol", *protocol)
	}

	if *peerConf {
		keys, err := mgr.GetRanked(ctx, *protocol)
		if err != nil {
			return fmt.Errorf("peers: %w", err)
		}
		if err := writePeerConf(out, keys); err != nil {
			return err
		}
	}

	return nil
}

func loadProxies(ctx context.Context, ingestor *ingest.Ingestor, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open proxy list: %w", err)
	}
	defer file.Close()

	result, err := ingestor.Load(ctx, file)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	log.Info("Proxy list loaded",
		"path", path,
		"lines", result.Lines,
		"recorded", result.Recorded,
		"rejected", result.Rejected)
	return nil
}

// dumpProxies writes keys to path one per line, replacing any existing file
func dumpProxies(path string, keys []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create dump directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer file.Close()

	if err := writeLines(file, keys); err != nil {
		return fmt.Errorf("failed to write dump file: %w", err)
	}
	return file.Close()
}

func writePeerConf(out io.Writer, keys []string) error {
	list, err := peers.FromRanked(keys)
	if err != nil {
		log.Warn("Skipped malformed ranked keys", "error", err)
	}

	lines := append(peers.CachePeerLines(list), "")
	lines = append(lines, peers.AnonymityDirectives...)
	return writeLines(out, lines)
}

func writeLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
