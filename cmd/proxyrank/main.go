package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"proxyrank/internal/config"
	"proxyrank/internal/logger"
	"proxyrank/pkg/ingest"
	"proxyrank/pkg/manager"
	"proxyrank/pkg/status"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	genConfig  = flag.Bool("gen-config", false, "Generate default config file")
	version    = flag.Bool("version", false, "Show version")

	loadFile = flag.String("load", "", "Ingest proxies from a file, one per line")
	dumpFile = flag.String("dump", "", "Write ranked proxies to a file, one per line")
	protocol = flag.String("protocol", "", "Protocol filter for -dump and -peers (http, https, socks4, socks5)")
	peerConf = flag.Bool("peers", false, "Print squid cache_peer lines for the ranked proxies")
	prune    = flag.Bool("prune", false, "Delete records at or below the prune floor")
)

const (
	Version = "1.0.0"
	Banner  = `
______ ______ ______ ______ ______ ______ ______ ______

 ┏━┓┏━┓┏━┓╻ ╻╻ ╻┏━┓┏━┓┏┓╻╻┏
 ┣━┛┣┳┛┃ ┃┏╋┛┗┳┛┣┳┛┣━┫┃┗┫┣┻┓
 ╹  ╹┗╸┗━┛╹ ╹ ╹ ╹┗╸╹ ╹╹ ╹╹ ╹

______ ______ ______ ______ ______ ______ ______ ______

ProxyRank - Proxy Scoring and Selection v%s

______ ______ ______ ______ ______ ______ ______ ______

`
)

var log = logger.New("main")

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("ProxyRank v%s\n", Version)
		return
	}

	fmt.Printf(Banner, Version)

	if *genConfig {
		if err := config.SaveConfigTemplate("config.yaml"); err != nil {
			log.Fatal("Failed to generate config", "error", err)
		}
		fmt.Println("Default config generated: config.yaml")
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	logger.SetLevel(cfg.Log.Level)
	log.Info("Starting ProxyRank", "version", Version)
	config.PrintConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal("Failed to open record store", "backend", cfg.Store.Backend, "error", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mgr := manager.New(store, manager.Options{
		MinScore:         cfg.Pool.MinScore,
		PruneFloorOffset: cfg.Pool.PruneFloorOffset,
		RebuildInterval:  cfg.Pool.RebuildInterval,
		PruneInterval:    cfg.Pool.PruneInterval,
		KeyPattern:       cfg.Pool.KeyPattern,
		Registerer:       registry,
	})
	ingestor := ingest.New(store, cfg.Pool.MinProxyKeyLength)

	if isAction() {
		if err := runActions(ctx, mgr, ingestor, os.Stdout); err != nil {
			log.Fatal("Command failed", "error", err)
		}
		return
	}

	// Daemon mode
	if _, err := mgr.Rebuild(ctx); err != nil {
		log.Warn("Initial rebuild failed, retrying on the next interval", "error", err)
	}
	mgr.Start(ctx)

	var wg sync.WaitGroup

	sources := buildSources(cfg.Ingest)
	if len(sources) > 0 {
		multi := ingest.NewMulti(ingestor, sources...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			multi.RunEvery(ctx, cfg.Ingest.Interval)
		}()
	}

	var server *status.Server
	if cfg.Status.Enabled {
		server = status.NewServer(mgr, store, registry, status.Config{
			ListenAddr: cfg.Status.ListenAddr,
			KeyPattern: cfg.Pool.KeyPattern,
		})
		go func() {
			if err := server.Start(); err != nil {
				log.Error("Status server error", "error", err)
			}
		}()
	}

	log.Info("Press Ctrl+C to stop")
	<-ctx.Done()
	log.Info("Shutting down...")

	// Stop the manager first to cancel background operations
	mgr.Stop()
	wg.Wait()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error("Status server shutdown error", "error", err)
		}
	}

	log.Info("Shutdown complete")
}

func isAction() bool {
	return *loadFile != "" || *dumpFile != "" || *peerConf || *prune
}
