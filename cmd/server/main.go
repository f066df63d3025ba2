package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/daniela2708/ganaderia/pkg/api"
	"github.com/daniela2708/ganaderia/pkg/chassis"
	"github.com/daniela2708/ganaderia/pkg/dashboard"
	"github.com/daniela2708/ganaderia/pkg/dataset"
	"github.com/daniela2708/ganaderia/pkg/importer"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "import":
		cmdImport(os.Args[2:])
	case "snapshot":
		cmdSnapshot(os.Args[2:])
	case "call":
		cmdCall(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: ganaderia <command> [flags]

Commands:
  serve     Start the dashboard API (HTTP, HTTP/3, MCP)
  mcp       Serve the MCP tools on stdio
  import    Download the census tables from their sources
  snapshot  Write data.gob from the CSV tables
  call      Call an MCP tool on a running server over QUIC
`)
}

// commonFlags registers the config flags shared by every subcommand.
func commonFlags(fs *flag.FlagSet) (cfgPath, envFile *string) {
	cfgPath = fs.String("config", "config.yaml", "path to config file")
	envFile = fs.String("env", ".env", "optional dotenv file")
	return
}

func mustConfig(cfgPath, envFile string) (config, *slog.Logger) {
	cfg, err := loadConfig(cfgPath, envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg, newLogger(cfg.LogLevel)
}

// newStack builds the store, query service and endpoints shared by serve and mcp.
func newStack(cfg config, logger *slog.Logger) (*dataset.Store, *dashboard.Service, *api.Endpoints) {
	store := dataset.NewStore(cfg.DataDir, logger)
	if err := store.Load(); err != nil {
		logger.Error("dataset not loaded, serving without data until reload", "dir", cfg.DataDir, "error", err)
	}
	svc := dashboard.New(store, cfg.CacheTTL, logger)
	return store, svc, api.NewEndpoints(svc, store, logger)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath, envFile := commonFlags(fs)
	fs.Parse(args)

	cfg, logger := mustConfig(*cfgPath, *envFile)
	store, svc, eps := newStack(cfg, logger)
	mcpSrv := api.NewMCPServer(eps, version)

	router := api.NewRouter(api.RouterConfig{
		Endpoints: eps,
		MCP:       server.NewStreamableHTTPServer(mcpSrv),
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	})

	// SIGINT/SIGTERM: graceful shutdown. SIGHUP: reload the dataset.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info("SIGHUP received, reloading dataset")
			if err := store.Reload(); err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			svc.Flush()
		}
	}()

	if cfg.Watch {
		w, err := dataset.NewWatcher(store, logger, dataset.DefaultDebounce)
		if err != nil {
			logger.Warn("data dir watch disabled", "error", err)
		} else {
			defer w.Close()
			w.OnReload = svc.Flush
			go w.Run(ctx)
		}
	}

	if cfg.CheckInterval > 0 {
		sdb, err := openSources(cfg.DataDir)
		if err != nil {
			logger.Warn("source checks disabled", "error", err)
		} else {
			defer sdb.Close()
			go importer.NewChecker(sdb, logger, cfg.CheckInterval).Start(ctx)
		}
	}

	srv, err := chassis.New(chassis.Config{
		Addr:      cfg.Addr,
		CertFile:  cfg.TLS.CertFile,
		KeyFile:   cfg.TLS.KeyFile,
		Plain:     !cfg.TLS.Enabled,
		Handler:   router,
		MCPServer: mcpSrv,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("chassis", "error", err)
		os.Exit(1)
	}

	logger.Info("ganaderia listening", "addr", cfg.Addr, "tls", cfg.TLS.Enabled, "version", version)
	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	cfgPath, envFile := commonFlags(fs)
	fs.Parse(args)

	cfg, logger := mustConfig(*cfgPath, *envFile)
	_, _, eps := newStack(cfg, logger)
	if err := server.ServeStdio(api.NewMCPServer(eps, version)); err != nil {
		logger.Error("mcp stdio", "error", err)
		os.Exit(1)
	}
}

func cmdSnapshot(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	cfgPath, envFile := commonFlags(fs)
	fs.Parse(args)

	cfg, logger := mustConfig(*cfgPath, *envFile)
	ds, err := dataset.Load(cfg.DataDir, logger)
	if err != nil {
		logger.Error("load dataset", "error", err)
		os.Exit(1)
	}
	if ds.Origin == dataset.OriginGob {
		logger.Info("snapshot already up to date", "dir", cfg.DataDir)
		return
	}
	path := filepath.Join(cfg.DataDir, dataset.SnapshotFile)
	if err := dataset.SaveGob(ds, path); err != nil {
		logger.Error("write snapshot", "error", err)
		os.Exit(1)
	}
	logger.Info("snapshot written", "path", path, "animals", len(ds.Animals), "farms", len(ds.Farms))
}

func openSources(dataDir string) (*importer.SourceDB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	sdb, err := importer.OpenSourceDB(filepath.Join(dataDir, sourcesDB))
	if err != nil {
		return nil, err
	}
	if err := sdb.Seed(importer.All()); err != nil {
		sdb.Close()
		return nil, err
	}
	return sdb, nil
}
