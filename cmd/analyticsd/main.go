// Command analyticsd runs the embedded analytics store behind its HTTP API
// and gRPC health endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arkilian/analytica/internal/app"
	"github.com/arkilian/analytica/internal/config"
	"github.com/arkilian/analytica/internal/observability"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configFile string
	envFile    string
	dataDir    string
	httpAddr   string
	grpcAddr   string
	logLevel   string
	exportNow  bool
}

func main() {
	var f flags
	var showVersion bool

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.envFile, "env-file", ".env", "Optional dotenv file loaded before the environment is read")
	flag.StringVar(&f.dataDir, "data-dir", "", "Base directory for the database and local exports")
	flag.StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC health listen address")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&f.exportNow, "export-now", false, "Write one export snapshot and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "analyticsd - embedded analytics event store\n\n")
		fmt.Fprintf(os.Stderr, "Usage: analyticsd [options]\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables use the ANALYTICA_ prefix, e.g.\n")
		fmt.Fprintf(os.Stderr, "  ANALYTICA_DATA_DIR, ANALYTICA_RETENTION_MAX_RECORDS, ANALYTICA_EXPORT_SCHEDULE\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("analyticsd version %s (commit: %s)\n", version, commit)
		return
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "analyticsd: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	if f.envFile != "" {
		// a missing file is fine
		_ = godotenv.Load(f.envFile)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"version":  version,
		"commit":   commit,
		"data_dir": cfg.DataDir,
		"storage":  cfg.Storage.Type,
	}).Info("analyticsd: starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if f.exportNow {
		defer a.Service().Close()
		return a.RunExport(ctx)
	}
	return a.Run(ctx)
}

// loadConfig layers defaults, the config file, the environment and flags,
// later sources winning.
func loadConfig(f flags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configFile != "" {
		loaded, err := config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	config.LoadFromEnv(cfg)

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.GRPC.Addr = f.grpcAddr
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}
