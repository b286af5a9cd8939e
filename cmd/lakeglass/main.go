package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/lakeglass/lakeglass/pkg/compiler"
	"github.com/lakeglass/lakeglass/pkg/executor"
	"github.com/lakeglass/lakeglass/pkg/forecast"
	"github.com/lakeglass/lakeglass/pkg/llm"
	"github.com/lakeglass/lakeglass/pkg/logger"
	"github.com/lakeglass/lakeglass/pkg/metrics"
	"github.com/lakeglass/lakeglass/pkg/orchestrator"
	"github.com/lakeglass/lakeglass/pkg/profile"
	"github.com/lakeglass/lakeglass/pkg/server"
	"github.com/lakeglass/lakeglass/pkg/store"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr       = "0.0.0.0:8090"
	defaultMetricsAddr      = "0.0.0.0:8080"
	defaultStatementTimeout = 30 * time.Second
	defaultProfileTTL       = 5 * time.Minute
	defaultShutdownTimeout  = 10 * time.Second
	defaultModel            = "claude-sonnet-4-20250514"
)

// fileConfig mirrors the flag surface for --config files. Flags set on the
// command line win over file values.
type fileConfig struct {
	ListenAddr       string        `yaml:"listenAddr"`
	MetricsAddr      string        `yaml:"metricsAddr"`
	DataDir          string        `yaml:"dataDir"`
	DBPath           string        `yaml:"dbPath"`
	StatementTimeout time.Duration `yaml:"statementTimeout"`
	ProfileTTL       time.Duration `yaml:"profileTTL"`
	Provider         string        `yaml:"provider"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"baseURL"`
	PanelPoolSize    int           `yaml:"panelPoolSize"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	configFlag := flag.String("config", "", "path to an optional YAML config file")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP server listen address")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (empty to disable)")
	dataDirFlag := flag.String("data-dir", "./data", "Directory of CSV/JSON files to load on startup")
	dbPathFlag := flag.String("db-path", "", "DuckDB database file path (empty for in-memory)")
	statementTimeoutFlag := flag.Duration("statement-timeout", defaultStatementTimeout, "Per-statement execution timeout")
	profileTTLFlag := flag.Duration("profile-ttl", defaultProfileTTL, "Schema profile cache TTL")
	providerFlag := flag.String("provider", llm.ProviderAnthropic, "Text generation provider: anthropic or chat")
	modelFlag := flag.String("model", defaultModel, "Model name (or set LAKEGLASS_MODEL env var)")
	baseURLFlag := flag.String("base-url", "", "Chat provider base URL (or set LAKEGLASS_BASE_URL env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", defaultShutdownTimeout, "Server shutdown timeout")
	panelPoolSizeFlag := flag.Int("panel-pool-size", 0, "Concurrent panel execution limit (0 for default)")

	flag.Parse()

	if *configFlag != "" {
		cfg, err := readConfigFile(*configFlag)
		if err != nil {
			return err
		}
		applyString(cfg.ListenAddr, "listen-addr", listenAddrFlag)
		applyString(cfg.MetricsAddr, "metrics-addr", metricsAddrFlag)
		applyString(cfg.DataDir, "data-dir", dataDirFlag)
		applyString(cfg.DBPath, "db-path", dbPathFlag)
		applyString(cfg.Provider, "provider", providerFlag)
		applyString(cfg.Model, "model", modelFlag)
		applyString(cfg.BaseURL, "base-url", baseURLFlag)
		applyDuration(cfg.StatementTimeout, "statement-timeout", statementTimeoutFlag)
		applyDuration(cfg.ProfileTTL, "profile-ttl", profileTTLFlag)
		applyInt(cfg.PanelPoolSize, "panel-pool-size", panelPoolSizeFlag)
	}

	// Environment variables override flag defaults.
	if env := os.Getenv("LAKEGLASS_MODEL"); env != "" && !flag.CommandLine.Changed("model") {
		*modelFlag = env
	}
	if env := os.Getenv("LAKEGLASS_BASE_URL"); env != "" && !flag.CommandLine.Changed("base-url") {
		*baseURLFlag = env
	}
	if env := os.Getenv("LAKEGLASS_DATA_DIR"); env != "" && !flag.CommandLine.Changed("data-dir") {
		*dataDirFlag = env
	}

	log := logger.New(*verboseFlag)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("server: received signal", "signal", sig.String())
		cancel()
	}()

	metricsServerErrCh := make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
			}
		}()
	}

	st, err := store.New(ctx, store.Config{
		Logger:           log,
		Path:             *dbPathFlag,
		StatementTimeout: *statementTimeoutFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	if *dataDirFlag != "" {
		tables, err := st.LoadDir(ctx, *dataDirFlag)
		if err != nil {
			return fmt.Errorf("failed to load data directory: %w", err)
		}
		log.Info("data loaded", "dir", *dataDirFlag, "tables", len(tables))
	}

	gen, err := llm.New(llm.Options{
		Logger:   log,
		Provider: *providerFlag,
		Model:    *modelFlag,
		BaseURL:  *baseURLFlag,
		APIKey:   os.Getenv("LAKEGLASS_API_KEY"),
	})
	if err != nil {
		return fmt.Errorf("failed to create text generator: %w", err)
	}

	provider := profile.NewProvider(log, st, *profileTTLFlag)

	comp, err := compiler.New(compiler.Config{Logger: log, Generator: gen})
	if err != nil {
		return fmt.Errorf("failed to create compiler: %w", err)
	}
	exec, err := executor.New(executor.Config{Logger: log, Querier: st, Repairer: comp})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}
	engine, err := forecast.New(forecast.Config{Logger: log, Generator: gen})
	if err != nil {
		return fmt.Errorf("failed to create forecast engine: %w", err)
	}
	pipeline, err := orchestrator.New(orchestrator.Config{
		Logger:        log,
		Schema:        provider,
		Compiler:      comp,
		Runner:        exec,
		Forecaster:    engine,
		PanelPoolSize: *panelPoolSizeFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	listener, err := net.Listen("tcp", *listenAddrFlag)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener: %w", err)
	}
	defer listener.Close()

	srv, err := server.New(server.Config{
		Logger:          log,
		Listener:        listener,
		Pipeline:        pipeline,
		Tables:          st,
		ShutdownTimeout: *shutdownTimeoutFlag,
		Refresher: server.RefresherFunc(func(ctx context.Context) ([]string, error) {
			tables, err := st.LoadDir(ctx, *dataDirFlag)
			if err != nil {
				return nil, err
			}
			provider.Invalidate()
			return tables, nil
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
		return <-serverErrCh
	case err := <-serverErrCh:
		if err != nil {
			log.Error("server: server error causing shutdown", "error", err)
		}
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}

func readConfigFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Config file values fill flags left at their defaults; explicit flags win.
func applyString(v, name string, dst *string) {
	if v != "" && !flag.CommandLine.Changed(name) {
		*dst = v
	}
}

func applyDuration(v time.Duration, name string, dst *time.Duration) {
	if v != 0 && !flag.CommandLine.Changed(name) {
		*dst = v
	}
}

func applyInt(v int, name string, dst *int) {
	if v != 0 && !flag.CommandLine.Changed(name) {
		*dst = v
	}
}
