// Command prismcache runs the RESP cache proxy. Startup and shutdown
// choreography follows hyperengineering-engram's cmd/engram/root.go:
// signal.NotifyContext up front, sequential component construction,
// the accept loop started in a goroutine, <-ctx.Done(), then a bounded
// shutdown pass. http.Server.Shutdown has no RESP equivalent, so the
// shutdown step here calls server.Server.Shutdown instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prismcache/prismcache/internal/adapter"
	"github.com/prismcache/prismcache/internal/adapter/deltatable"
	mockadapter "github.com/prismcache/prismcache/internal/adapter/mock"
	"github.com/prismcache/prismcache/internal/adapter/relational"
	"github.com/prismcache/prismcache/internal/cache"
	"github.com/prismcache/prismcache/internal/config"
	"github.com/prismcache/prismcache/internal/dispatcher"
	"github.com/prismcache/prismcache/internal/facade"
	"github.com/prismcache/prismcache/internal/logging"
	"github.com/prismcache/prismcache/internal/metrics"
	"github.com/prismcache/prismcache/internal/registry"
	"github.com/prismcache/prismcache/internal/server"
)

// Version information set at build time via ldflags:
//
//	-X main.Version=1.0.0
//	-X main.Commit=abc1234
//	-X main.Date=2026-01-30T12:00:00Z
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Exit codes, per the documented external interface: 0 normal, 1
// config error, 2 bind failure, 3 provider init failure.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitBindFailure    = 2
	exitProviderInit   = 3
	defaultExitFailure = 1
)

// exitError pairs an error with the process exit code it should
// produce, so main can report the right code without re-inspecting
// which phase of startup failed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var configPath string

var rootCmd = &cobra.Command{
	Use:   "prismcache",
	Short: "Prism Cache - a RESP-compatible cache proxy over heterogeneous backends",
	RunE:  run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("prismcache %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{code: exitConfigError, err: fmt.Errorf("loading configuration: %w", err)}
	}

	logging.Configure(cfg.Logging.Level)
	log.Info().Str("level", cfg.Logging.Level).Msg("logger configured")

	reg, err := buildRegistry(ctx, cfg)
	if err != nil {
		return &exitError{code: exitProviderInit, err: fmt.Errorf("building provider registry: %w", err)}
	}
	defer func() {
		if err := reg.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing provider registry")
		}
	}()
	for _, d := range reg.Providers() {
		log.Info().Str("provider", d.Name).Str("kind", d.Kind).Msg("provider registered")
	}

	metricsReg := prometheus.NewRegistry()
	c := cache.New(cache.Options{
		Shards:           cache.DefaultShards,
		CapacityPerShard: perShardCapacity(cfg.Cache.MaxEntries, cache.DefaultShards),
		DefaultTTL:       time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	}, metricsReg)

	f := facade.New(c, reg, time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.FetchTimeout())
	d := dispatcher.New(f)

	ln, err := net.Listen("tcp", cfg.Server.BindAddress)
	if err != nil {
		return &exitError{code: exitBindFailure, err: fmt.Errorf("binding %s: %w", cfg.Server.BindAddress, err)}
	}
	srv := server.New(ln, d)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("address", cfg.Server.BindAddress).Msg("server starting")
		if err := srv.Serve(); err != nil && !isClosedListenerErr(err) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	var metricsSrv *metrics.Server
	if cfg.Server.MetricsAddress != "" {
		metricsSrv = metrics.NewServer(cfg.Server.MetricsAddress, metricsReg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("address", cfg.Server.MetricsAddress).Msg("metrics server starting")
			if err := metricsSrv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("metrics server error")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown error")
		}
	}

	wg.Wait()
	log.Info().Msg("shutdown complete")
	return nil
}

// perShardCapacity distributes a documented total cache.max_entries
// across the cache's internal shard count: sharding is an
// implementation detail of the bounded-LRU cache (spec §4.2), not part
// of the documented external interface, so it is fixed internally
// rather than exposed as another config key.
func perShardCapacity(maxEntries, shards int) int {
	if shards <= 0 {
		shards = 1
	}
	per := maxEntries / shards
	if per <= 0 {
		per = 1
	}
	return per
}

// buildRegistry constructs one adapter per configured provider and
// freezes them into a Registry. A provider that fails to construct
// aborts startup entirely: a silently-missing backend is worse than a
// process that refuses to start.
func buildRegistry(ctx context.Context, cfg *config.Config) (*registry.Registry, error) {
	b := registry.NewBuilder()

	for _, p := range cfg.Database.Providers {
		var a adapter.Adapter
		var err error

		switch p.Provider {
		case "Mock":
			sampleSize, convErr := strconv.Atoi(p.Settings["sample_size"])
			if convErr != nil {
				err = fmt.Errorf("provider %q: invalid sample_size %q: %w", p.Name, p.Settings["sample_size"], convErr)
				break
			}
			a = mockadapter.New(sampleSize)
		case "Postgres":
			a, err = relational.New(ctx, relational.Config{
				DSN:    postgresDSN(p.Settings),
				Entity: p.Name,
				Fields: splitFields(p.Settings["fields"]),
			})
		case "AzDelta":
			a, err = deltatable.New(deltatable.Config{
				TableName:     p.Settings["delta_table_name"],
				TablePath:     p.Settings["delta_table_path"],
				QueryTemplate: p.Settings["delta_record_query"],
			})
		default:
			err = fmt.Errorf("unknown provider kind %q for provider %q", p.Provider, p.Name)
		}
		if err != nil {
			return nil, err
		}
		b.Add(p.Name, p.Provider, a)
	}

	return b.Build(), nil
}

// postgresDSN builds a libpq-style connection string from a Postgres
// provider's settings table (spec §6: user, password, host, port,
// dbname).
func postgresDSN(settings map[string]string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		settings["user"], settings["password"], settings["host"], settings["port"], settings["dbname"])
}

// splitFields parses a Postgres provider's comma-separated fields
// setting (settings values are plain strings, not TOML arrays, per
// spec §6's table<string,string> shape).
func splitFields(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isClosedListenerErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			log.Error().Err(ee.err).Msg("prismcache: exiting")
			os.Exit(ee.code)
		}
		log.Error().Err(err).Msg("prismcache: exiting")
		os.Exit(defaultExitFailure)
	}
	os.Exit(exitOK)
}
