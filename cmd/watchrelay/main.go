package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/watchrelay/watchrelay/adapters/gocommand"
	"github.com/watchrelay/watchrelay/adapters/gologger"
	"github.com/watchrelay/watchrelay/command"
	"github.com/watchrelay/watchrelay/core"
	"github.com/watchrelay/watchrelay/discord"
	"github.com/watchrelay/watchrelay/metrics"
	relaymigrations "github.com/watchrelay/watchrelay/migrations"
	"github.com/watchrelay/watchrelay/query"
	"github.com/watchrelay/watchrelay/relay"
	sqlstore "github.com/watchrelay/watchrelay/store/sql"
	"github.com/watchrelay/watchrelay/tmdb"
	"github.com/watchrelay/watchrelay/trakt"
)

var version = "dev"

type cliFlags struct {
	once        bool
	logLevel    string
	metricsAddr string
}

func main() {
	flags := cliFlags{}
	flag.BoolVar(&flags.once, "once", false, "run a single relay cycle and exit")
	flag.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.StringVar(&flags.metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on, empty disables")
	flag.Parse()

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags cliFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, logger := gologger.Resolve("watchrelay", nil, newSlogLogger(parseLogLevel(flags.logLevel)))
	logger.Info("watchrelay starting", "version", version)

	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}

	sqlDB, dialect, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	client, err := persistence.New(sqlstore.NewPersistenceConfig(cfg), sqlDB, dialect)
	if err != nil {
		return fmt.Errorf("persistence client: %w", err)
	}

	if err := registerMigrations(client, cfg.Storage.Driver); err != nil {
		return err
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	factory := sqlstore.NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return err
	}

	source, err := trakt.New(trakt.Config{
		ClientID:     cfg.Source.ClientID,
		ClientSecret: cfg.Source.ClientSecret,
	}, trakt.WithLogger(gologger.Named(provider, logger, "trakt")))
	if err != nil {
		return err
	}

	lifecycle, err := core.NewLifecycle(
		factory.TokenStore(),
		source,
		core.Credential{
			AccessToken:  cfg.Source.AccessToken,
			RefreshToken: cfg.Source.RefreshToken,
		},
		core.WithLifecycleLogger(gologger.Named(provider, logger, "credentials")),
		core.WithRefreshLead(cfg.RefreshLead()),
	)
	if err != nil {
		return err
	}

	sink, err := discord.NewSink(cfg.Sink.WebhookURL, discord.WithSinkLogger(gologger.Named(provider, logger, "discord")))
	if err != nil {
		return err
	}

	recorder := metrics.NewPrometheusRecorder()

	relayOptions := []relay.Option{
		relay.WithLogger(gologger.Named(provider, logger, "relay")),
		relay.WithMetrics(recorder),
		relay.WithPollInterval(cfg.PollInterval()),
		relay.WithLookback(cfg.Lookback()),
		relay.WithHistoryLimit(cfg.HistoryLimit),
		relay.WithItemDelay(cfg.ItemDelay()),
		relay.WithRetention(cfg.RetentionHorizon()),
	}
	if cfg.EnrichmentEnabled() {
		enricher, err := tmdb.New(tmdb.Config{APIKey: cfg.Enrichment.APIKey}, tmdb.WithLogger(gologger.Named(provider, logger, "tmdb")))
		if err != nil {
			return err
		}
		relayOptions = append(relayOptions, relay.WithEnricher(enricher))
	} else {
		logger.Info("metadata enrichment disabled, no api key configured")
	}

	service, err := relay.New(source, lifecycle, factory.DeliveryLedger(), discord.NewComposer(), sink, relayOptions...)
	if err != nil {
		return err
	}

	if purged, err := service.PurgeLedger(ctx, 0); err != nil {
		logger.Warn("startup ledger purge failed", "error", err.Error())
	} else if purged > 0 {
		logger.Info("startup ledger purge", "purged", purged)
	}

	if flags.once {
		return runOnce(ctx, logger, service, lifecycle, factory.TokenStore())
	}

	if flags.metricsAddr != "" {
		go serveMetrics(ctx, logger, flags.metricsAddr, recorder.Handler())
	}

	logger.Info("relay loop starting",
		"poll_interval", cfg.PollInterval().String(),
		"history_limit", cfg.HistoryLimit,
	)
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("watchrelay stopped")
	return nil
}

func resolveConfig(ctx context.Context) (core.Config, error) {
	defaults := core.DefaultConfig()
	provider := core.NewCfgxConfigProvider(core.NewEnvConfigLoader())
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return core.Config{}, fmt.Errorf("load config: %w", err)
	}
	resolver := core.GoOptionsResolver{}
	resolved, err := resolver.Resolve(defaults, loaded, core.Config{})
	if err != nil {
		return core.Config{}, fmt.Errorf("resolve config: %w", err)
	}
	return resolved, nil
}

func openDatabase(cfg core.Config) (*sql.DB, schema.Dialect, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Storage.Driver))
	sqlDB, err := sql.Open(driver, cfg.Storage.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	switch driver {
	case core.StorageDriverSQLite:
		sqlDB.SetMaxOpenConns(1)
		return sqlDB, sqlitedialect.New(), nil
	case core.StorageDriverPostgres:
		return sqlDB, pgdialect.New(), nil
	default:
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("storage driver %q is not supported", cfg.Storage.Driver)
	}
}

func registerMigrations(client *persistence.Client, driver string) error {
	dialect := relaymigrations.DialectSQLite
	if strings.TrimSpace(strings.ToLower(driver)) == core.StorageDriverPostgres {
		dialect = relaymigrations.DialectPostgres
	}
	err := relaymigrations.Register(dialect, func(fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register migrations: %w", err)
	}
	return nil
}

// runOnce drives a single cycle through the command dispatcher so manual
// runs exercise the same path as automated triggers.
func runOnce(ctx context.Context, logger glog.Logger, service *relay.Relay, lifecycle *core.Lifecycle, tokens core.TokenStore) error {
	adapter := gocommand.NewRegistryAdapter(nil)

	cycleSub, err := gocommand.RegisterAndSubscribe[command.RunCycleMessage](adapter, command.NewRunCycleCommand(service))
	if err != nil {
		return err
	}
	defer cycleSub.Unsubscribe()

	refreshSub, err := gocommand.RegisterAndSubscribe[command.RefreshCredentialMessage](adapter, command.NewRefreshCredentialCommand(lifecycle))
	if err != nil {
		return err
	}
	defer refreshSub.Unsubscribe()

	purgeSub, err := gocommand.RegisterAndSubscribe[command.PurgeLedgerMessage](adapter, command.NewPurgeLedgerCommand(service))
	if err != nil {
		return err
	}
	defer purgeSub.Unsubscribe()

	if err := adapter.Initialize(); err != nil {
		return err
	}

	collector := gocmd.NewResult[relay.CycleResult]()
	dispatchCtx := gocmd.ContextWithResult(ctx, collector)
	if err := gocommand.Dispatch(dispatchCtx, command.RunCycleMessage{}); err != nil {
		return err
	}
	result, ok := collector.Load()
	if !ok {
		return fmt.Errorf("cycle produced no result")
	}
	logger.Info("cycle complete",
		"fetched", result.Fetched,
		"skipped", result.Skipped,
		"delivered", result.Delivered,
		"failed", result.Failed,
	)

	stateSub := gocommand.SubscribeQuery[query.CredentialStateMessage, core.TokenState](query.NewCredentialStateQuery(tokens))
	defer stateSub.Unsubscribe()
	state, err := gocommand.Query[query.CredentialStateMessage, core.TokenState](ctx, query.CredentialStateMessage{})
	if err != nil {
		logger.Warn("credential state lookup failed", "error", err.Error())
		return nil
	}
	logger.Info("credential state",
		"expires_at", state.ExpiresAt.Format(time.RFC3339),
		"time_to_expiry", state.TimeToExpiry.String(),
		"expired", state.IsExpired,
	)
	return nil
}

func serveMetrics(ctx context.Context, logger glog.Logger, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err.Error())
	}
}
