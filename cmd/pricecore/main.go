package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	redis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coinoracle/pricecore/internal/aggregator"
	"github.com/coinoracle/pricecore/internal/cache"
	"github.com/coinoracle/pricecore/internal/config"
	"github.com/coinoracle/pricecore/internal/metrics"
	"github.com/coinoracle/pricecore/internal/net/budget"
	"github.com/coinoracle/pricecore/internal/net/ratelimit"
	"github.com/coinoracle/pricecore/internal/ops"
	"github.com/coinoracle/pricecore/internal/registry"
	"github.com/coinoracle/pricecore/internal/sources/chain"
	"github.com/coinoracle/pricecore/internal/sources/rest"
	"github.com/coinoracle/pricecore/internal/store"
	"github.com/coinoracle/pricecore/internal/stream"
)

const (
	appName = "pricecore"
	version = "v0.3.0"
)

var (
	configPath string
	debug      bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	// Local overrides for DSNs and RPC endpoints; absence is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Price aggregation engine with a tiered fallback chain",
		Version: version,
		Long: `pricecore resolves asset prices through a trust-ordered fallback chain:
on-chain oracle reads, provider REST lookups, live trade streams, and
finally the stale cache. Run 'serve' for the long-lived engine or
'price' for a one-shot lookup.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregation engine and ops listener",
		RunE:  runServe,
	}

	priceCmd := &cobra.Command{
		Use:   "price SYMBOL",
		Short: "Resolve one price through the fallback chain and print it",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrice,
	}

	rootCmd.AddCommand(serveCmd, priceCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// engine bundles everything built from one config so serve and price
// share the wiring and teardown.
type engine struct {
	agg      *aggregator.Aggregator
	ingestor *stream.Ingestor
	metrics  *metrics.Registry
	redis    *store.LastPriceStore
	closers  []func()
}

func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func buildEngine(cfg *config.Config) (*engine, error) {
	e := &engine{metrics: metrics.NewRegistry()}

	reg := registry.New()
	for _, asset := range cfg.Assets {
		if err := reg.Register(asset); err != nil {
			return nil, fmt.Errorf("register %s: %w", asset.Symbol, err)
		}
	}

	opts := aggregator.Options{
		Registry:   reg,
		Validator:  registry.NewValidator(reg),
		Cache:      cache.New(cfg.CacheWindow()),
		Metrics:    e.metrics,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.Oracle.RPCURL != "" {
		client, err := ethclient.Dial(cfg.Oracle.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc: %w", err)
		}
		e.closers = append(e.closers, client.Close)

		limiter := ratelimit.New(cfg.Oracle.RateCalls, cfg.RateWindow(), cfg.Oracle.RateBurst)
		tracker := budget.NewTracker(int64(cfg.Oracle.BudgetCalls), cfg.RateWindow())
		opts.OnChain = chain.New(client, limiter, tracker, cfg.OracleTimeout())
		opts.Budget = tracker
		log.Info().Str("rpc", cfg.Oracle.RPCURL).Int("rate_calls", cfg.Oracle.RateCalls).Msg("on-chain tier enabled")
	}

	if cfg.REST.BaseURL != "" {
		opts.REST = rest.New(cfg.REST.BaseURL, cfg.RESTTimeout())
		log.Info().Str("base_url", cfg.REST.BaseURL).Msg("rest tier enabled")
	}

	if len(cfg.Venues) > 0 {
		e.ingestor = stream.New(cfg.Venues, stream.NewRollingTradeTable(), e.metrics)
		opts.Stream = e.ingestor
		log.Info().Int("venues", len(cfg.Venues)).Msg("stream tier enabled")
	}

	if cfg.Store.PostgresDSN != "" {
		repo, err := store.OpenSnapshotRepo(cfg.Store.PostgresDSN, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		e.closers = append(e.closers, func() { _ = repo.Close() })
		opts.Sinks = append(opts.Sinks, repo)
		log.Info().Msg("postgres snapshot history enabled")
	}

	if cfg.Store.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		e.closers = append(e.closers, func() { _ = client.Close() })
		e.redis = store.NewLastPriceStore(client, cfg.RedisTTL())
		opts.Sinks = append(opts.Sinks, e.redis)
		log.Info().Str("addr", cfg.Store.RedisAddr).Msg("redis last-price store enabled")
	}

	e.agg = aggregator.New(opts)
	return e, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	setLogLevel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if eng.redis != nil {
		seedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		eng.agg.Seed(seedCtx, eng.redis)
		cancel()
	}

	if eng.ingestor != nil {
		eng.ingestor.Start(ctx)
	}

	var reporter ops.HealthReporter
	if eng.ingestor != nil {
		reporter = eng.ingestor
	}
	opsSrv := ops.NewServer(cfg.Ops.Addr, eng.metrics, reporter)

	errCh := make(chan error, 1)
	go func() { errCh <- opsSrv.Start() }()

	log.Info().Str("version", version).Int("assets", len(cfg.Assets)).Msg("engine running")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops listener: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("ops listener shutdown")
	}
	if eng.ingestor != nil {
		eng.ingestor.Shutdown()
	}
	log.Info().Msg("engine stopped")
	return nil
}

func runPrice(cmd *cobra.Command, args []string) error {
	setLogLevel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if eng.redis != nil {
		eng.agg.Seed(ctx, eng.redis)
	}

	sample, err := eng.agg.GetPrice(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}

	out, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func setLogLevel() {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
