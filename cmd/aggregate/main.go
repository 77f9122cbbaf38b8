package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-feed-aggregator/internal/archive"
	"solana-feed-aggregator/internal/domain"
	"solana-feed-aggregator/internal/feed"
	"solana-feed-aggregator/internal/observability"
	"solana-feed-aggregator/internal/storage"
	chstore "solana-feed-aggregator/internal/storage/clickhouse"
	"solana-feed-aggregator/internal/storage/memory"
	"solana-feed-aggregator/internal/storage/migrations"
	pgstore "solana-feed-aggregator/internal/storage/postgres"
)

// DEX program aliases mapped to program IDs.
var dexAliases = map[string]string{
	"raydium": feed.RaydiumAMMV4,
	"orca":    feed.OrcaWhirlpool,
	"pumpfun": feed.PumpFun,
}

func main() {
	endpoints := flag.String("ws-endpoints", "", "Comma-separated provider endpoints as label=wss://url pairs")
	registryDSN := flag.String("registry-dsn", "", "PostgreSQL DSN to load enabled provider endpoints from")
	programs := flag.String("programs", "", "Comma-separated program IDs for logsSubscribe")
	dex := flag.String("dex", "", "Comma-separated DEX aliases (raydium, orca, pumpfun)")
	accounts := flag.String("accounts", "", "Comma-separated account addresses for accountSubscribe")
	commitment := flag.String("commitment", "processed", "Subscription commitment level")
	channelCapacity := flag.Int("channel-capacity", 1000, "Output channel capacity")
	dedupCapacity := flag.Int("dedup-capacity", 10000, "Signature dedup set capacity")
	maxSlotLag := flag.Uint64("max-slot-lag", 2, "Slots behind the highest seen before an event is stale")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN for the event archive")
	useMemory := flag.Bool("use-memory", false, "Use in-memory event archive instead of ClickHouse")
	statsInterval := flag.Duration("stats-interval", 30*time.Second, "Interval for periodic stats logging")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[aggregate] ", log.LstdFlags|log.Lshortfile)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	topics := feed.Topics{
		Programs: resolvePrograms(*programs, *dex),
		Accounts: splitList(*accounts),
	}
	if len(topics.Programs) == 0 && len(topics.Accounts) == 0 {
		logger.Fatal("No topics specified. Use --programs, --dex or --accounts")
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, runOptions{
		endpointsFlag:   *endpoints,
		registryDSN:     *registryDSN,
		topics:          topics,
		commitment:      *commitment,
		channelCapacity: *channelCapacity,
		dedupCapacity:   *dedupCapacity,
		maxSlotLag:      *maxSlotLag,
		clickhouseDSN:   *clickhouseDSN,
		useMemory:       *useMemory,
		statsInterval:   *statsInterval,
	})

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type runOptions struct {
	endpointsFlag   string
	registryDSN     string
	topics          feed.Topics
	commitment      string
	channelCapacity int
	dedupCapacity   int
	maxSlotLag      uint64
	clickhouseDSN   string
	useMemory       bool
	statsInterval   time.Duration
}

// run starts the aggregator and blocks until the context is cancelled.
func run(ctx context.Context, logger *log.Logger, opts runOptions) error {
	endpoints, err := resolveEndpoints(ctx, opts.endpointsFlag, opts.registryDSN)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no provider endpoints configured (use --ws-endpoints or --registry-dsn)")
	}
	logger.Printf("Racing %d providers", len(endpoints))

	if !opts.useMemory && opts.clickhouseDSN == "" {
		return fmt.Errorf("--clickhouse-dsn is required (use --use-memory for an in-memory archive)")
	}

	var sink storage.EventArchive = memory.NewEventArchive()
	if !opts.useMemory {
		conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("prepare clickhouse archive: %w", err)
		}
		defer conn.Close()
		sink = chstore.NewEventArchiveStore(conn)
	}

	cfg := feed.DefaultConfig()
	cfg.ChannelCapacity = opts.channelCapacity
	cfg.DedupCapacity = opts.dedupCapacity
	cfg.MaxSlotLag = opts.maxSlotLag

	agg := feed.New(cfg)
	if err := agg.Start(ctx, endpoints, opts.topics, opts.commitment); err != nil {
		return fmt.Errorf("start aggregator: %w", err)
	}
	defer agg.Stop()

	writer := archive.NewWriter(archive.WriterOptions{
		Poller:  agg,
		Archive: sink,
		Logger:  logger,
	})

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- writer.Run(ctx)
	}()

	statsTicker := time.NewTicker(opts.statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-writerDone
			return ctx.Err()

		case err := <-writerDone:
			return err

		case <-statsTicker.C:
			s := agg.Stats()
			cs := agg.ConsensusStats()
			observability.UpdateActiveConnections(int(s.ActiveConnections))
			observability.UpdatePendingEvents(agg.PendingCount())
			logger.Printf("connections=%d received=%d accepted=%d dropped=%d (dup=%d stale=%d) slot=%d avg_latency=%.2fms",
				s.ActiveConnections, s.MessagesReceived, s.MessagesAccepted, s.MessagesDropped,
				cs.Duplicate, cs.Stale, cs.LatestSlot, s.AvgLatencyMs)
		}
	}
}

// resolveEndpoints loads provider endpoints from the flag or the registry.
// Flag entries take precedence when both are given.
func resolveEndpoints(ctx context.Context, endpointsFlag, registryDSN string) ([]domain.ProviderEndpoint, error) {
	if endpointsFlag != "" {
		return parseEndpoints(endpointsFlag)
	}
	if registryDSN == "" {
		return nil, nil
	}

	pool, err := pgstore.NewPool(ctx, registryDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to registry: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}

	registry := pgstore.NewProviderRegistryStore(pool)
	stored, err := registry.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled endpoints: %w", err)
	}

	endpoints := make([]domain.ProviderEndpoint, 0, len(stored))
	for _, ep := range stored {
		endpoints = append(endpoints, *ep)
	}
	return endpoints, nil
}

// parseEndpoints parses "label=wss://url,label2=wss://url2". A bare URL
// without a label gets a positional one from the aggregator.
func parseEndpoints(s string) ([]domain.ProviderEndpoint, error) {
	var endpoints []domain.ProviderEndpoint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, url, found := strings.Cut(part, "=")
		if !found {
			endpoints = append(endpoints, domain.ProviderEndpoint{URL: part, Enabled: true})
			continue
		}
		if label == "" || url == "" {
			return nil, fmt.Errorf("malformed endpoint entry %q", part)
		}
		endpoints = append(endpoints, domain.ProviderEndpoint{Label: label, URL: url, Enabled: true})
	}
	return endpoints, nil
}

// resolvePrograms resolves program IDs from flags.
func resolvePrograms(programs, dex string) []string {
	result := make(map[string]bool)

	for _, p := range splitList(programs) {
		result[p] = true
	}

	if dex != "" {
		for _, alias := range strings.Split(dex, ",") {
			alias = strings.TrimSpace(strings.ToLower(alias))
			if programID, ok := dexAliases[alias]; ok {
				result[programID] = true
			}
		}
	}

	list := make([]string, 0, len(result))
	for p := range result {
		list = append(list, p)
	}
	return list
}

// splitList splits a comma-separated flag into trimmed non-empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
