// Command-line entry point for the SmileBus catalog ingester.
//
// Subcommands:
//
//	ingest    - sweep the per-city catalog endpoint, populate the store,
//	            write the route summary, then run store maintenance
//	export    - rewrite the route summary from an already-populated store
//	analyze   - print aggregate statistics about the populated store
//	maintain  - run statistics refresh and compaction standalone
//
// The store engine defaults to an embedded SQLite file; -engine postgres
// selects a PostgreSQL catalog instead. Optional sinks record every
// fetch outcome: -clickhouse appends to a fetch_log table, -nats-url
// publishes outcome events.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"smilebus_ingest/internal/events"
	"smilebus_ingest/internal/export"
	"smilebus_ingest/internal/fetch"
	"smilebus_ingest/internal/ingest"
	"smilebus_ingest/internal/storage"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "smilebus_ingest - commands:")
	fmt.Fprintln(w, "  ingest    - fetch city catalogs and populate the store")
	fmt.Fprintln(w, "  export    - write the route summary JSON from the store")
	fmt.Fprintln(w, "  analyze   - print statistics about the populated store")
	fmt.Fprintln(w, "  maintain  - refresh statistics and compact the store")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  smilebus_ingest ingest [-db smilebus.db] [-first 1] [-last 1000] [-workers 10]")
	fmt.Fprintln(w, "  smilebus_ingest export [-db smilebus.db] [-output route_summary.json]")
	fmt.Fprintln(w, "  smilebus_ingest analyze [-db smilebus.db]")
	fmt.Fprintln(w, "  smilebus_ingest maintain [-db smilebus.db]")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "ingest":
		runIngest(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "analyze":
		runAnalyze(os.Args[2:])
	case "maintain":
		runMaintain(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

// storeFlags registers the shared store selection flags on fs and
// returns a function that resolves them into a storage config.
func storeFlags(fs *flag.FlagSet) func() storage.Config {
	def := storage.DefaultConfig()
	engine := fs.String("engine", envOrDefault("SMILEBUS_ENGINE", string(def.Engine)), "Storage engine: sqlite or postgres")
	dbPath := fs.String("db", envOrDefault("SMILEBUS_DB", def.Path), "SQLite database path")
	pgHost := fs.String("pg-host", envOrDefault("POSTGRES_HOST", def.Postgres.Host), "PostgreSQL host")
	pgPort := fs.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", def.Postgres.Port), "PostgreSQL port")
	pgDB := fs.String("pg-database", envOrDefault("POSTGRES_DATABASE", def.Postgres.Database), "PostgreSQL database")
	pgUser := fs.String("pg-user", envOrDefault("POSTGRES_USER", def.Postgres.User), "PostgreSQL user")
	pgPassword := fs.String("pg-password", envOrDefault("POSTGRES_PASSWORD", def.Postgres.Password), "PostgreSQL password")

	return func() storage.Config {
		return storage.Config{
			Engine: storage.Engine(*engine),
			Path:   *dbPath,
			Postgres: storage.PostgresConfig{
				Host:     *pgHost,
				Port:     *pgPort,
				Database: *pgDB,
				User:     *pgUser,
				Password: *pgPassword,
			},
		}
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	storeCfg := storeFlags(fs)

	baseURL := fs.String("base-url", envOrDefault("SMILEBUS_BASE_URL", fetch.DefaultBaseURL), "Cities-arrival endpoint URL")
	first := fs.Int64("first", 1, "First city id (inclusive)")
	last := fs.Int64("last", 1000, "Last city id (inclusive)")
	workers := fs.Int("workers", 10, "Concurrent fetch limit")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-request timeout")
	logPath := fs.String("log", "smilebus_ingest.log", "Skip/progress log file (empty for stderr)")
	output := fs.String("output", "route_summary.json", "Route summary output file (empty to skip export)")
	skipMaintain := fs.Bool("no-maintain", false, "Skip post-load store maintenance")

	chEnabled := fs.Bool("clickhouse", false, "Record fetch outcomes to ClickHouse")
	chHost := fs.String("ch-host", envOrDefault("CLICKHOUSE_HOST", "localhost"), "ClickHouse host")
	chPort := fs.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse port")
	chDB := fs.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "smilebus"), "ClickHouse database")
	chUser := fs.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := fs.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")

	natsURL := fs.String("nats-url", envOrDefault("NATS_URL", ""), "Publish outcome events to this NATS server (empty to disable)")
	natsSubject := fs.String("nats-subject", events.DefaultSubject, "NATS subject for outcome events")

	_ = fs.Parse(args)

	ctx := context.Background()
	start := time.Now()

	// The run log has an explicit lifecycle: opened before the batch,
	// closed after, instead of process-global logging state.
	logger, closeLog, err := openRunLog(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	// Fatal errors: a store that cannot be opened or initialized aborts
	// the run before anything is dispatched.
	store, err := storage.Open(ctx, storeCfg())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	if err := store.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}

	client := fetch.NewClient(*baseURL, *timeout)
	coord := ingest.New(client, store, logger, ingest.Config{
		FirstCityID: *first,
		LastCityID:  *last,
		Workers:     *workers,
	})

	if *chEnabled {
		fl, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host:     *chHost,
			Port:     *chPort,
			Database: *chDB,
			User:     *chUser,
			Password: *chPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = fl.Close() }()
		if err := fl.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing fetch_log: %v\n", err)
			os.Exit(1)
		}
		coord.AddSink(fl)
	}

	if *natsURL != "" {
		pub, err := events.Connect(*natsURL, *natsSubject)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to NATS: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = pub.Close() }()
		coord.AddSink(pub)
	}

	summary, err := coord.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}

	logger.Printf("INFO batch complete: dispatched=%d written=%d empty=%d errors=%d write_errors=%d in %s",
		summary.Dispatched, summary.Written, summary.EmptySkips, summary.ErrorSkips,
		summary.WriteErrors, summary.Elapsed.Round(time.Millisecond))

	if *output != "" {
		n, err := export.WriteSummary(ctx, store, *output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting summary: %v\n", err)
			os.Exit(1)
		}
		logger.Printf("INFO route summary exported to %s (%d routes)", *output, n)
	}

	if !*skipMaintain {
		// Advisory: committed data stays valid even if this fails.
		if err := store.Maintain(ctx); err != nil {
			logger.Printf("WARN store maintenance: %v", err)
		} else {
			logger.Printf("INFO store maintenance completed")
		}
	}

	logger.Printf("INFO total execution time: %s", time.Since(start).Round(time.Millisecond))

	fmt.Printf("ingest: dispatched=%d written=%d empty=%d errors=%d write_errors=%d in %s\n",
		summary.Dispatched, summary.Written, summary.EmptySkips, summary.ErrorSkips,
		summary.WriteErrors, summary.Elapsed.Round(time.Millisecond))
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	storeCfg := storeFlags(fs)
	output := fs.String("output", "route_summary.json", "Route summary output file")
	_ = fs.Parse(args)

	ctx := context.Background()
	store, err := storage.Open(ctx, storeCfg())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	n, err := export.WriteSummary(ctx, store, *output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Route summary exported to %s (%d routes)\n", *output, n)
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	storeCfg := storeFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()
	store, err := storage.Open(ctx, storeCfg())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Catalog Analysis:")
	fmt.Println("-----------------")
	fmt.Printf("Total cities: %d\n", stats.Cities)
	fmt.Printf("Total stops: %d\n", stats.Stops)
	fmt.Printf("Total routes: %d\n", stats.Routes)

	fmt.Println("\nTop 5 cities with most stops:")
	for _, cc := range stats.TopStopCities {
		fmt.Printf("  %s: %d stops\n", cc.Name, cc.Count)
	}

	fmt.Println("\nTop 5 most connected cities:")
	for _, cc := range stats.TopConnected {
		fmt.Printf("  %s: %d routes\n", cc.Name, cc.Count)
	}
}

func runMaintain(args []string) {
	fs := flag.NewFlagSet("maintain", flag.ExitOnError)
	storeCfg := storeFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()
	store, err := storage.Open(ctx, storeCfg())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	if err := store.Maintain(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Maintenance failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Store maintenance completed")
}

// openRunLog opens the skip/progress log for one run. An empty path
// logs to stderr.
func openRunLog(path string) (*log.Logger, func(), error) {
	if path == "" {
		return log.New(os.Stderr, "", log.LstdFlags), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := log.New(f, "", log.LstdFlags)
	return logger, func() { _ = f.Close() }, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
