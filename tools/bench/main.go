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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/cache"
	"github.com/palettekb/palette/cfg"
	"github.com/palettekb/palette/kvstore"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "load":
		runLoad(args)
	case "run":
		runBenchmark(args)
	case "version":
		fmt.Printf("bench version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`bench - palette cache benchmark tool

Usage:
  bench <command> [options]

Commands:
  load      Preload keys into the cache
  run       Run benchmark workload
  version   Print version
  help      Show this help

Load Options:
  --config        Path to palette config file (default: config.toml)
  --backend       Cache backend: memory|redis|pebble (overrides config)
  --prefix        Cache key prefix (overrides config)
  --records       Number of records to load (default: 10000)
  --threads       Number of concurrent threads (default: 10)
  --value-size    Payload size in bytes (default: 256)

Run Options:
  --config        Path to palette config file (default: config.toml)
  --backend       Cache backend: memory|redis|pebble (overrides config)
  --prefix        Cache key prefix (overrides config)
  --records       Key space size (default: 10000)
  --threads       Number of concurrent threads (default: 20)
  --value-size    Payload size in bytes (default: 256)
  --workload      Workload type: mixed|read-heavy|write-heavy|churn (default: mixed)
  --operations    Total operations to execute (default: 50000)
  --duration      Duration to run (e.g., 60s), overrides --operations
  --read-pct      Read percentage (overrides workload default)
  --write-pct     Write percentage (overrides workload default)
  --delete-pct    Delete percentage (overrides workload default)
  --invalidate-pct Pattern-invalidation percentage (overrides workload default)

Examples:
  bench load --backend=memory --records=100000 --value-size=1024
  bench run --backend=redis --workload=read-heavy --duration=60s
  bench run --backend=pebble --workload=churn --operations=200000`)
}

func addCommonFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.ConfigPath, "config", "config.toml", "Path to palette config file")
	fs.StringVar(&c.Backend, "backend", "", "Cache backend (overrides config)")
	fs.StringVar(&c.Prefix, "prefix", "", "Cache key prefix (overrides config)")
	fs.IntVar(&c.Records, "records", 10000, "Number of records")
	fs.IntVar(&c.ValueSize, "value-size", 256, "Payload size in bytes")
}

func runLoad(args []string) {
	c := &Config{Workload: "mixed", Operations: 1}
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	addCommonFlags(fs, c)
	fs.IntVar(&c.Threads, "threads", 10, "Number of concurrent threads")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	setupLogging()

	if err := c.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := interruptContext()
	defer cancel()

	if err := executeLoad(ctx, c); err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
}

func runBenchmark(args []string) {
	c := &Config{}
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	addCommonFlags(fs, c)
	fs.IntVar(&c.Threads, "threads", 20, "Number of concurrent threads")
	fs.StringVar(&c.Workload, "workload", "mixed", "Workload type")
	fs.IntVar(&c.Operations, "operations", 50000, "Total operations to execute")
	fs.DurationVar(&c.Duration, "duration", 0, "Duration to run (overrides --operations)")
	fs.IntVar(&c.ReadPct, "read-pct", -1, "Read percentage (overrides workload)")
	fs.IntVar(&c.WritePct, "write-pct", -1, "Write percentage (overrides workload)")
	fs.IntVar(&c.DeletePct, "delete-pct", -1, "Delete percentage (overrides workload)")
	fs.IntVar(&c.InvalidatePct, "invalidate-pct", -1, "Invalidation percentage (overrides workload)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	setupLogging()

	if err := c.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := interruptContext()
	defer cancel()

	if err := executeRun(ctx, c); err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark failed: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging keeps library logging on stderr at warn so the report
// output stays readable.
func setupLogging() {
	writer := zerolog.NewConsoleWriter()
	writer.Out = os.Stderr
	log.Logger = zerolog.New(writer).With().Timestamp().Logger().Level(zerolog.WarnLevel)
}

func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// openStore builds the cache store from the palette config plus overrides.
func openStore(c *Config) (*cache.Store, *cfg.Config, error) {
	config, err := cfg.Load(c.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if c.Backend != "" {
		config.Cache.Backend = cfg.CacheBackend(c.Backend)
	}
	if c.Prefix != "" {
		config.Cache.Prefix = c.Prefix
	}
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	client, err := kvstore.New(config)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewStore(client, config.Cache), config, nil
}

func executeLoad(ctx context.Context, c *Config) error {
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║              Bench Load Phase                        ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	store, config, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Backend:     %s\n", config.Cache.Backend)
	fmt.Printf("Prefix:      %s\n", config.Cache.Prefix)
	fmt.Printf("Records:     %d\n", c.Records)
	fmt.Printf("Threads:     %d\n", c.Threads)
	fmt.Printf("Value size:  %d bytes\n\n", c.ValueSize)

	stats := NewStats()
	var wg sync.WaitGroup
	start := time.Now()

	chunk := (c.Records + c.Threads - 1) / c.Threads
	for i := 0; i < c.Threads; i++ {
		startKey := i * chunk
		endKey := startKey + chunk
		if endKey > c.Records {
			endKey = c.Records
		}
		if startKey >= endKey {
			break
		}

		wg.Add(1)
		worker := NewWorker(i, store, c.Records, c.ValueSize, nil, stats)
		go worker.RunLoad(ctx, startKey, endKey, &wg)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("Loaded %d records in %.2fs (%.1f records/sec)\n",
		stats.TotalOps(), elapsed.Seconds(), float64(stats.TotalOps())/elapsed.Seconds())
	if stats.TotalErrors() > 0 {
		fmt.Printf("Errors: %d\n", stats.TotalErrors())
	}
	return nil
}

func executeRun(ctx context.Context, c *Config) error {
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            Bench Benchmark Phase                     ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	dist := c.GetWorkloadDistribution()
	if err := dist.Validate(); err != nil {
		return err
	}

	store, config, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Backend:     %s\n", config.Cache.Backend)
	fmt.Printf("Prefix:      %s\n", config.Cache.Prefix)
	fmt.Printf("Workload:    %s\n", c.Workload)
	fmt.Printf("Distribution: R:%d%% W:%d%% D:%d%% I:%d%%\n",
		dist.Read, dist.Write, dist.Delete, dist.Invalidate)
	fmt.Printf("Operations:  %d\n", c.Operations)
	if c.Duration > 0 {
		fmt.Printf("Duration:    %s\n", c.Duration)
	}
	fmt.Printf("Threads:     %d\n", c.Threads)
	fmt.Printf("Key space:   %d\n", c.Records)
	fmt.Printf("Value size:  %d bytes\n\n", c.ValueSize)

	stats := NewStats()
	opsChan := make(chan struct{}, c.Threads*10)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < c.Threads; i++ {
		wg.Add(1)
		opSelector := NewOpSelector(dist, time.Now().UnixNano()+int64(i))
		worker := NewWorker(i, store, c.Records, c.ValueSize, opSelector, stats)
		go worker.RunBenchmark(ctx, opsChan, &wg)
	}

	reporterCtx, stopReporter := context.WithCancel(ctx)
	go reportProgress(reporterCtx, stats)

	// Feed operations
	if c.Duration > 0 {
		deadline := time.After(c.Duration)
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-deadline:
				break loop
			case opsChan <- struct{}{}:
			}
		}
	} else {
	opsLoop:
		for i := 0; i < c.Operations; i++ {
			select {
			case <-ctx.Done():
				break opsLoop
			case opsChan <- struct{}{}:
			}
		}
	}

	close(opsChan)
	wg.Wait()
	stopReporter()
	elapsed := time.Since(start)

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("                  BENCHMARK COMPLETE                   ")
	fmt.Println("═══════════════════════════════════════════════════════")
	stats.PrintFinal(elapsed)

	finalStats := store.Stats(context.Background())
	fmt.Println()
	fmt.Printf("Store:         %d keys, %d bytes\n", finalStats.TotalKeys, finalStats.MemoryUsage)

	return nil
}
