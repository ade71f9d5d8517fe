package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/bus"
	"github.com/palettekb/palette/cfg"
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
	case "listen":
		runListen(args)
	case "send":
		runSend(args)
	case "topics":
		runTopics()
	case "version":
		fmt.Printf("tap version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tap - palette notification tap

Usage:
  tap <command> [options]

Commands:
  listen    Subscribe to topics and print notifications as JSON lines
  send      Publish a notification for smoke testing
  topics    List known topics
  version   Print version
  help      Show this help

Listen Options:
  --config        Path to palette config file (default: config.toml)
  --nats-url      NATS URL (overrides config)
  --topics        Comma-separated topics (default: all)
  --components    Filter: comma-separated component IDs
  --names         Filter: comma-separated component names
  --types         Filter: comma-separated update types
  --verbose       Log at debug level on stderr

Send Options:
  --config        Path to palette config file (default: config.toml)
  --nats-url      NATS URL (overrides config)
  --kind          Notification kind: component|manifest|status (default: status)
  --update-type   Update type for component/manifest kinds
  --id            Component ID
  --name          Component name
  --manifest-version  Manifest version string
  --count         Manifest component count
  --status        System status value (default: healthy)
  --message       System status message

Examples:
  tap listen --topics=COMPONENT_UPDATED,COMPONENT_DELETED --names=Button
  tap send --kind=component --update-type=updated --id=btn-1 --name=Button
  tap send --kind=status --status=degraded --message="cache backend down"`)
}

// setupLogging keeps stderr for diagnostics so stdout stays pure JSON lines.
func setupLogging(verbose bool) {
	writer := zerolog.NewConsoleWriter()
	writer.Out = os.Stderr
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger().Level(level)
}

// connect loads the config and opens a bus on the NATS transport. Mirror
// sinks stay off when passive is set so a tap never re-publishes traffic.
func connect(configPath, natsURL string, passive bool) (*bus.Bus, error) {
	config, err := cfg.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if natsURL != "" {
		config.Bus.NATSURL = natsURL
	}
	if config.Bus.Transport != cfg.TransportNATS {
		return nil, fmt.Errorf("bus transport %q is in-process only; tap requires transport = \"nats\"", config.Bus.Transport)
	}
	if passive {
		config.Bus.Sinks = nil
	}

	transport, err := bus.NewTransport(config.Bus)
	if err != nil {
		return nil, err
	}
	b, err := bus.New(transport, config.Bus, config.Origin)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return b, nil
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

func runTopics() {
	for _, topic := range bus.AllTopics() {
		fmt.Println(topic)
	}
}
