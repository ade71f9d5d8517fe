package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/palettekb/palette/bus"
)

type listenConfig struct {
	ConfigPath string
	NATSURL    string
	Topics     string
	Components string
	Names      string
	Types      string
	Verbose    bool
}

// tapLine is one printed notification.
type tapLine struct {
	Topic        bus.Topic        `json:"topic"`
	ReceivedAt   time.Time        `json:"receivedAt"`
	Notification bus.Notification `json:"notification"`
}

func runListen(args []string) {
	lc := &listenConfig{}
	fs := flag.NewFlagSet("listen", flag.ExitOnError)

	fs.StringVar(&lc.ConfigPath, "config", "config.toml", "Path to palette config file")
	fs.StringVar(&lc.NATSURL, "nats-url", "", "NATS URL (overrides config)")
	fs.StringVar(&lc.Topics, "topics", "", "Comma-separated topics (default: all)")
	fs.StringVar(&lc.Components, "components", "", "Filter: comma-separated component IDs")
	fs.StringVar(&lc.Names, "names", "", "Filter: comma-separated component names")
	fs.StringVar(&lc.Types, "types", "", "Filter: comma-separated update types")
	fs.BoolVar(&lc.Verbose, "verbose", false, "Log at debug level on stderr")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	setupLogging(lc.Verbose)

	topics, err := parseTopics(lc.Topics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid topics: %v\n", err)
		os.Exit(1)
	}

	b, err := connect(lc.ConfigPath, lc.NATSURL, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connect failed: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	opts := []bus.SubscribeOption{}
	if filter := buildFilter(lc); filter != nil {
		opts = append(opts, bus.WithFilter(*filter))
	}

	ch, err := b.Subscribe(ctx, topics, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Subscribe failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	received := 0
	for n := range ch {
		topic, ok := bus.TopicOf(n)
		if !ok {
			continue
		}
		line := tapLine{
			Topic:        topic,
			ReceivedAt:   time.Now().UTC(),
			Notification: n,
		}
		if err := enc.Encode(line); err != nil {
			fmt.Fprintf(os.Stderr, "Encode failed: %v\n", err)
			os.Exit(1)
		}
		received++
	}

	fmt.Fprintf(os.Stderr, "Received %d notifications\n", received)
}

func parseTopics(raw string) ([]bus.Topic, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil // Subscribe defaults to all topics
	}

	var topics []bus.Topic
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if !bus.ValidTopic(name) {
			return nil, fmt.Errorf("unknown topic %q", name)
		}
		topics = append(topics, bus.Topic(name))
	}
	return topics, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func buildFilter(lc *listenConfig) *bus.Filter {
	filter := &bus.Filter{
		ComponentIDs:   splitList(lc.Components),
		ComponentNames: splitList(lc.Names),
		UpdateTypes:    splitList(lc.Types),
	}
	if len(filter.ComponentIDs) == 0 && len(filter.ComponentNames) == 0 && len(filter.UpdateTypes) == 0 {
		return nil
	}
	return filter
}
