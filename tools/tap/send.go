package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/palettekb/palette/bus"
)

type sendConfig struct {
	ConfigPath      string
	NATSURL         string
	Kind            string
	UpdateType      string
	ID              string
	Name            string
	ManifestVersion string
	Count           int
	Status          string
	Message         string
}

func runSend(args []string) {
	sc := &sendConfig{}
	fs := flag.NewFlagSet("send", flag.ExitOnError)

	fs.StringVar(&sc.ConfigPath, "config", "config.toml", "Path to palette config file")
	fs.StringVar(&sc.NATSURL, "nats-url", "", "NATS URL (overrides config)")
	fs.StringVar(&sc.Kind, "kind", "status", "Notification kind: component|manifest|status")
	fs.StringVar(&sc.UpdateType, "update-type", "", "Update type for component/manifest kinds")
	fs.StringVar(&sc.ID, "id", "", "Component ID")
	fs.StringVar(&sc.Name, "name", "", "Component name")
	fs.StringVar(&sc.ManifestVersion, "manifest-version", "", "Manifest version string")
	fs.IntVar(&sc.Count, "count", 0, "Manifest component count")
	fs.StringVar(&sc.Status, "status", "healthy", "System status value")
	fs.StringVar(&sc.Message, "message", "", "System status message")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	setupLogging(false)

	if err := validateSend(sc); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid options: %v\n", err)
		os.Exit(1)
	}

	b, err := connect(sc.ConfigPath, sc.NATSURL, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connect failed: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	if err := b.TryPublish(ctx, buildNotification(sc, b.Origin())); err != nil {
		fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Published %s notification\n", sc.Kind)
}

func buildNotification(sc *sendConfig, origin string) bus.Notification {
	now := time.Now().UTC()
	switch sc.Kind {
	case "component":
		return bus.ComponentUpdate{
			UpdateType:    bus.UpdateType(sc.UpdateType),
			ComponentID:   sc.ID,
			ComponentName: sc.Name,
			Timestamp:     now,
		}
	case "manifest":
		return bus.ManifestUpdate{
			UpdateType:     bus.UpdateType(sc.UpdateType),
			Version:        sc.ManifestVersion,
			ComponentCount: sc.Count,
			Timestamp:      now,
		}
	default:
		return bus.SystemStatus{
			Status:    sc.Status,
			Message:   sc.Message,
			Origin:    origin,
			Timestamp: now,
		}
	}
}

func validateSend(sc *sendConfig) error {
	switch sc.Kind {
	case "component":
		switch bus.UpdateType(sc.UpdateType) {
		case bus.UpdateCreated, bus.UpdateUpdated, bus.UpdateDeleted, bus.UpdateDeprecated:
		default:
			return fmt.Errorf("component kind requires --update-type of created|updated|deleted|deprecated")
		}
		if sc.ID == "" {
			return fmt.Errorf("component kind requires --id")
		}
	case "manifest":
		switch bus.UpdateType(sc.UpdateType) {
		case bus.UpdateUpdated, bus.UpdateRebuilt:
		default:
			return fmt.Errorf("manifest kind requires --update-type of updated|rebuilt")
		}
	case "status":
		if sc.Status == "" {
			return fmt.Errorf("status kind requires --status")
		}
	default:
		return fmt.Errorf("unknown kind %q", sc.Kind)
	}
	return nil
}
