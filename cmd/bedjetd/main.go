// bedjetd keeps a single BLE connection to a BedJet alive, mirrors its
// state, and exposes it over MQTT and Prometheus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jcrd/bedjetd/internal/bedjet"
	"github.com/jcrd/bedjetd/internal/ble"
	"github.com/jcrd/bedjetd/internal/config"
	"github.com/jcrd/bedjetd/internal/metrics"
	"github.com/jcrd/bedjetd/internal/mqtt"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/bedjetd/config.yaml)")
	address := flag.String("address", "", "device address (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *address != "" {
		cfg.Device.Address = *address
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	printBanner(cfg)

	adapter := ble.NewNativeAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("Failed to enable BLE adapter: %v\n\nOn Linux, check that bluetoothd is running and the user can access it.", err)
	}

	state := bedjet.NewStateModel()
	queue := bedjet.NewQueue()

	var obs bedjet.Observer = bedjet.NopObserver{}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(state, cfg.Device.StaleAfter.Std())
		obs = collector
	}

	sup := bedjet.NewSupervisor(bedjet.SupervisorConfig{
		Session: bedjet.SessionConfig{
			Address:          cfg.Device.Address,
			ConnectTimeout:   cfg.Device.ConnectTimeout.Std(),
			SubscribeTimeout: cfg.Device.SubscribeTimeout.Std(),
			WriteTimeout:     cfg.Device.WriteTimeout.Std(),
		},
		InitialBackoff: cfg.Reconnect.InitialBackoff.Std(),
		MaxBackoff:     cfg.Reconnect.MaxBackoff.Std(),
	}, adapter, state, queue, obs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge = mqtt.NewBridge(cfg.MQTT, state, queue, slog.Default())
		if err := bridge.Start(); err != nil {
			log.Fatalf("mqtt: %v", err)
		}
	}

	var httpServer *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		httpServer = &http.Server{
			Addr:    cfg.Metrics.Listen,
			Handler: metrics.Handler(reg),
		}
		go func() {
			slog.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("metrics serve: %v", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	// The supervisor observes the same context; wait for its teardown so
	// the device connection is released before we exit.
	select {
	case <-sup.Done():
	case <-time.After(10 * time.Second):
		slog.Warn("supervisor did not stop in time")
	}

	if bridge != nil {
		bridge.Close()
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== bedjetd ===")
	fmt.Printf("  Device:    %s\n", cfg.Device.Address)
	fmt.Printf("  Reconnect: %s..%s\n", cfg.Reconnect.InitialBackoff.Std(), cfg.Reconnect.MaxBackoff.Std())
	if cfg.MQTT.Enabled {
		fmt.Printf("  MQTT:      %s (prefix %s)\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	} else {
		fmt.Println("  MQTT:      disabled")
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:   %s\n", cfg.Metrics.Listen)
	} else {
		fmt.Println("  Metrics:   disabled")
	}
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
