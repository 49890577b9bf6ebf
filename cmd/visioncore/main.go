// Package main implements the entry point for the vision/PLC coordination
// core. It wires the tag client, the pick-and-place state machine, the
// notification bus and the operational endpoints, then runs until signaled.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/config"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/control"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/health"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/metric"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/notify"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/plcclient"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/tagmap"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "visioncore"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}
	safe := config.NewSafeConfig(cfg)

	// Operational infrastructure: metrics endpoint and health monitor.
	registry := metric.NewRegistry()
	metrics := registry.Metrics

	var metricServer *metric.Server
	if cfg.Metrics.Port > 0 {
		metricServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if err := metricServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = metricServer.Stop(5 * time.Second) }()
	}

	monitor := health.NewMonitor()
	bus := notify.NewBus()

	// Optional NATS telemetry bridge and detection intake.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name(appName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			// Telemetry is not worth refusing to run the line for.
			logger.Warn("NATS connection failed, telemetry disabled",
				"url", cfg.NATS.URL, "error", err)
		} else {
			defer func() { _ = nc.Drain() }()
		}
	}
	notify.NewNATSBridge(nc, cfg.NATS.EventsSubject, logger).Attach(bus)

	// Core components, leaves first: tag whitelist, PLC client, controller.
	tags := tagmap.New(cfg.Tags)

	// No in-tree wire-level driver yet: the client falls back to the
	// simulator until a CIP hardware binding is injected here.
	var driver plcclient.Driver

	client := plcclient.NewClient(safe, tags, driver,
		plcclient.WithLogger(logger),
		plcclient.WithMetrics(metrics),
		plcclient.WithBus(bus))

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect PLC client: %w", err)
	}
	defer client.Disconnect()

	controller := control.NewController(client, safe,
		control.WithControllerLogger(logger),
		control.WithControllerMetrics(metrics),
		control.WithControllerBus(bus))
	if err := controller.Start(); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}
	defer controller.Stop()

	if nc != nil && cfg.NATS.DetectionSubject != "" {
		sub, err := subscribeDetections(nc, cfg.NATS.DetectionSubject, controller, logger)
		if err != nil {
			return fmt.Errorf("subscribe detections: %w", err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	go watchHealth(ctx, client, controller, monitor, logger)

	logger.Info("visioncore running",
		"plc", fmt.Sprintf("%s:%d", cfg.PLC.IP, cfg.PLC.Port),
		"simulated", cfg.PLC.Simulated,
		"cycle_mode", controller.CycleMode())

	<-ctx.Done()
	logger.Info("shutdown signal received",
		"timeout", cliCfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		controller.Stop()
		client.Disconnect()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out")
	}
	return nil
}

func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cliCfg.ConfigPath != "" {
		cfg, err = config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if cliCfg.Simulated {
		cfg.PLC.Simulated = true
	}
	return cfg, nil
}

// subscribeDetections feeds inference results published on NATS into the
// state machine.
func subscribeDetections(nc *nats.Conn, subject string, controller *control.Controller, logger *slog.Logger) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev control.DetectionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Warn("dropping malformed detection message",
				"subject", msg.Subject, "error", err)
			return
		}
		controller.ProcessDetection(ev)
	})
}

// watchHealth periodically aggregates component health for operators.
func watchHealth(ctx context.Context, client *plcclient.Client, controller *control.Controller, monitor *health.Monitor, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := client.State()
			switch {
			case state.IsHealthy():
				monitor.UpdateHealthy("plc", "connected")
			case state.IsConnected():
				monitor.UpdateDegraded("plc", state.Status.String())
			default:
				monitor.UpdateUnhealthy("plc", state.Status.String())
			}

			status := controller.Status()
			switch {
			case !status.Running:
				monitor.UpdateUnhealthy("controller", "stopped")
			case status.LastError != "":
				monitor.UpdateDegraded("controller", status.LastError)
			default:
				monitor.UpdateHealthy("controller", status.State)
			}

			agg := monitor.AggregateHealth(appName)
			if !agg.IsHealthy() {
				logger.Warn("cell health", "status", agg.Status,
					"message", agg.Message)
			}
		}
	}
}
