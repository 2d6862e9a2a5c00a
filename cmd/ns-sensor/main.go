package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"netsentry/internal/capture"
	"netsentry/internal/config"
	"netsentry/internal/logger"
	"netsentry/internal/model"
	"netsentry/internal/probe"

	"github.com/nats-io/nats.go"
)

// ns-sensor captures packets on a local interface and publishes them to the
// detection engine over NATS.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Interface to capture from (overrides config).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Logging.Enabled, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if *iface != "" {
		cfg.Capture.Interface = *iface
	}
	if cfg.Capture.Interface == "" {
		log.Fatal("No capture interface configured; set capture.interface or pass -iface.")
	}

	conn, err := nats.Connect(cfg.Transport.NATSURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.Capture.MinBackoff),
	)
	if err != nil {
		log.Fatalf("Failed to connect to NATS at %s: %v", cfg.Transport.NATSURL, err)
	}
	defer conn.Close()

	source := &capture.LiveSource{
		Interface:   cfg.Capture.Interface,
		BPF:         cfg.Capture.BPF,
		SnapshotLen: cfg.Capture.SnapshotLen,
		Promiscuous: cfg.Capture.Promiscuous,
		MinBackoff:  cfg.Capture.MinBackoff,
		MaxBackoff:  cfg.Capture.MaxBackoff,
	}
	publisher := probe.NewPublisher(conn, cfg.Transport.PacketSubject)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan *model.PacketEvent, cfg.Capture.BufferSize)

	go func() {
		if err := source.Run(ctx, events); err != nil && ctx.Err() == nil {
			logger.Errorf("sensor: capture stopped: %v", err)
		}
		close(events)
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := publisher.Run(ctx, events); err != nil && ctx.Err() == nil {
			logger.Errorf("sensor: publisher stopped: %v", err)
		}
	}()

	logger.Infof("sensor: capturing on %s, publishing to %s", cfg.Capture.Interface, cfg.Transport.PacketSubject)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Infof("sensor: shutdown signal received")
	cancel()
	<-done
}
