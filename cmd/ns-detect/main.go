package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"netsentry/internal/ai"
	"netsentry/internal/alert"
	"netsentry/internal/api"
	"netsentry/internal/capture"
	"netsentry/internal/classify"
	"netsentry/internal/config"
	"netsentry/internal/enforce"
	"netsentry/internal/engine"
	"netsentry/internal/logger"
	"netsentry/internal/model"
	"netsentry/internal/notify"
	"netsentry/internal/probe"
	"netsentry/internal/sink"

	"github.com/nats-io/nats.go"
)

// ns-detect runs the full detection pipeline: packets in (live interface,
// NATS feed from remote sensors, or a pcap file), audited alerts out.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Logging.Enabled, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	scorer, err := classify.LoadLinearScorer(cfg.Classify.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load classification model: %v", err)
	}

	// NATS is shared by the packet feed and the alert broadcast; connect
	// once if either needs it.
	var conn *nats.Conn
	needNATS := cfg.Capture.Mode == "nats" || cfg.Outputs.NATS.Enabled
	if needNATS {
		conn, err = nats.Connect(cfg.Transport.NATSURL, nats.MaxReconnects(-1))
		if err != nil {
			log.Fatalf("Failed to connect to NATS at %s: %v", cfg.Transport.NATSURL, err)
		}
		defer conn.Close()
	}

	source, err := buildSource(cfg, conn)
	if err != nil {
		log.Fatalf("Failed to build capture source: %v", err)
	}
	enforcer, err := buildEnforcer(cfg)
	if err != nil {
		log.Fatalf("Failed to build enforcer: %v", err)
	}

	hub := alert.NewHub(cfg.Outputs.MailboxSize)
	if cfg.Outputs.ClickHouse.Enabled {
		w, err := sink.NewClickHouseWriter(cfg.Outputs.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to set up ClickHouse sink: %v", err)
		}
		hub.Subscribe("clickhouse", w)
	}
	if cfg.Outputs.NATS.Enabled {
		hub.Subscribe("nats", sink.NewNATSWriter(conn, cfg.Transport.AlertSubject))
	}
	if cfg.Outputs.File.Enabled {
		w, err := sink.NewFileWriter(cfg.Outputs.File.Path)
		if err != nil {
			log.Fatalf("Failed to set up file sink: %v", err)
		}
		hub.Subscribe("file", w)
	}
	if cfg.Notify.Enabled {
		var triager notify.Triager
		if cfg.Notify.AI.Enabled {
			analyzer, err := ai.NewAnalyzer(cfg.Notify.AI)
			if err != nil {
				log.Fatalf("Failed to set up triage analyzer: %v", err)
			}
			triager = analyzer
		}
		notifier := notify.NewEmailNotifier(cfg.Notify.SMTP)
		hub.Subscribe("email", notify.NewWriter(notifier, triager,
			model.Severity(cfg.Notify.MinSeverity), cfg.Notify.AI.Timeout))
	}

	eng, err := engine.New(cfg, source, scorer, enforcer, hub)
	if err != nil {
		log.Fatalf("Failed to assemble pipeline: %v", err)
	}

	server := api.NewServer(cfg.API, eng.Manager(), eng.Recorder(), eng.Ring())
	server.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Infof("detect: shutdown signal received")
		cancel()
	}()

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Errorf("detect: pipeline stopped: %v", err)
	}
	server.Stop()
}

func buildSource(cfg *config.Config, conn *nats.Conn) (capture.Source, error) {
	switch cfg.Capture.Mode {
	case "live":
		return &capture.LiveSource{
			Interface:   cfg.Capture.Interface,
			BPF:         cfg.Capture.BPF,
			SnapshotLen: cfg.Capture.SnapshotLen,
			Promiscuous: cfg.Capture.Promiscuous,
			MinBackoff:  cfg.Capture.MinBackoff,
			MaxBackoff:  cfg.Capture.MaxBackoff,
		}, nil
	case "nats":
		return probe.NewNATSSource(conn, cfg.Transport.PacketSubject), nil
	case "pcap":
		return &capture.ReplaySource{Path: cfg.Capture.PcapPath, BPF: cfg.Capture.BPF}, nil
	default:
		return nil, &config.InvalidValueError{Field: "capture.mode", Value: cfg.Capture.Mode}
	}
}

func buildEnforcer(cfg *config.Config) (model.Enforcer, error) {
	if !cfg.Enforcement.Enabled {
		return nil, nil
	}
	switch cfg.Enforcement.Mode {
	case "redis":
		return enforce.NewRedisEnforcer(cfg.Enforcement.Redis)
	case "http":
		return enforce.NewHTTPEnforcer(cfg.Enforcement.HTTP), nil
	default:
		return nil, &config.InvalidValueError{Field: "enforcement.mode", Value: cfg.Enforcement.Mode}
	}
}
