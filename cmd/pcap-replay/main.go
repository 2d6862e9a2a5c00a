package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"netsentry/internal/alert"
	"netsentry/internal/capture"
	"netsentry/internal/classify"
	"netsentry/internal/config"
	"netsentry/internal/engine"
	"netsentry/internal/logger"
	"netsentry/internal/sink"
)

// pcap-replay pushes a recorded capture through the full detection pipeline
// and prints the resulting alerts. Useful for tuning thresholds against
// known-bad traffic without touching a live network.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	pcapPath := flag.String("pcap", "", "Capture file to replay (required).")
	bpf := flag.String("bpf", "", "Optional BPF filter applied during replay.")
	out := flag.String("out", "", "Optional JSONL file for the produced alerts.")
	flag.Parse()

	if *pcapPath == "" {
		log.Fatal("The -pcap flag is required.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Logging.Enabled, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Replay runs are self-contained: no enforcement, no remote sinks, and
	// a throwaway audit journal unless the config points elsewhere.
	cfg.Enforcement.Enabled = false

	scorer, err := classify.LoadLinearScorer(cfg.Classify.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load classification model: %v", err)
	}

	hub := alert.NewHub(cfg.Outputs.MailboxSize)
	if *out != "" {
		w, err := sink.NewFileWriter(*out)
		if err != nil {
			log.Fatalf("Failed to open output file: %v", err)
		}
		hub.Subscribe("file", w)
	}

	source := &capture.ReplaySource{Path: *pcapPath, BPF: *bpf}
	eng, err := engine.New(cfg, source, scorer, nil, hub)
	if err != nil {
		log.Fatalf("Failed to assemble pipeline: %v", err)
	}

	if err := eng.Run(context.Background()); err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	records := eng.Ring().Recent(0)
	fmt.Printf("replay complete: %d alerts from %s\n", len(records), *pcapPath)
	for i := len(records) - 1; i >= 0; i-- {
		a := records[i].Alert
		fmt.Printf("  [%s] %s %s from %s (confidence %.2f, risk %.1f)\n",
			a.Timestamp.Format("15:04:05"), a.Severity, a.AttackType, a.SrcIP, a.Confidence, a.RiskScore)
	}

	if threats := eng.Manager().Snapshot(); len(threats) > 0 {
		fmt.Printf("tracked sources:\n")
		for _, st := range threats {
			fmt.Printf("  %-15s phase=%s risk=%.1f detections=%d\n",
				st.Source, st.Phase, st.RiskScore, st.TotalDetections)
		}
	}
}
