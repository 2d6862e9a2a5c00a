package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"netsentry/internal/alert"
	"netsentry/internal/audit"
	"netsentry/internal/capture"
	"netsentry/internal/classify"
	"netsentry/internal/config"
	"netsentry/internal/feature"
	"netsentry/internal/flow"
	"netsentry/internal/logger"
	"netsentry/internal/model"
	"netsentry/internal/threat"
)

// Engine owns the detection pipeline: packets from a capture source are
// aggregated into flows, classified, folded into per-source threat state,
// and finalized as audited alerts. Stages are joined by bounded channels;
// shutdown drains them front to back so nothing in flight is lost.
type Engine struct {
	cfg        *config.Config
	source     capture.Source
	aggregator *flow.Aggregator
	classifier *classify.Classifier
	manager    *threat.Manager
	dispatcher *alert.Dispatcher
	recorder   *audit.Recorder
	hub        *alert.Hub
	ring       *alert.Ring

	wg sync.WaitGroup
}

// New assembles the pipeline. The hub must already carry its subscribers;
// the ring is registered here so the API always has recent alerts.
func New(cfg *config.Config, source capture.Source, scorer model.Scorer, enforcer model.Enforcer, hub *alert.Hub) (*Engine, error) {
	ring := alert.NewRing(cfg.Outputs.RecentAlerts)
	hub.Subscribe("ring", ring)

	recorder, err := audit.NewRecorder(cfg.Audit, hub.Publish)
	if err != nil {
		return nil, fmt.Errorf("audit recorder: %w", err)
	}

	manager := threat.NewManager(cfg.Threat)
	return &Engine{
		cfg:        cfg,
		source:     source,
		aggregator: flow.NewAggregator(cfg.Flow),
		classifier: classify.NewClassifier(scorer),
		manager:    manager,
		dispatcher: alert.NewDispatcher(cfg.Enforcement, enforcer, recorder),
		recorder:   recorder,
		hub:        hub,
		ring:       ring,
	}, nil
}

// Manager exposes threat state for the API.
func (e *Engine) Manager() *threat.Manager { return e.manager }

// Recorder exposes the audit chain for the API.
func (e *Engine) Recorder() *audit.Recorder { return e.recorder }

// Ring exposes recent alerts for the API.
func (e *Engine) Ring() *alert.Ring { return e.ring }

// Run blocks until ctx is cancelled, then drains every stage in order.
func (e *Engine) Run(ctx context.Context) error {
	e.hub.Start()
	e.recorder.Start()
	e.dispatcher.Start(e.manager.Transitions)
	e.manager.Start()
	e.aggregator.Start(e.cfg.Classify.Workers)

	for i := 0; i < e.cfg.Classify.Workers; i++ {
		e.wg.Add(1)
		go e.classifyWorker()
	}

	// The capture source feeds the aggregator's input directly.
	sourceErr := make(chan error, 1)
	go func() {
		sourceErr <- e.source.Run(ctx, e.aggregator.In)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		<-sourceErr
	case err := <-sourceErr:
		// Source exhausted (replay) or failed hard. Either way the rest of
		// the pipeline drains normally.
		if err != nil && ctx.Err() == nil {
			runErr = err
			e.systemAlert(fmt.Sprintf("capture source failed: %v", err))
		}
	}

	logger.Infof("engine: draining pipeline")
	e.aggregator.Stop() // closes Out, classify workers finish the backlog
	e.wg.Wait()
	e.manager.Stop() // closes Transitions
	e.dispatcher.Stop()
	e.recorder.Stop()
	e.hub.Stop()
	logger.Infof("engine: pipeline drained")
	return runErr
}

func (e *Engine) classifyWorker() {
	defer e.wg.Done()
	for rec := range e.aggregator.Out {
		det := e.classifier.Classify(rec, feature.Extract(rec))
		e.manager.Record(det)
	}
}

// systemAlert reports a pipeline-health incident on the normal alert feed,
// so operators see capture loss next to the detections it may have masked.
// Emit sheds rather than blocks, so shutdown cannot stall on a full feed.
func (e *Engine) systemAlert(description string) {
	e.manager.Emit(model.Transition{
		Source: "system",
		From:   model.PhaseClean,
		To:     model.PhaseConfirmed,
		Detection: model.Detection{
			Label:      model.AttackSystem,
			Confidence: 1,
			Flow:       model.FlowRecord{Key: description},
		},
		At: time.Now().UTC(),
	})
}
