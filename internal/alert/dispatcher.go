package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"netsentry/internal/audit"
	"netsentry/internal/config"
	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"

	"github.com/google/uuid"
)

// confidenceFloor is the verdict confidence below which an alert's severity
// is downgraded one level.
const confidenceFloor = 0.7

// Dispatcher turns threat transitions into finalized alerts: it assigns
// severity, attempts enforcement for confirmed threats, and hands the alert
// to the audit recorder. Enforcement failures mark the alert but never stop
// it.
type Dispatcher struct {
	enforcer model.Enforcer
	enabled  bool
	timeout  time.Duration
	recorder *audit.Recorder
	wg       sync.WaitGroup
}

// NewDispatcher wires the dispatcher to its enforcement and audit
// collaborators. A nil enforcer disables enforcement regardless of config.
func NewDispatcher(cfg config.EnforcementConfig, enforcer model.Enforcer, recorder *audit.Recorder) *Dispatcher {
	return &Dispatcher{
		enforcer: enforcer,
		enabled:  cfg.Enabled && enforcer != nil,
		timeout:  cfg.Timeout,
		recorder: recorder,
	}
}

// Start consumes transitions until the channel closes.
func (d *Dispatcher) Start(in <-chan model.Transition) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for tr := range in {
			d.dispatch(tr)
		}
	}()
}

// Stop waits for in-flight dispatches. Callers must close the transition
// channel first.
func (d *Dispatcher) Stop() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(tr model.Transition) {
	a := d.buildAlert(tr)

	if d.enabled && tr.To == model.PhaseConfirmed && model.SeverityRank(a.Severity) >= model.SeverityRank(model.SeverityHigh) {
		a.BlockOutcome = d.block(a.SrcIP)
		a.Blocked = a.BlockOutcome == model.BlockApplied
	}

	metrics.AlertsTotal.WithLabelValues(string(a.Severity)).Inc()
	logger.Warnf("alert: %s %s from %s (confidence %.2f, risk %.1f, block %s)",
		a.Severity, a.AttackType, a.SrcIP, a.Confidence, a.RiskScore, a.BlockOutcome)

	// Blocking handoff: every dispatched alert reaches the audit chain.
	d.recorder.Enqueue(a)
}

func (d *Dispatcher) buildAlert(tr model.Transition) model.Alert {
	det := tr.Detection
	sev := model.BaseSeverity(det.Label)
	if tr.To == model.PhaseSuspicious {
		sev = downgrade(sev)
	}
	if det.Confidence < confidenceFloor {
		sev = downgrade(sev)
	}
	// A confirmed volumetric attack at high confidence is an incident, not
	// just an event.
	if tr.To == model.PhaseConfirmed && det.Confidence >= 0.9 &&
		(det.Label == model.AttackFlood || det.Label == model.AttackBotnet) {
		sev = model.SeverityCritical
	}

	var dstIP string
	if det.Flow.FiveTuple.DstIP != nil {
		dstIP = det.Flow.FiveTuple.DstIP.String()
	}

	desc := fmt.Sprintf("%s activity from %s: %s (risk %.1f)",
		det.Label, tr.Source, tr.To, tr.RiskScore)
	// System detections carry their incident text in the flow key.
	if det.Label == model.AttackSystem && det.Flow.Key != "" {
		desc = det.Flow.Key
	}

	return model.Alert{
		ID:           uuid.NewString(),
		Timestamp:    tr.At,
		Severity:     sev,
		AttackType:   det.Label,
		SrcIP:        tr.Source,
		DstIP:        dstIP,
		Confidence:   det.Confidence,
		Phase:        tr.To,
		RiskScore:    tr.RiskScore,
		BlockOutcome: model.BlockNotAttempted,
		Description:  desc,
	}
}

// block attempts enforcement once, bounded by the configured timeout.
func (d *Dispatcher) block(sourceIP string) model.BlockOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.enforcer.Block(ctx, sourceIP); err != nil {
		logger.Errorf("alert: block of %s failed: %v", sourceIP, err)
		return model.BlockFailed
	}
	logger.Infof("alert: source %s blocked", sourceIP)
	return model.BlockApplied
}

func downgrade(s model.Severity) model.Severity {
	switch s {
	case model.SeverityCritical:
		return model.SeverityHigh
	case model.SeverityHigh:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
