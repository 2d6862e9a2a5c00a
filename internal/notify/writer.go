package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"netsentry/internal/logger"
	"netsentry/internal/model"
)

// Triager produces an advisory analysis of an alert. Optional.
type Triager interface {
	Analyze(ctx context.Context, alertText string) (string, error)
}

// Writer is a hub subscriber that emails alerts at or above a severity
// floor, optionally enriched with an AI triage note. It shares the hub's
// isolation guarantees: a slow SMTP relay backs up only this subscriber's
// mailbox.
type Writer struct {
	notifier  Notifier
	triager   Triager
	minRank   int
	aiTimeout time.Duration
}

// NewWriter filters on minSeverity; triager may be nil.
func NewWriter(notifier Notifier, triager Triager, minSeverity model.Severity, aiTimeout time.Duration) *Writer {
	if aiTimeout <= 0 {
		aiTimeout = 30 * time.Second
	}
	return &Writer{
		notifier:  notifier,
		triager:   triager,
		minRank:   model.SeverityRank(minSeverity),
		aiTimeout: aiTimeout,
	}
}

// WriteRecord emails one alert if it clears the severity floor.
func (w *Writer) WriteRecord(rec model.AlertRecord) error {
	if model.SeverityRank(rec.Alert.Severity) < w.minRank {
		return nil
	}

	text := renderText(rec)
	body := "<h1>NetSentry Alert</h1><pre>" + html.EscapeString(text) + "</pre>"

	if w.triager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), w.aiTimeout)
		analysis, err := w.triager.Analyze(ctx, text)
		cancel()
		if err != nil {
			logger.Warnf("notify: triage analysis failed for alert %s: %v", rec.Alert.ID, err)
		} else {
			body += "<h2>Triage</h2><pre>" + html.EscapeString(analysis) + "</pre>"
		}
	}

	subject := fmt.Sprintf("[%s] %s from %s", rec.Alert.Severity, rec.Alert.AttackType, rec.Alert.SrcIP)
	return w.notifier.Send(subject, body)
}

// Close satisfies model.RecordWriter.
func (w *Writer) Close() error { return nil }

func renderText(rec model.AlertRecord) string {
	a := rec.Alert
	return fmt.Sprintf(
		"id:          %s\n"+
			"time:        %s\n"+
			"severity:    %s\n"+
			"attack type: %s\n"+
			"source:      %s\n"+
			"destination: %s\n"+
			"confidence:  %.2f\n"+
			"risk score:  %.1f\n"+
			"blocked:     %s\n"+
			"audit index: %d\n"+
			"description: %s\n",
		a.ID, a.Timestamp.Format(time.RFC3339), a.Severity, a.AttackType,
		a.SrcIP, a.DstIP, a.Confidence, a.RiskScore, a.BlockOutcome,
		rec.Audit.Index, a.Description)
}
