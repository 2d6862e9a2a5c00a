package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"netsentry/internal/model"
)

type fakeNotifier struct {
	subjects []string
	bodies   []string
}

func (f *fakeNotifier) Send(subject, body string) error {
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeTriager struct {
	note string
	err  error
}

func (f fakeTriager) Analyze(context.Context, string) (string, error) {
	return f.note, f.err
}

func record(severity model.Severity) model.AlertRecord {
	return model.AlertRecord{
		Alert: model.Alert{
			ID:         "a-1",
			Severity:   severity,
			AttackType: model.AttackFlood,
			SrcIP:      "198.51.100.9",
			Confidence: 0.95,
		},
		Audit: model.AuditEntry{Index: 7},
	}
}

func TestWriterFiltersBySeverity(t *testing.T) {
	n := &fakeNotifier{}
	w := NewWriter(n, nil, model.SeverityHigh, 0)

	if err := w.WriteRecord(record(model.SeverityMedium)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if len(n.subjects) != 0 {
		t.Fatal("medium alert was sent despite high floor")
	}

	if err := w.WriteRecord(record(model.SeverityCritical)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if len(n.subjects) != 1 {
		t.Fatalf("sent %d mails, want 1", len(n.subjects))
	}
	if !strings.Contains(n.subjects[0], "flood") || !strings.Contains(n.subjects[0], "198.51.100.9") {
		t.Errorf("subject = %q", n.subjects[0])
	}
	if !strings.Contains(n.bodies[0], "audit index: 7") {
		t.Errorf("body missing audit reference: %q", n.bodies[0])
	}
}

func TestWriterIncludesTriageNote(t *testing.T) {
	n := &fakeNotifier{}
	w := NewWriter(n, fakeTriager{note: "likely a SYN flood"}, model.SeverityLow, 0)

	if err := w.WriteRecord(record(model.SeverityHigh)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if !strings.Contains(n.bodies[0], "likely a SYN flood") {
		t.Errorf("body missing triage note: %q", n.bodies[0])
	}
}

func TestWriterSendsDespiteTriageFailure(t *testing.T) {
	n := &fakeNotifier{}
	w := NewWriter(n, fakeTriager{err: errors.New("endpoint down")}, model.SeverityLow, 0)

	if err := w.WriteRecord(record(model.SeverityHigh)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if len(n.subjects) != 1 {
		t.Fatal("alert mail not sent when triage failed")
	}
	if strings.Contains(n.bodies[0], "Triage") {
		t.Error("body contains triage section despite failure")
	}
}
