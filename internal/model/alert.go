package model

import "time"

// BlockOutcome records the result of an enforcement attempt for an alert.
type BlockOutcome string

const (
	BlockNotAttempted BlockOutcome = "not-attempted"
	BlockApplied      BlockOutcome = "applied"
	BlockFailed       BlockOutcome = "failed"
)

// Alert is the finalized, immutable artifact emitted when a source crosses a
// threat threshold. Ownership transfers to the dispatcher, then to the audit
// recorder and subscribers as shared read-only data.
type Alert struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Severity     Severity     `json:"severity"`
	AttackType   AttackType   `json:"attack_type"`
	SrcIP        string       `json:"source_ip"`
	DstIP        string       `json:"destination_ip"`
	Confidence   float64      `json:"confidence"`
	Phase        Phase        `json:"phase"`
	RiskScore    float64      `json:"risk_score"`
	Blocked      bool         `json:"blocked"`
	BlockOutcome BlockOutcome `json:"block_outcome"`
	Description  string       `json:"description"`
}

// AuditEntry is one link of the tamper-evident hash chain. Entries are
// append-only and never mutated.
type AuditEntry struct {
	Index     uint64    `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	AlertID   string    `json:"alert_id"`
	AlertHash string    `json:"alert_hash"`
	PrevHash  string    `json:"previous_hash"`
	Hash      string    `json:"hash"`
}

// AlertRecord pairs a finalized alert with its audit entry; this is the unit
// delivered to persistence and notification subscribers.
type AlertRecord struct {
	Alert Alert      `json:"alert"`
	Audit AuditEntry `json:"audit"`
}
