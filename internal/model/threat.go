package model

import "time"

// AttackType is the classifier label taxonomy.
type AttackType string

const (
	AttackBenign    AttackType = "benign"
	AttackFlood     AttackType = "flood"
	AttackBotnet    AttackType = "botnet"
	AttackBackdoor  AttackType = "backdoor"
	AttackInjection AttackType = "injection"
	AttackRecon     AttackType = "recon"
	AttackSpoofing  AttackType = "spoofing"

	// AttackSystem marks pipeline-health alerts (capture loss, audit
	// unavailability), which are reported on the same alert feed but are
	// not classifier detections.
	AttackSystem AttackType = "system"
)

// Severity is the alert severity scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BaseSeverity returns the intrinsic severity of an attack type before
// confidence and escalation adjustments.
func BaseSeverity(t AttackType) Severity {
	switch t {
	case AttackBackdoor:
		return SeverityCritical
	case AttackFlood, AttackBotnet, AttackInjection:
		return SeverityHigh
	case AttackSpoofing:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SeverityWeight maps a severity to its risk contribution.
func SeverityWeight(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 7
	case SeverityHigh:
		return 5
	case SeverityMedium:
		return 3
	default:
		return 1
	}
}

// SeverityRank orders severities for comparisons; higher is worse.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Detection is a single classifier verdict on one flow.
type Detection struct {
	Label      AttackType
	Confidence float64
	Flow       FlowRecord
	At         time.Time
}

// Phase is the per-source threat escalation state.
type Phase string

const (
	PhaseClean      Phase = "clean"
	PhaseWatching   Phase = "watching"
	PhaseSuspicious Phase = "suspicious"
	PhaseConfirmed  Phase = "confirmed"
	PhaseCooling    Phase = "cooling-down"
)

// PhaseRank orders phases along the escalation ladder.
func PhaseRank(p Phase) int {
	switch p {
	case PhaseWatching:
		return 1
	case PhaseSuspicious:
		return 2
	case PhaseConfirmed:
		return 3
	case PhaseCooling:
		return 4
	default:
		return 0
	}
}

// ThreatState is a read-only snapshot of the aggregated risk assessment for
// one source address. Only the threat manager mutates the underlying state.
type ThreatState struct {
	Source    string  `json:"source"`
	Phase     Phase   `json:"phase"`
	RiskScore float64 `json:"risk_score"`
	// TotalDetections counts malicious verdicts over the source's tracked
	// lifetime; risk decay, not this counter, drives de-escalation.
	TotalDetections int        `json:"total_detections"`
	MaxSeverity     Severity   `json:"max_severity"`
	LastLabel       AttackType `json:"last_label"`
	FirstSeen       time.Time  `json:"first_seen"`
	LastSeen        time.Time  `json:"last_seen"`
	CooldownUntil   time.Time  `json:"cooldown_until,omitempty"`
}

// Transition is emitted by the threat manager when a source crosses an
// alerting threshold (entry into Suspicious or Confirmed).
type Transition struct {
	Source    string
	From      Phase
	To        Phase
	Detection Detection
	RiskScore float64
	At        time.Time
}
