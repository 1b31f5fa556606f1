// src/models/breaks.go
package models

import "encoding/json"

// BreakReason classifies a matched pair. At most one reason applies per pair,
// decided by the evaluator's fixed check order.
type BreakReason string

const (
	ReasonMissingInPrimary   BreakReason = "MISSING_IN_PRIMARY"
	ReasonMissingInCustodian BreakReason = "MISSING_IN_CUSTODIAN"
	ReasonCurrencyMismatch   BreakReason = "CURRENCY_MISMATCH"
	ReasonAmountDifference   BreakReason = "AMOUNT_DIFFERENCE"
	ReasonStatusMismatch     BreakReason = "STATUS_MISMATCH"
	ReasonNone               BreakReason = "NONE"
)

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Rank maps severities onto their sort index. HIGH sorts first.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	}
	return 3
}

// AutomationMode indicates how much of the recommended handling can be
// delegated without a human in the loop.
type AutomationMode string

const (
	AutomationAutopilot   AutomationMode = "AUTOPILOT"
	AutomationAssisted    AutomationMode = "ASSISTED"
	AutomationHumanReview AutomationMode = "HUMAN_REVIEW"
)

// AnnotationSource records where an annotation came from.
type AnnotationSource string

const (
	AnnotationSourceAdvisory AnnotationSource = "ADVISORY"
	AnnotationSourceFallback AnnotationSource = "FALLBACK"
	AnnotationSourceCache    AnnotationSource = "CACHE"
)

// BreakAnnotation is the severity/recommendation enrichment attached to every
// break. Created once per break per run and retained verbatim for audit.
type BreakAnnotation struct {
	Severity       Severity         `json:"severity"`
	Explanation    string           `json:"explanation"`
	Recommendation string           `json:"recommendation"`
	Tags           []string         `json:"tags"`
	Confidence     float64          `json:"confidence"`
	AutomationMode AutomationMode   `json:"automation_mode"`
	Source         AnnotationSource `json:"source"`
	RawPayload     json.RawMessage  `json:"raw_payload,omitempty"`
}

// NeedsEscalation is true when the break should not be handled unattended.
func (a BreakAnnotation) NeedsEscalation() bool {
	return a.Severity == SeverityHigh || a.AutomationMode == AutomationHumanReview
}

// BreakDetail joins a matched pair with its reason and annotation. It is the
// unit handed to the task planner and to artifact generation.
type BreakDetail struct {
	Pair       MatchedPair     `json:"pair"`
	Reason     BreakReason     `json:"reason_code"`
	Annotation BreakAnnotation `json:"annotation"`
}

func (d BreakDetail) Key() MatchKey { return d.Pair.Key }

// Persona is the class of downstream handler a task is routed to.
type Persona string

const (
	PersonaLedgerIngestion  Persona = "ledger-ingestion"
	PersonaStaticData       Persona = "static-data"
	PersonaCashAllocator    Persona = "cash-allocator"
	PersonaSettlementChaser Persona = "settlement-chaser"
)

// TaskPayload carries the subset of break fields a handling persona needs.
type TaskPayload struct {
	Key             MatchKey    `json:"key"`
	Reason          BreakReason `json:"reason_code"`
	Severity        Severity    `json:"severity"`
	Explanation     string      `json:"explanation"`
	Recommendation  string      `json:"recommendation"`
	Tags            []string    `json:"tags"`
	Confidence      float64     `json:"confidence"`
	PrimaryAmount   string      `json:"primary_amount,omitempty"`
	CustodianAmount string      `json:"custodian_amount,omitempty"`
}

// AgentTask is one planned unit of work. Sequence numbers are assigned after
// final ordering and are stable only within a single run.
type AgentTask struct {
	SequenceNumber  int         `json:"sequence_number"`
	TargetPersona   Persona     `json:"target_persona"`
	Priority        int         `json:"priority"`
	NeedsEscalation bool        `json:"needs_escalation"`
	Payload         TaskPayload `json:"payload"`
}
