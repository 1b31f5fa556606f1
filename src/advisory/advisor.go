// Package advisory enriches classified breaks with severity and
// recommendation annotations, preferring an external advisory capability and
// degrading to a deterministic fallback when it is unavailable or fails.
package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/username/divrecon/src/models"
)

// RecordFields is the minimal comparable view of a record sent to the
// advisory capability. Nothing beyond these fields ever leaves the process.
type RecordFields struct {
	Source   models.Source `json:"source"`
	ISIN     string        `json:"isin"`
	Account  string        `json:"account"`
	PayDate  string        `json:"pay_date"`
	Amount   string        `json:"amount"`
	Currency string        `json:"currency"`
	Status   models.Status `json:"status"`
}

// Request is the advisory capability's input contract.
type Request struct {
	ReasonCode models.BreakReason `json:"reason_code"`
	Primary    *RecordFields      `json:"primary_record_fields"`
	Custodian  *RecordFields      `json:"custodian_record_fields"`
}

// NewRequest builds the advisory request for one classified pair.
func NewRequest(reason models.BreakReason, pair models.MatchedPair) Request {
	return Request{
		ReasonCode: reason,
		Primary:    recordFields(pair.Primary),
		Custodian:  recordFields(pair.Custodian),
	}
}

func recordFields(record *models.CanonicalRecord) *RecordFields {
	if record == nil {
		return nil
	}
	return &RecordFields{
		Source:   record.Source,
		ISIN:     record.ISIN,
		Account:  record.Account,
		PayDate:  record.PayDate.Format("2006-01-02"),
		Amount:   record.Amount.StringFixed(2),
		Currency: record.Currency,
		Status:   record.Status,
	}
}

// Advice is a validated advisory response.
type Advice struct {
	Severity       models.Severity
	Explanation    string
	Recommendation string
	Tags           []string
	Confidence     float64
	AutomationMode models.AutomationMode
	Raw            json.RawMessage
}

// Advisor is the external advisory capability. A disabled implementation and
// a stubbed test implementation both satisfy it.
type Advisor interface {
	Available() bool
	Annotate(ctx context.Context, req Request) (Advice, error)
}

// Disabled is the advisor used when no advisory capability is configured.
// Annotate is never reached: callers must check Available first and
// short-circuit to the fallback without burning a timeout.
type Disabled struct{}

func (Disabled) Available() bool { return false }

func (Disabled) Annotate(context.Context, Request) (Advice, error) {
	return Advice{}, fmt.Errorf("advisory capability disabled")
}

// ParseAdvice validates a raw advisory payload. Severity, automation mode and
// confidence are checked against their allowed sets; a payload failing any
// check is rejected outright, never partially accepted.
func ParseAdvice(payload []byte) (Advice, error) {
	if !gjson.ValidBytes(payload) {
		return Advice{}, fmt.Errorf("advisory payload is not valid JSON")
	}
	doc := gjson.ParseBytes(payload)

	severity := models.Severity(strings.ToUpper(strings.TrimSpace(doc.Get("severity").String())))
	switch severity {
	case models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
	default:
		return Advice{}, fmt.Errorf("advisory payload has invalid severity %q", doc.Get("severity").String())
	}

	rawMode := strings.ToUpper(strings.TrimSpace(doc.Get("automation_mode").String()))
	mode := models.AutomationMode(strings.ReplaceAll(rawMode, "-", "_"))
	switch mode {
	case models.AutomationAutopilot, models.AutomationAssisted, models.AutomationHumanReview:
	default:
		return Advice{}, fmt.Errorf("advisory payload has invalid automation_mode %q", doc.Get("automation_mode").String())
	}

	confidenceField := doc.Get("confidence")
	if !confidenceField.Exists() || confidenceField.Type != gjson.Number {
		return Advice{}, fmt.Errorf("advisory payload is missing a numeric confidence")
	}
	confidence := confidenceField.Float()
	if confidence < 0 || confidence > 1 {
		return Advice{}, fmt.Errorf("advisory payload confidence %v outside [0,1]", confidence)
	}

	var tags []string
	for _, tag := range doc.Get("tags").Array() {
		if trimmed := strings.TrimSpace(tag.String()); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}

	raw := make(json.RawMessage, len(payload))
	copy(raw, payload)

	return Advice{
		Severity:       severity,
		Explanation:    strings.TrimSpace(doc.Get("explanation").String()),
		Recommendation: strings.TrimSpace(doc.Get("recommendation").String()),
		Tags:           tags,
		Confidence:     confidence,
		AutomationMode: mode,
		Raw:            raw,
	}, nil
}
