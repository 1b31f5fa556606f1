package advisory

import "github.com/username/divrecon/src/models"

// fallbackConfidence is the fixed confidence stamped on every canned
// annotation. Low on purpose: nobody reviewed these.
const fallbackConfidence = 0.3

// fallbackLibrary supplies a deterministic annotation per reason code when
// the advisory capability cannot be used. Every entry routes to human review.
var fallbackLibrary = map[models.BreakReason]Advice{
	models.ReasonMissingInCustodian: {
		Severity:       models.SeverityHigh,
		Explanation:    "Custodian is missing this dividend. Confirm whether the position was reported late.",
		Recommendation: "Contact the custodian to confirm whether the position was reported late and request a catch-up booking.",
		Tags:           []string{"break-detection", "investigate-custodian"},
	},
	models.ReasonMissingInPrimary: {
		Severity:       models.SeverityHigh,
		Explanation:    "The internal ledger is missing the custodian event. Check ingestion and booking status.",
		Recommendation: "Review inbound interfaces for the asset and trigger a manual booking if the feed failed.",
		Tags:           []string{"booking", "data-ingestion"},
	},
	models.ReasonCurrencyMismatch: {
		Severity:       models.SeverityMedium,
		Explanation:    "Currency codes disagree. Validate security static data and FX configuration.",
		Recommendation: "Verify the security master currency and FX override rules, then rebalance the amounts.",
		Tags:           []string{"static-data", "fx"},
	},
	models.ReasonAmountDifference: {
		Severity:       models.SeverityMedium,
		Explanation:    "Amounts differ beyond tolerance. Review rate sources and withholding tax setup.",
		Recommendation: "Compare dividend rate sources and withholding settings, adjusting for corporate action fees if required.",
		Tags:           []string{"rates", "withholding"},
	},
	models.ReasonStatusMismatch: {
		Severity:       models.SeverityLow,
		Explanation:    "Settlement statuses diverge. Follow up with operations for the latest instructions.",
		Recommendation: "Request the latest settlement status from the custodian and update the ledger workflow notes.",
		Tags:           []string{"settlement", "workflow"},
	},
}

var defaultFallback = Advice{
	Severity:       models.SeverityMedium,
	Explanation:    "Unexpected break detected. Escalate to the reconciliation lead.",
	Recommendation: "Escalate to the on-call reconciliation lead for triage.",
	Tags:           []string{"unknown"},
}

// FallbackAdvice returns the canned advice for a reason code.
func FallbackAdvice(reason models.BreakReason) Advice {
	advice, ok := fallbackLibrary[reason]
	if !ok {
		advice = defaultFallback
	}
	advice.Confidence = fallbackConfidence
	advice.AutomationMode = models.AutomationHumanReview
	return advice
}
