package processors

import (
	"github.com/shopspring/decimal"

	"github.com/username/divrecon/src/models"
)

// breakEvaluatorImpl implements the BreakEvaluator interface.
type breakEvaluatorImpl struct {
	tolerance decimal.Decimal
}

// NewBreakEvaluator creates a BreakEvaluator with the given absolute amount
// tolerance. A negative tolerance is treated as zero (exact match required).
func NewBreakEvaluator(tolerance decimal.Decimal) BreakEvaluator {
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	return &breakEvaluatorImpl{tolerance: tolerance}
}

// Evaluate classifies a pair with the first matching check. Missing-side
// checks come first: a missing counterpart leaves nothing to compare, so it
// pre-empts every attribute check. Currency is checked before amount because
// comparing amounts across different currencies is meaningless without
// conversion, which is not performed here. An amount difference of exactly
// the tolerance is not a break.
func (e *breakEvaluatorImpl) Evaluate(pair models.MatchedPair) models.BreakReason {
	switch {
	case pair.Primary == nil && pair.Custodian != nil:
		return models.ReasonMissingInPrimary
	case pair.Custodian == nil && pair.Primary != nil:
		return models.ReasonMissingInCustodian
	case pair.Primary == nil && pair.Custodian == nil:
		return models.ReasonNone
	}

	if pair.Primary.Currency != pair.Custodian.Currency {
		return models.ReasonCurrencyMismatch
	}
	diff := pair.Primary.Amount.Sub(pair.Custodian.Amount).Abs()
	if diff.GreaterThan(e.tolerance) {
		return models.ReasonAmountDifference
	}
	if pair.Primary.Status != pair.Custodian.Status {
		return models.ReasonStatusMismatch
	}
	return models.ReasonNone
}
