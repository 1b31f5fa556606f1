package advisory

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/username/divrecon/src/logger"
	"github.com/username/divrecon/src/models"
)

// Annotator produces a BreakAnnotation for every break. It consults the
// annotation store first, then makes at most one bounded advisory call, and
// otherwise falls back to the canned library. The store is injected so the
// caller decides its lifetime (one run, or longer for cross-run reuse).
type Annotator struct {
	advisor Advisor
	store   *cache.Cache
}

func NewAnnotator(advisor Advisor, store *cache.Cache) *Annotator {
	return &Annotator{advisor: advisor, store: store}
}

// Annotate never fails: any advisory problem degrades to the fallback, so no
// break ever travels downstream unannotated.
func (a *Annotator) Annotate(ctx context.Context, pair models.MatchedPair, reason models.BreakReason) models.BreakAnnotation {
	key := cacheKey(reason, pair)

	if cached, found := a.store.Get(key); found {
		annotation := cached.(models.BreakAnnotation)
		annotation.Source = models.AnnotationSourceCache
		return annotation
	}

	if !a.advisor.Available() {
		return a.fallback(reason)
	}

	advice, err := a.advisor.Annotate(ctx, NewRequest(reason, pair))
	if err != nil {
		if logger.L != nil {
			logger.L.Warn("Advisory annotation failed, using fallback", "key", pair.Key.String(), "reason", reason, "error", err)
		}
		return a.fallback(reason)
	}

	annotation := toAnnotation(advice, models.AnnotationSourceAdvisory)
	a.store.Set(key, annotation, cache.DefaultExpiration)
	return annotation
}

// fallback annotations are deliberately not cached so a later successful
// advisory call for the same pattern can still upgrade the stored entry.
func (a *Annotator) fallback(reason models.BreakReason) models.BreakAnnotation {
	return toAnnotation(FallbackAdvice(reason), models.AnnotationSourceFallback)
}

// cacheKey folds a break down to (reason, normalized discrepancy shape): two
// breaks with the same reason and the same effective difference share one
// advisory answer, bounding repeated calls for recurring patterns.
func cacheKey(reason models.BreakReason, pair models.MatchedPair) string {
	var shape string
	switch reason {
	case models.ReasonCurrencyMismatch:
		shape = pair.Primary.Currency + "|" + pair.Custodian.Currency
	case models.ReasonAmountDifference:
		shape = pair.Primary.Amount.Sub(pair.Custodian.Amount).StringFixed(2)
	case models.ReasonStatusMismatch:
		shape = string(pair.Primary.Status) + "|" + string(pair.Custodian.Status)
	}
	return fmt.Sprintf("ann_%s_%s", reason, shape)
}

func toAnnotation(advice Advice, source models.AnnotationSource) models.BreakAnnotation {
	return models.BreakAnnotation{
		Severity:       advice.Severity,
		Explanation:    advice.Explanation,
		Recommendation: advice.Recommendation,
		Tags:           advice.Tags,
		Confidence:     advice.Confidence,
		AutomationMode: advice.AutomationMode,
		Source:         source,
		RawPayload:     advice.Raw,
	}
}
