package advisory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/divrecon/src/models"
)

// stubAdvisor counts calls and replays a fixed outcome.
type stubAdvisor struct {
	available bool
	advice    Advice
	err       error
	calls     int
}

func (s *stubAdvisor) Available() bool { return s.available }

func (s *stubAdvisor) Annotate(context.Context, Request) (Advice, error) {
	s.calls++
	if s.err != nil {
		return Advice{}, s.err
	}
	return s.advice, nil
}

func newStore() *cache.Cache {
	return cache.New(time.Minute, time.Minute)
}

func testRecord(source models.Source, amount, currency string, status models.Status) *models.CanonicalRecord {
	payDate, _ := time.Parse("2006-01-02", "2024-03-14")
	return &models.CanonicalRecord{
		Source:     source,
		ExternalID: "X-1",
		ISIN:       "NO0001",
		Account:    "12345",
		PayDate:    payDate,
		Amount:     decimal.RequireFromString(amount),
		Currency:   currency,
		Status:     status,
	}
}

func testPair(primary, custodian *models.CanonicalRecord) models.MatchedPair {
	pair := models.MatchedPair{Primary: primary, Custodian: custodian}
	if primary != nil {
		pair.Key = primary.Key()
	} else if custodian != nil {
		pair.Key = custodian.Key()
	}
	return pair
}

func validAdvice() Advice {
	return Advice{
		Severity:       models.SeverityMedium,
		Explanation:    "Amounts differ.",
		Recommendation: "Check rate sources.",
		Tags:           []string{"rates"},
		Confidence:     0.85,
		AutomationMode: models.AutomationAssisted,
		Raw:            []byte(`{"severity":"MEDIUM"}`),
	}
}

func TestAnnotatorUsesAdvisoryResult(t *testing.T) {
	advisor := &stubAdvisor{available: true, advice: validAdvice()}
	annotator := NewAnnotator(advisor, newStore())

	pair := testPair(
		testRecord(models.SourcePrimary, "100.00", "NOK", models.StatusPaid),
		testRecord(models.SourceCustodian, "90.00", "NOK", models.StatusPaid),
	)
	annotation := annotator.Annotate(context.Background(), pair, models.ReasonAmountDifference)

	assert.Equal(t, 1, advisor.calls)
	assert.Equal(t, models.AnnotationSourceAdvisory, annotation.Source)
	assert.Equal(t, models.SeverityMedium, annotation.Severity)
	assert.Equal(t, 0.85, annotation.Confidence)
	assert.NotEmpty(t, annotation.RawPayload, "the raw payload is retained for audit")
}

func TestAnnotatorDisabledAdvisorNeverCalled(t *testing.T) {
	advisor := &stubAdvisor{available: false}
	annotator := NewAnnotator(advisor, newStore())

	pair := testPair(testRecord(models.SourcePrimary, "100.00", "NOK", models.StatusPaid), nil)
	annotation := annotator.Annotate(context.Background(), pair, models.ReasonMissingInCustodian)

	assert.Equal(t, 0, advisor.calls)
	assert.Equal(t, models.AnnotationSourceFallback, annotation.Source)
	assert.Equal(t, models.SeverityHigh, annotation.Severity)
	assert.Equal(t, models.AutomationHumanReview, annotation.AutomationMode)
}

func TestAnnotatorAdvisoryErrorDegradesToFallback(t *testing.T) {
	advisor := &stubAdvisor{available: true, err: fmt.Errorf("request timed out")}
	annotator := NewAnnotator(advisor, newStore())

	pair := testPair(
		testRecord(models.SourcePrimary, "100.00", "NOK", models.StatusPaid),
		testRecord(models.SourceCustodian, "100.00", "EUR", models.StatusPaid),
	)
	annotation := annotator.Annotate(context.Background(), pair, models.ReasonCurrencyMismatch)

	assert.Equal(t, 1, advisor.calls, "exactly one attempt per break, no in-process retry")
	assert.Equal(t, models.AnnotationSourceFallback, annotation.Source)
	assert.Equal(t, models.SeverityMedium, annotation.Severity)
	assert.Equal(t, 0.3, annotation.Confidence)
}

func TestAnnotatorCachesByReasonAndShape(t *testing.T) {
	advisor := &stubAdvisor{available: true, advice: validAdvice()}
	annotator := NewAnnotator(advisor, newStore())

	first := testPair(
		testRecord(models.SourcePrimary, "100.00", "NOK", models.StatusPaid),
		testRecord(models.SourceCustodian, "90.00", "NOK", models.StatusPaid),
	)
	// Different key, same reason, same 10.00 difference.
	second := testPair(
		testRecord(models.SourcePrimary, "250.00", "NOK", models.StatusPaid),
		testRecord(models.SourceCustodian, "240.00", "NOK", models.StatusPaid),
	)
	second.Primary.ISIN = "US5949"
	second.Custodian.ISIN = "US5949"
	second.Key = second.Primary.Key()

	firstAnnotation := annotator.Annotate(context.Background(), first, models.ReasonAmountDifference)
	secondAnnotation := annotator.Annotate(context.Background(), second, models.ReasonAmountDifference)

	assert.Equal(t, 1, advisor.calls, "the second break with the same shape reuses the cached annotation")
	assert.Equal(t, models.AnnotationSourceAdvisory, firstAnnotation.Source)
	assert.Equal(t, models.AnnotationSourceCache, secondAnnotation.Source)
	assert.Equal(t, firstAnnotation.Severity, secondAnnotation.Severity)
	assert.Equal(t, firstAnnotation.Explanation, secondAnnotation.Explanation)
}

func TestAnnotatorDifferentShapesCallSeparately(t *testing.T) {
	advisor := &stubAdvisor{available: true, advice: validAdvice()}
	annotator := NewAnnotator(advisor, newStore())

	first := testPair(
		testRecord(models.SourcePrimary, "100.00", "NOK", models.StatusPaid),
		testRecord(models.SourceCustodian, "90.00", "NOK", models.StatusPaid),
	)
	second := testPair(
		testRecord(models.SourcePrimary, "100.00", "NOK", models.StatusPaid),
		testRecord(models.SourceCustodian, "95.00", "NOK", models.StatusPaid),
	)

	annotator.Annotate(context.Background(), first, models.ReasonAmountDifference)
	annotator.Annotate(context.Background(), second, models.ReasonAmountDifference)

	assert.Equal(t, 2, advisor.calls, "a different difference is a different shape")
}

func TestAnnotatorFallbackIsNotCached(t *testing.T) {
	advisor := &stubAdvisor{available: true, err: fmt.Errorf("boom")}
	annotator := NewAnnotator(advisor, newStore())

	pair := testPair(
		testRecord(models.SourcePrimary, "100.00", "NOK", models.StatusPaid),
		testRecord(models.SourceCustodian, "90.00", "NOK", models.StatusPaid),
	)

	first := annotator.Annotate(context.Background(), pair, models.ReasonAmountDifference)
	assert.Equal(t, models.AnnotationSourceFallback, first.Source)

	// Advisor recovers; the same shape must get a fresh attempt, not the
	// earlier fallback replayed from cache.
	advisor.err = nil
	advisor.advice = validAdvice()
	second := annotator.Annotate(context.Background(), pair, models.ReasonAmountDifference)

	assert.Equal(t, 2, advisor.calls)
	assert.Equal(t, models.AnnotationSourceAdvisory, second.Source)
}

func TestAnnotatorTotality(t *testing.T) {
	advisor := &stubAdvisor{available: true, err: fmt.Errorf("boom")}
	annotator := NewAnnotator(advisor, newStore())

	reasons := []models.BreakReason{
		models.ReasonMissingInPrimary,
		models.ReasonMissingInCustodian,
		models.ReasonCurrencyMismatch,
		models.ReasonAmountDifference,
		models.ReasonStatusMismatch,
	}
	for _, reason := range reasons {
		pair := testPair(
			testRecord(models.SourcePrimary, "100.00", "NOK", models.StatusPaid),
			testRecord(models.SourceCustodian, "90.00", "EUR", models.StatusFailed),
		)
		annotation := annotator.Annotate(context.Background(), pair, reason)
		assert.NotEmpty(t, annotation.Severity, "reason %s must always yield an annotation", reason)
		assert.NotEmpty(t, annotation.Explanation, "reason %s must always yield an explanation", reason)
	}
}

func TestParseAdvice(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{
			name:    "valid payload",
			payload: `{"severity":"MEDIUM","explanation":"e","recommendation":"r","tags":["a","b"],"confidence":0.7,"automation_mode":"ASSISTED"}`,
		},
		{
			name:    "hyphenated automation mode is normalized",
			payload: `{"severity":"low","explanation":"e","recommendation":"r","confidence":0.7,"automation_mode":"human-review"}`,
		},
		{
			name:    "not JSON",
			payload: `severity: HIGH`,
			wantErr: "not valid JSON",
		},
		{
			name:    "invalid severity",
			payload: `{"severity":"CRITICAL","confidence":0.7,"automation_mode":"ASSISTED"}`,
			wantErr: "invalid severity",
		},
		{
			name:    "invalid automation mode",
			payload: `{"severity":"HIGH","confidence":0.7,"automation_mode":"YOLO"}`,
			wantErr: "invalid automation_mode",
		},
		{
			name:    "missing confidence",
			payload: `{"severity":"HIGH","automation_mode":"ASSISTED"}`,
			wantErr: "confidence",
		},
		{
			name:    "confidence as string",
			payload: `{"severity":"HIGH","confidence":"0.7","automation_mode":"ASSISTED"}`,
			wantErr: "confidence",
		},
		{
			name:    "confidence above one",
			payload: `{"severity":"HIGH","confidence":1.5,"automation_mode":"ASSISTED"}`,
			wantErr: "outside [0,1]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			advice, err := ParseAdvice([]byte(tc.payload))
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, advice.Severity)
			assert.NotEmpty(t, advice.AutomationMode)
			assert.Equal(t, string(advice.Raw), tc.payload)
		})
	}
}

func TestParseAdviceNormalizesMode(t *testing.T) {
	advice, err := ParseAdvice([]byte(`{"severity":"low","confidence":0.2,"automation_mode":"human-review"}`))
	require.NoError(t, err)
	assert.Equal(t, models.SeverityLow, advice.Severity)
	assert.Equal(t, models.AutomationHumanReview, advice.AutomationMode)
}

func TestFallbackAdviceCoversEveryReason(t *testing.T) {
	reasons := []models.BreakReason{
		models.ReasonMissingInPrimary,
		models.ReasonMissingInCustodian,
		models.ReasonCurrencyMismatch,
		models.ReasonAmountDifference,
		models.ReasonStatusMismatch,
		models.BreakReason("SOMETHING_NEW"),
	}
	for _, reason := range reasons {
		advice := FallbackAdvice(reason)
		assert.NotEmpty(t, advice.Severity, "reason %s", reason)
		assert.NotEmpty(t, advice.Explanation, "reason %s", reason)
		assert.NotEmpty(t, advice.Recommendation, "reason %s", reason)
		assert.Equal(t, 0.3, advice.Confidence)
		assert.Equal(t, models.AutomationHumanReview, advice.AutomationMode)
	}
}

func TestFallbackSeverityAssignments(t *testing.T) {
	assert.Equal(t, models.SeverityHigh, FallbackAdvice(models.ReasonMissingInPrimary).Severity)
	assert.Equal(t, models.SeverityHigh, FallbackAdvice(models.ReasonMissingInCustodian).Severity)
	assert.Equal(t, models.SeverityMedium, FallbackAdvice(models.ReasonCurrencyMismatch).Severity)
	assert.Equal(t, models.SeverityMedium, FallbackAdvice(models.ReasonAmountDifference).Severity)
	assert.Equal(t, models.SeverityLow, FallbackAdvice(models.ReasonStatusMismatch).Severity)
}
