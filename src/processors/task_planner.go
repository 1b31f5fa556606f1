package processors

import (
	"sort"

	"github.com/username/divrecon/src/models"
)

// personaByReason routes each reason code to the downstream handler class.
// Behavior per reason is data, not dispatch.
var personaByReason = map[models.BreakReason]models.Persona{
	models.ReasonMissingInPrimary:   models.PersonaLedgerIngestion,
	models.ReasonMissingInCustodian: models.PersonaLedgerIngestion,
	models.ReasonCurrencyMismatch:   models.PersonaStaticData,
	models.ReasonAmountDifference:   models.PersonaCashAllocator,
	models.ReasonStatusMismatch:     models.PersonaSettlementChaser,
}

// taskPlannerImpl implements the TaskPlanner interface.
type taskPlannerImpl struct{}

// NewTaskPlanner creates a new instance of TaskPlanner.
func NewTaskPlanner() TaskPlanner {
	return &taskPlannerImpl{}
}

// Plan maps every break to exactly one task and orders the queue by severity
// (HIGH first), then confidence descending, with MatchKey order as the stable
// tie-break. Sequence numbers are assigned 1..N after the final ordering.
// No tasks are merged; the only dedup in the pipeline is the annotation cache.
func (p *taskPlannerImpl) Plan(breaks []models.BreakDetail) []models.AgentTask {
	tasks := make([]models.AgentTask, 0, len(breaks))
	for _, detail := range breaks {
		tasks = append(tasks, models.AgentTask{
			TargetPersona:   personaByReason[detail.Reason],
			Priority:        detail.Annotation.Severity.Rank(),
			NeedsEscalation: detail.Annotation.NeedsEscalation(),
			Payload:         buildPayload(detail),
		})
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Payload.Confidence != b.Payload.Confidence {
			return a.Payload.Confidence > b.Payload.Confidence
		}
		return a.Payload.Key.Less(b.Payload.Key)
	})

	for i := range tasks {
		tasks[i].SequenceNumber = i + 1
	}
	return tasks
}

func buildPayload(detail models.BreakDetail) models.TaskPayload {
	payload := models.TaskPayload{
		Key:            detail.Key(),
		Reason:         detail.Reason,
		Severity:       detail.Annotation.Severity,
		Explanation:    detail.Annotation.Explanation,
		Recommendation: detail.Annotation.Recommendation,
		Tags:           detail.Annotation.Tags,
		Confidence:     detail.Annotation.Confidence,
	}
	if detail.Pair.Primary != nil {
		payload.PrimaryAmount = detail.Pair.Primary.Amount.StringFixed(2)
	}
	if detail.Pair.Custodian != nil {
		payload.CustodianAmount = detail.Pair.Custodian.Amount.StringFixed(2)
	}
	return payload
}
