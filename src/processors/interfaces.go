package processors

import "github.com/username/divrecon/src/models"

// Matcher groups canonical records from both feeds into matched pairs.
type Matcher interface {
	Match(primary, custodian []models.CanonicalRecord) ([]models.MatchedPair, error)
}

// BreakEvaluator classifies one matched pair with at most one reason code.
type BreakEvaluator interface {
	Evaluate(pair models.MatchedPair) models.BreakReason
}

// TaskPlanner converts annotated breaks into the ordered agent task queue.
type TaskPlanner interface {
	Plan(breaks []models.BreakDetail) []models.AgentTask
}
