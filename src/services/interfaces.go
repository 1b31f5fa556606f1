package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/divrecon/src/models"
)

var (
	ErrParsingFailed  = errors.New("feed parsing failed")
	ErrMatchingFailed = errors.New("record matching failed")
	ErrNoCompletedRun = errors.New("no completed reconciliation run")
)

// ReconResult holds everything one completed run produced. A run either
// completes with the full break and task lists (possibly fallback-annotated)
// or fails outright; there is no partial success state.
type ReconResult struct {
	RunID          int64               `json:"run_id"`
	GeneratedAt    time.Time           `json:"generated_at"`
	Tolerance      string              `json:"tolerance"`
	PrimaryCount   int                 `json:"primary_count"`
	CustodianCount int                 `json:"custodian_count"`
	Breaks         []models.BreakDetail `json:"breaks"`
	Tasks          []models.AgentTask   `json:"tasks"`
}

// ReconService runs the reconciliation pipeline over one pair of feeds.
type ReconService interface {
	Run(ctx context.Context, primary io.Reader, custodian io.Reader, tolerance decimal.Decimal) (*ReconResult, error)
	LatestResult() (*ReconResult, error)
}
