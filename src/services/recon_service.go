// src/services/recon_service.go
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/username/divrecon/src/advisory"
	"github.com/username/divrecon/src/database"
	"github.com/username/divrecon/src/logger"
	"github.com/username/divrecon/src/models"
	"github.com/username/divrecon/src/parsers"
	"github.com/username/divrecon/src/processors"
)

const (
	ckLatestResult = "res_latest_recon_result"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type reconServiceImpl struct {
	matcher     processors.Matcher
	planner     processors.TaskPlanner
	annotator   *advisory.Annotator
	resultCache *cache.Cache
}

func NewReconService(
	matcher processors.Matcher,
	planner processors.TaskPlanner,
	annotator *advisory.Annotator,
	resultCache *cache.Cache,
) ReconService {
	return &reconServiceImpl{
		matcher:     matcher,
		planner:     planner,
		annotator:   annotator,
		resultCache: resultCache,
	}
}

// Run executes one full pass: normalize both feeds, match, classify,
// annotate, plan. Normalization and matching faults abort the run; advisory
// faults never do, they only degrade annotations to the fallback.
func (s *reconServiceImpl) Run(ctx context.Context, primary io.Reader, custodian io.Reader, tolerance decimal.Decimal) (*ReconResult, error) {
	overallStartTime := time.Now()
	logger.L.Info("Reconciliation run START", "tolerance", tolerance.String())

	primaryRecords, err := parseFeed(models.SourcePrimary, primary)
	if err != nil {
		return nil, err
	}
	custodianRecords, err := parseFeed(models.SourceCustodian, custodian)
	if err != nil {
		return nil, err
	}

	pairs, err := s.matcher.Match(primaryRecords, custodianRecords)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMatchingFailed, err)
	}

	evaluator := processors.NewBreakEvaluator(tolerance)
	var breaks []models.BreakDetail
	for _, pair := range pairs {
		reason := evaluator.Evaluate(pair)
		if reason == models.ReasonNone {
			continue
		}
		annotation := s.annotator.Annotate(ctx, pair, reason)
		breaks = append(breaks, models.BreakDetail{Pair: pair, Reason: reason, Annotation: annotation})
	}

	tasks := s.planner.Plan(breaks)

	result := &ReconResult{
		GeneratedAt:    time.Now().UTC(),
		Tolerance:      tolerance.String(),
		PrimaryCount:   len(primaryRecords),
		CustodianCount: len(custodianRecords),
		Breaks:         breaks,
		Tasks:          tasks,
	}

	if err := s.saveRun(result); err != nil {
		return nil, fmt.Errorf("error persisting reconciliation run: %w", err)
	}
	s.resultCache.Set(ckLatestResult, result, DefaultCacheExpiration)

	logger.L.Info("Reconciliation run END",
		"runID", result.RunID,
		"pairs", len(pairs),
		"breaks", len(breaks),
		"tasks", len(tasks),
		"duration", time.Since(overallStartTime))
	return result, nil
}

// LatestResult returns the most recent completed run, from cache when warm,
// otherwise rebuilt from the audit database.
func (s *reconServiceImpl) LatestResult() (*ReconResult, error) {
	if cached, found := s.resultCache.Get(ckLatestResult); found {
		logger.L.Debug("Cache hit for latest reconciliation result")
		return cached.(*ReconResult), nil
	}
	logger.L.Info("Cache miss for latest reconciliation result, loading from DB")

	result, err := loadLatestRun()
	if err != nil {
		return nil, err
	}
	s.resultCache.Set(ckLatestResult, result, DefaultCacheExpiration)
	return result, nil
}

func parseFeed(source models.Source, file io.Reader) ([]models.CanonicalRecord, error) {
	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}
	records, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}
	return records, nil
}

func (s *reconServiceImpl) saveRun(result *ReconResult) error {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	runRes, err := dbTx.Exec(
		`INSERT INTO recon_runs (created_at, tolerance, primary_count, custodian_count, break_count, task_count) VALUES (?, ?, ?, ?, ?, ?)`,
		result.GeneratedAt.Format(time.RFC3339),
		result.Tolerance,
		result.PrimaryCount,
		result.CustodianCount,
		len(result.Breaks),
		len(result.Tasks),
	)
	if err != nil {
		return fmt.Errorf("error inserting run: %w", err)
	}
	runID, err := runRes.LastInsertId()
	if err != nil {
		return fmt.Errorf("error resolving run id: %w", err)
	}

	breakStmt, err := dbTx.Prepare(`INSERT INTO recon_breaks (run_id, isin, account, pay_date, reason_code, severity, explanation, recommendation, tags, confidence, automation_mode, annotation_source, raw_payload, primary_record, custodian_record) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing break insert statement: %w", err)
	}
	defer breakStmt.Close()

	for _, detail := range result.Breaks {
		tagsJSON, err := json.Marshal(detail.Annotation.Tags)
		if err != nil {
			return fmt.Errorf("error marshaling tags: %w", err)
		}
		primaryJSON, err := marshalRecord(detail.Pair.Primary)
		if err != nil {
			return err
		}
		custodianJSON, err := marshalRecord(detail.Pair.Custodian)
		if err != nil {
			return err
		}
		_, err = breakStmt.Exec(
			runID,
			detail.Key().ISIN,
			detail.Key().Account,
			detail.Key().PayDate,
			string(detail.Reason),
			string(detail.Annotation.Severity),
			detail.Annotation.Explanation,
			detail.Annotation.Recommendation,
			string(tagsJSON),
			detail.Annotation.Confidence,
			string(detail.Annotation.AutomationMode),
			string(detail.Annotation.Source),
			string(detail.Annotation.RawPayload),
			primaryJSON,
			custodianJSON,
		)
		if err != nil {
			return fmt.Errorf("error inserting break (key %s): %w", detail.Key(), err)
		}
	}

	taskStmt, err := dbTx.Prepare(`INSERT INTO agent_tasks (run_id, sequence_number, target_persona, priority, needs_escalation, payload) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing task insert statement: %w", err)
	}
	defer taskStmt.Close()

	for _, task := range result.Tasks {
		payloadJSON, err := json.Marshal(task.Payload)
		if err != nil {
			return fmt.Errorf("error marshaling task payload: %w", err)
		}
		_, err = taskStmt.Exec(runID, task.SequenceNumber, string(task.TargetPersona), task.Priority, task.NeedsEscalation, string(payloadJSON))
		if err != nil {
			return fmt.Errorf("error inserting task %d: %w", task.SequenceNumber, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("error committing reconciliation run: %w", err)
	}
	result.RunID = runID
	return nil
}

func loadLatestRun() (*ReconResult, error) {
	result := &ReconResult{}
	var createdAt string
	err := database.DB.QueryRow(
		`SELECT id, created_at, tolerance, primary_count, custodian_count FROM recon_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&result.RunID, &createdAt, &result.Tolerance, &result.PrimaryCount, &result.CustodianCount)
	if err == sql.ErrNoRows {
		return nil, ErrNoCompletedRun
	}
	if err != nil {
		return nil, fmt.Errorf("error querying latest run: %w", err)
	}
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		result.GeneratedAt = t
	}

	breaks, err := loadBreaks(result.RunID)
	if err != nil {
		return nil, err
	}
	result.Breaks = breaks

	tasks, err := loadTasks(result.RunID)
	if err != nil {
		return nil, err
	}
	result.Tasks = tasks
	return result, nil
}

func loadBreaks(runID int64) ([]models.BreakDetail, error) {
	rows, err := database.DB.Query(
		`SELECT isin, account, pay_date, reason_code, severity, explanation, recommendation, tags, confidence, automation_mode, annotation_source, raw_payload, primary_record, custodian_record FROM recon_breaks WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying breaks for run %d: %w", runID, err)
	}
	defer rows.Close()

	var breaks []models.BreakDetail
	for rows.Next() {
		var (
			detail        models.BreakDetail
			reason        string
			severity      string
			tagsJSON      string
			mode          string
			source        string
			rawPayload    sql.NullString
			primaryJSON   sql.NullString
			custodianJSON sql.NullString
		)
		if err := rows.Scan(
			&detail.Pair.Key.ISIN,
			&detail.Pair.Key.Account,
			&detail.Pair.Key.PayDate,
			&reason,
			&severity,
			&detail.Annotation.Explanation,
			&detail.Annotation.Recommendation,
			&tagsJSON,
			&detail.Annotation.Confidence,
			&mode,
			&source,
			&rawPayload,
			&primaryJSON,
			&custodianJSON,
		); err != nil {
			return nil, fmt.Errorf("error scanning break row for run %d: %w", runID, err)
		}
		detail.Reason = models.BreakReason(reason)
		detail.Annotation.Severity = models.Severity(severity)
		detail.Annotation.AutomationMode = models.AutomationMode(mode)
		detail.Annotation.Source = models.AnnotationSource(source)
		if tagsJSON != "" {
			_ = json.Unmarshal([]byte(tagsJSON), &detail.Annotation.Tags)
		}
		if rawPayload.Valid && rawPayload.String != "" {
			detail.Annotation.RawPayload = json.RawMessage(rawPayload.String)
		}
		if record, err := unmarshalRecord(primaryJSON); err == nil {
			detail.Pair.Primary = record
		}
		if record, err := unmarshalRecord(custodianJSON); err == nil {
			detail.Pair.Custodian = record
		}
		breaks = append(breaks, detail)
	}
	return breaks, rows.Err()
}

func loadTasks(runID int64) ([]models.AgentTask, error) {
	rows, err := database.DB.Query(
		`SELECT sequence_number, target_persona, priority, needs_escalation, payload FROM agent_tasks WHERE run_id = ? ORDER BY sequence_number ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying tasks for run %d: %w", runID, err)
	}
	defer rows.Close()

	var tasks []models.AgentTask
	for rows.Next() {
		var (
			task        models.AgentTask
			persona     string
			payloadJSON string
		)
		if err := rows.Scan(&task.SequenceNumber, &persona, &task.Priority, &task.NeedsEscalation, &payloadJSON); err != nil {
			return nil, fmt.Errorf("error scanning task row for run %d: %w", runID, err)
		}
		task.TargetPersona = models.Persona(persona)
		if err := json.Unmarshal([]byte(payloadJSON), &task.Payload); err != nil {
			return nil, fmt.Errorf("error unmarshaling task payload for run %d: %w", runID, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func marshalRecord(record *models.CanonicalRecord) (string, error) {
	if record == nil {
		return "", nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("error marshaling record: %w", err)
	}
	return string(data), nil
}

func unmarshalRecord(raw sql.NullString) (*models.CanonicalRecord, error) {
	if !raw.Valid || raw.String == "" {
		return nil, sql.ErrNoRows
	}
	var record models.CanonicalRecord
	if err := json.Unmarshal([]byte(raw.String), &record); err != nil {
		return nil, err
	}
	return &record, nil
}
