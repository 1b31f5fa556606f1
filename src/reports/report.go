// Package reports renders a completed reconciliation result into tabular,
// machine-readable and narrative artifacts. It consumes only the ordered
// break and task lists; nothing here reaches back into the pipeline.
package reports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/username/divrecon/src/models"
	"github.com/username/divrecon/src/services"
)

var csvHeader = []string{
	"isin", "account", "pay_date", "primary_amount", "custodian_amount",
	"reason_code", "severity", "explanation", "recommendation", "tags",
	"confidence", "automation_mode", "annotation_source",
}

// WriteCSV writes one row per break in pipeline order.
func WriteCSV(path string, breaks []models.BreakDetail) error {
	file, err := createFile(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}
	for _, detail := range breaks {
		row := []string{
			detail.Key().ISIN,
			detail.Key().Account,
			detail.Key().PayDate,
			amountOrEmpty(detail.Pair.Primary),
			amountOrEmpty(detail.Pair.Custodian),
			string(detail.Reason),
			string(detail.Annotation.Severity),
			detail.Annotation.Explanation,
			detail.Annotation.Recommendation,
			strings.Join(detail.Annotation.Tags, "; "),
			fmt.Sprintf("%.2f", detail.Annotation.Confidence),
			string(detail.Annotation.AutomationMode),
			string(detail.Annotation.Source),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("error writing CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the full result, raw advisory payloads included.
func WriteJSON(path string, result *services.ReconResult) error {
	file, err := createFile(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// WriteMarkdown writes the narrative summary.
func WriteMarkdown(path string, content string) error {
	file, err := createFile(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(content)
	return err
}

// MarkdownSummary renders the run overview, reason and severity counts, and
// the detailed break table.
func MarkdownSummary(result *services.ReconResult) string {
	reasonCounts := make(map[string]int)
	severityCounts := make(map[string]int)
	escalations := 0
	for _, detail := range result.Breaks {
		reasonCounts[string(detail.Reason)]++
		severityCounts[string(detail.Annotation.Severity)]++
		if detail.Annotation.NeedsEscalation() {
			escalations++
		}
	}

	var b strings.Builder
	b.WriteString("# Dividend Reconciliation Report\n\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", result.GeneratedAt.UTC().Format(time.RFC3339)))
	b.WriteString("## Overview\n\n")
	b.WriteString(fmt.Sprintf("- Ledger records processed: **%d**\n", result.PrimaryCount))
	b.WriteString(fmt.Sprintf("- Custodian records processed: **%d**\n", result.CustodianCount))
	b.WriteString(fmt.Sprintf("- Breaks detected: **%d**\n", len(result.Breaks)))
	if len(result.Breaks) > 0 {
		b.WriteString(fmt.Sprintf("- Auto-resolution candidates: **%d**\n", len(result.Breaks)-escalations))
		b.WriteString(fmt.Sprintf("- Requires human escalation: **%d**\n", escalations))
	}
	b.WriteString(fmt.Sprintf("- Planned agent tasks: **%d**\n", len(result.Tasks)))
	b.WriteString("\n")

	writeCountSection(&b, "Breaks by reason code", reasonCounts)
	writeCountSection(&b, "Severity distribution", severityCounts)

	if len(result.Breaks) > 0 {
		b.WriteString("## Detailed explanations\n\n")
		b.WriteString("| ISIN | Account | Pay date | Reason | Severity | Explanation | Recommendation | Source |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- | --- |\n")
		for _, detail := range result.Breaks {
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s |\n",
				detail.Key().ISIN,
				detail.Key().Account,
				detail.Key().PayDate,
				detail.Reason,
				detail.Annotation.Severity,
				escapePipes(detail.Annotation.Explanation),
				escapePipes(detail.Annotation.Recommendation),
				detail.Annotation.Source,
			))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No breaks detected. All deterministic checks passed.\n")
	}

	if len(result.Tasks) > 0 {
		b.WriteString("## Agent task queue\n\n")
		b.WriteString("| # | Persona | Reason | Severity | Escalation |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, task := range result.Tasks {
			escalation := "No"
			if task.NeedsEscalation {
				escalation = "Yes"
			}
			b.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				task.SequenceNumber, task.TargetPersona, task.Payload.Reason, task.Payload.Severity, escalation))
		}
	}
	return b.String()
}

// WriteTaskPlan writes the ordered agent task queue as JSON.
func WriteTaskPlan(path string, tasks []models.AgentTask) error {
	file, err := createFile(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if tasks == nil {
		tasks = []models.AgentTask{}
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(tasks)
}

func writeCountSection(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	b.WriteString("## " + title + "\n\n")
	for _, key := range keys {
		b.WriteString(fmt.Sprintf("- %s: %d\n", key, counts[key]))
	}
	b.WriteString("\n")
}

func amountOrEmpty(record *models.CanonicalRecord) string {
	if record == nil {
		return ""
	}
	return record.Amount.StringFixed(2)
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating %s: %w", path, err)
	}
	return file, nil
}
