package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/username/divrecon/src/models"
	"github.com/username/divrecon/src/utils"
)

// Required columns in the internal ledger export.
var requiredColumns = []string{"trade_id", "isin", "pay_date", "account", "amount", "currency", "status"}

// statusVocabulary maps the ledger's booking statuses onto the shared
// vocabulary. Anything outside this table is a normalization fault.
var statusVocabulary = map[string]models.Status{
	"BOOKED":    models.StatusPending,
	"PENDING":   models.StatusPending,
	"SETTLED":   models.StatusPaid,
	"PAID":      models.StatusPaid,
	"FAILED":    models.StatusFailed,
	"CANCELLED": models.StatusCancelled,
}

// LedgerParser implements the parsers.Parser interface for the internal
// ledger dividend-bookings CSV export.
type LedgerParser struct{}

func NewParser() *LedgerParser {
	return &LedgerParser{}
}

func (p *LedgerParser) Source() models.Source {
	return models.SourcePrimary
}

// Parse reads the ledger CSV and converts each row into a CanonicalRecord.
// The first malformed row aborts the parse; reconciliation must see the
// complete feed or nothing.
func (p *LedgerParser) Parse(file io.Reader) ([]models.CanonicalRecord, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ledger parser: failed to read header: %w", err)
	}
	columns, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var records []models.CanonicalRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ledger parser: failed to read row: %w", err)
		}
		line++

		record, err := p.normalizeRow(row, columns, line)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (p *LedgerParser) normalizeRow(row []string, columns map[string]int, line int) (models.CanonicalRecord, error) {
	field := func(name string) string {
		idx := columns[name]
		if idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	for _, name := range []string{"trade_id", "isin", "account", "currency"} {
		if field(name) == "" {
			return models.CanonicalRecord{}, &models.MalformedRecordError{
				Source: models.SourcePrimary, Line: line, Field: name, Reason: "empty value",
			}
		}
	}

	payDate, err := utils.ParseDate(field("pay_date"))
	if err != nil {
		return models.CanonicalRecord{}, &models.MalformedRecordError{
			Source: models.SourcePrimary, Line: line, Field: "pay_date", Value: field("pay_date"), Reason: err.Error(),
		}
	}

	amount, err := utils.ParseAmount(field("amount"))
	if err != nil {
		return models.CanonicalRecord{}, &models.MalformedRecordError{
			Source: models.SourcePrimary, Line: line, Field: "amount", Value: field("amount"), Reason: err.Error(),
		}
	}

	rawStatus := strings.ToUpper(field("status"))
	status, ok := statusVocabulary[rawStatus]
	if !ok {
		return models.CanonicalRecord{}, &models.UnknownStatusError{
			Source: models.SourcePrimary, Line: line, Status: field("status"),
		}
	}

	return models.CanonicalRecord{
		Source:     models.SourcePrimary,
		ExternalID: field("trade_id"),
		ISIN:       field("isin"),
		Account:    field("account"),
		PayDate:    payDate,
		Amount:     amount,
		Currency:   strings.ToUpper(field("currency")),
		Status:     status,
	}, nil
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, &models.MalformedRecordError{
				Source: models.SourcePrimary, Line: 1, Field: name, Reason: "missing column",
			}
		}
	}
	return columns, nil
}
