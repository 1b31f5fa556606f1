package custodian

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/username/divrecon/src/models"
	"github.com/username/divrecon/src/utils"
)

// Required columns in the custodian payment extract. The custodian uses its
// own header names; we normalize them here rather than asking upstream to
// rename anything.
var requiredColumns = []string{"event_ref", "isin", "payment_date", "account", "net_amount", "ccy", "status"}

// statusVocabulary maps the custodian's payment statuses onto the shared
// vocabulary. Anything outside this table is a normalization fault.
var statusVocabulary = map[string]models.Status{
	"EXPECTED": models.StatusPending,
	"PENDING":  models.StatusPending,
	"CREDITED": models.StatusPaid,
	"PAID":     models.StatusPaid,
	"SETTLED":  models.StatusPaid,
	"REVERSED": models.StatusCancelled,
	"FAILED":   models.StatusFailed,
}

// CustodianParser implements the parsers.Parser interface for the custodian
// dividend-payments CSV extract.
type CustodianParser struct{}

func NewParser() *CustodianParser {
	return &CustodianParser{}
}

func (p *CustodianParser) Source() models.Source {
	return models.SourceCustodian
}

// Parse reads the custodian CSV and converts each row into a CanonicalRecord.
func (p *CustodianParser) Parse(file io.Reader) ([]models.CanonicalRecord, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("custodian parser: failed to read header: %w", err)
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
			return nil, fmt.Errorf("custodian parser: failed to read row: %w", err)
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

func (p *CustodianParser) normalizeRow(row []string, columns map[string]int, line int) (models.CanonicalRecord, error) {
	field := func(name string) string {
		idx := columns[name]
		if idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	for _, name := range []string{"event_ref", "isin", "account", "ccy"} {
		if field(name) == "" {
			return models.CanonicalRecord{}, &models.MalformedRecordError{
				Source: models.SourceCustodian, Line: line, Field: name, Reason: "empty value",
			}
		}
	}

	payDate, err := utils.ParseDate(field("payment_date"))
	if err != nil {
		return models.CanonicalRecord{}, &models.MalformedRecordError{
			Source: models.SourceCustodian, Line: line, Field: "payment_date", Value: field("payment_date"), Reason: err.Error(),
		}
	}

	amount, err := utils.ParseAmount(field("net_amount"))
	if err != nil {
		return models.CanonicalRecord{}, &models.MalformedRecordError{
			Source: models.SourceCustodian, Line: line, Field: "net_amount", Value: field("net_amount"), Reason: err.Error(),
		}
	}

	rawStatus := strings.ToUpper(field("status"))
	status, ok := statusVocabulary[rawStatus]
	if !ok {
		return models.CanonicalRecord{}, &models.UnknownStatusError{
			Source: models.SourceCustodian, Line: line, Status: field("status"),
		}
	}

	return models.CanonicalRecord{
		Source:     models.SourceCustodian,
		ExternalID: field("event_ref"),
		ISIN:       field("isin"),
		Account:    field("account"),
		PayDate:    payDate,
		Amount:     amount,
		Currency:   strings.ToUpper(field("ccy")),
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
				Source: models.SourceCustodian, Line: 1, Field: name, Reason: "missing column",
			}
		}
	}
	return columns, nil
}
