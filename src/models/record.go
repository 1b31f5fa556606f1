// src/models/record.go
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which feed a record came from.
type Source string

const (
	SourcePrimary   Source = "PRIMARY"
	SourceCustodian Source = "CUSTODIAN"
)

// Status is the shared vocabulary both feeds are normalized into. Each parser
// owns a table mapping its source-specific statuses onto these values; a
// status outside the table is a normalization error, never passed through.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// CanonicalRecord is the unified representation of one dividend entry from one
// source. The parser populates every field from a single raw row; downstream
// stages only ever read it.
type CanonicalRecord struct {
	Source     Source          `json:"source"`
	ExternalID string          `json:"external_id"`
	ISIN       string          `json:"isin"`
	Account    string          `json:"account"`
	PayDate    time.Time       `json:"pay_date"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     Status          `json:"status"`
}

// MatchKey is the composite identity (ISIN, account, pay date) used to
// correlate records across the two feeds. PayDate is kept as an ISO date
// string so the key is comparable and sorts the same way it matches.
type MatchKey struct {
	ISIN    string `json:"isin"`
	Account string `json:"account"`
	PayDate string `json:"pay_date"`
}

// Key derives the MatchKey for this record.
func (r CanonicalRecord) Key() MatchKey {
	return MatchKey{
		ISIN:    r.ISIN,
		Account: r.Account,
		PayDate: r.PayDate.Format("2006-01-02"),
	}
}

// Less orders keys by ISIN, then account, then pay date.
func (k MatchKey) Less(other MatchKey) bool {
	if k.ISIN != other.ISIN {
		return k.ISIN < other.ISIN
	}
	if k.Account != other.Account {
		return k.Account < other.Account
	}
	return k.PayDate < other.PayDate
}

func (k MatchKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ISIN, k.Account, k.PayDate)
}

// MatchedPair holds at most one record per source for one MatchKey.
// At least one side is always present.
type MatchedPair struct {
	Key       MatchKey         `json:"key"`
	Primary   *CanonicalRecord `json:"primary"`
	Custodian *CanonicalRecord `json:"custodian"`
}
