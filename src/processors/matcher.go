package processors

import (
	"sort"

	"github.com/username/divrecon/src/models"
)

// matcherImpl implements the Matcher interface.
type matcherImpl struct{}

// NewMatcher creates a new instance of Matcher.
func NewMatcher() Matcher {
	return &matcherImpl{}
}

type bucket struct {
	primary   *models.CanonicalRecord
	custodian *models.CanonicalRecord
}

// Match buckets every record by its MatchKey and materializes one pair per
// non-empty bucket. Every input record lands in exactly one pair. Two records
// from the same source sharing a key are a data-quality fault in that feed
// and abort the run. Pairs come out in MatchKey order so downstream artifacts
// are reproducible across runs with identical input.
func (m *matcherImpl) Match(primary, custodian []models.CanonicalRecord) ([]models.MatchedPair, error) {
	buckets := make(map[models.MatchKey]*bucket, len(primary)+len(custodian))

	for i := range primary {
		record := &primary[i]
		key := record.Key()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		if b.primary != nil {
			return nil, &models.DuplicateRecordError{Key: key, Source: models.SourcePrimary}
		}
		b.primary = record
	}

	for i := range custodian {
		record := &custodian[i]
		key := record.Key()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		if b.custodian != nil {
			return nil, &models.DuplicateRecordError{Key: key, Source: models.SourceCustodian}
		}
		b.custodian = record
	}

	keys := make([]models.MatchKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	pairs := make([]models.MatchedPair, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		pairs = append(pairs, models.MatchedPair{Key: key, Primary: b.primary, Custodian: b.custodian})
	}
	return pairs, nil
}
