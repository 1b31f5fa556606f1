// src/models/errors.go
package models

import "fmt"

// MalformedRecordError reports a raw row that could not be normalized. Field
// names the missing or invalid column. These abort the whole run: a silently
// dropped row would corrupt audit completeness.
type MalformedRecordError struct {
	Source Source
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s feed line %d: malformed record, field %q: %s", e.Source, e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s feed line %d: malformed record, field %q value %q: %s", e.Source, e.Line, e.Field, e.Value, e.Reason)
}

// UnknownStatusError reports a status absent from the source's vocabulary
// table. Unmapped statuses are never passed through.
type UnknownStatusError struct {
	Source Source
	Line   int
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("%s feed line %d: unknown status %q", e.Source, e.Line, e.Status)
}

// DuplicateRecordError reports two records from the same source sharing one
// MatchKey. This is a data-quality fault in the input feed and aborts the run.
type DuplicateRecordError struct {
	Key    MatchKey
	Source Source
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("duplicate %s record for key %s", e.Source, e.Key)
}
