package parsers

import (
	"io"

	"github.com/username/divrecon/src/models"
)

// Parser normalizes one raw feed into canonical dividend records. Each source
// gets its own implementation because column layouts and status vocabularies
// differ between the internal ledger and the custodian extract.
type Parser interface {
	Source() models.Source
	Parse(file io.Reader) ([]models.CanonicalRecord, error)
}
