// src/parsers/factory.go
package parsers

import (
	"fmt"

	"github.com/username/divrecon/src/models"
	"github.com/username/divrecon/src/parsers/custodian"
	"github.com/username/divrecon/src/parsers/ledger"
)

func GetParser(source models.Source) (Parser, error) {
	switch source {
	case models.SourcePrimary:
		return ledger.NewParser(), nil
	case models.SourceCustodian:
		return custodian.NewParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
