package utils

import (
	"fmt"
	"strings"
	"time"
)

// Date formats accepted by the feeds, tried in order.
var dateFormats = []string{"2006-01-02", "02/01/2006"}

// ParseDate parses a pay date in any of the accepted feed formats.
func ParseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date format: %q", raw)
}
