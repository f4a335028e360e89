package stores

import (
	"time"

	"github.com/oarkflow/date"
)

// parseFlexibleTime handles the assorted timestamp representations SQL
// drivers hand back (RFC3339, sqlite datetime strings, ...).
func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}
