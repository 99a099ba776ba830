package order

import (
	"fmt"
	"time"
)

// DefaultNumberPrefix starts every human-facing order number.
const DefaultNumberPrefix = "VC"

// orderNumberSpace bounds the random suffix to five digits.
const orderNumberSpace = 100000

// formatOrderNumber builds prefix + YYYYMMDD (UTC) + a zero-padded five digit
// suffix. The result is cosmetic and not guaranteed unique.
func formatOrderNumber(prefix string, now time.Time, suffix int) string {
	return fmt.Sprintf("%s%s%05d", prefix, now.UTC().Format("20060102"), suffix%orderNumberSpace)
}
