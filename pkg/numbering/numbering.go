// Package numbering builds the human-facing document numbers printed on
// orders and payment records.
package numbering

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	OrderPrefix   = "ORD"
	PaymentPrefix = "PAY"

	timestampLayout = "20060102150405"
)

// Timestamped returns prefix + yyyyMMddHHmmss (UTC) + four random digits in
// 1000-9999. Collisions are possible and callers retry on unique violations.
func Timestamped(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%s%04d", prefix, now.UTC().Format(timestampLayout), 1000+rand.IntN(9000))
}
