package numbering

import (
	"regexp"
	"testing"
	"time"
)

func TestTimestampedShape(t *testing.T) {
	now := time.Date(2026, 3, 1, 17, 4, 5, 0, time.FixedZone("CST", 8*3600))
	pattern := regexp.MustCompile(`^ORD20260301090405[1-9][0-9]{3}$`)
	for i := 0; i < 50; i++ {
		got := Timestamped(OrderPrefix, now)
		if !pattern.MatchString(got) {
			t.Fatalf("unexpected order number %q", got)
		}
	}
}

func TestTimestampedPaymentPrefix(t *testing.T) {
	got := Timestamped(PaymentPrefix, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if len(got) != len("PAY")+14+4 || got[:17] != "PAY20260102030405" {
		t.Fatalf("unexpected payment number %q", got)
	}
}
