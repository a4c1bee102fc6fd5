package contracts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	contractNoPrefix   = "C"
	contractSeqDigits  = 4
	contractSeqMaximum = 9999
)

// contractNumberPrefix returns C + yyyyMMdd for the day of now.
func contractNumberPrefix(now time.Time) string {
	return contractNoPrefix + now.Format("20060102")
}

// nextContractNumber increments the daily sequence of latest. An empty latest
// starts the day at 0001.
func nextContractNumber(prefix, latest string) (string, error) {
	seq := 1
	if latest != "" {
		suffix := strings.TrimPrefix(latest, prefix)
		if suffix == latest || len(suffix) != contractSeqDigits {
			return "", fmt.Errorf("contract number %q does not match prefix %s", latest, prefix)
		}
		current, err := strconv.Atoi(suffix)
		if err != nil {
			return "", fmt.Errorf("contract number %q: %w", latest, err)
		}
		seq = current + 1
	}
	if seq > contractSeqMaximum {
		return "", fmt.Errorf("daily contract sequence exhausted for %s", prefix)
	}
	return fmt.Sprintf("%s%0*d", prefix, contractSeqDigits, seq), nil
}
