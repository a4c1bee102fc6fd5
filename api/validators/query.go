package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryMinutes reads a whole-minute window such as window_minutes and
// returns it as a duration bounded by [1, max] minutes.
func ParseQueryMinutes(r *http.Request, key string, fallback time.Duration, max int) (time.Duration, error) {
	defaultMinutes := int(fallback / time.Minute)
	if defaultMinutes < 1 {
		defaultMinutes = 1
	}
	if defaultMinutes > max {
		defaultMinutes = max
	}
	minutes, err := ParseQueryInt(r, key, defaultMinutes, 1, max)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}
