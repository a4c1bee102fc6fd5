package activity

import (
	"net/http"
	"sort"
	"time"

	"github.com/agritrade/agritrade-backend/api/responses"
	"github.com/agritrade/agritrade-backend/api/validators"
	"github.com/agritrade/agritrade-backend/pkg/logger"
)

const maxWindowMinutes = 24 * 60

type regionCounter interface {
	Counts(window time.Duration) map[string]int
}

type regionCount struct {
	Region string `json:"region"`
	Orders int    `json:"orders"`
}

type regionsResponse struct {
	WindowMinutes int           `json:"window_minutes"`
	Regions       []regionCount `json:"regions"`
}

// Regions reports order activity per origin region within window_minutes.
func Regions(tracker regionCounter, defaultWindow time.Duration, logg *logger.Logger) http.HandlerFunc {
	if defaultWindow <= 0 {
		defaultWindow = time.Hour
	}
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := validators.ParseQueryMinutes(r, "window_minutes", defaultWindow, maxWindowMinutes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		counts := tracker.Counts(window)
		regions := make([]regionCount, 0, len(counts))
		for region, n := range counts {
			regions = append(regions, regionCount{Region: region, Orders: n})
		}
		sort.Slice(regions, func(i, j int) bool {
			if regions[i].Orders != regions[j].Orders {
				return regions[i].Orders > regions[j].Orders
			}
			return regions[i].Region < regions[j].Region
		})

		responses.WriteSuccess(w, regionsResponse{WindowMinutes: int(window / time.Minute), Regions: regions})
	}
}
