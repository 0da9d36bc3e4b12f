package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"coachd/internal/workout"
)

// HistorySource lists an owner's recent workout resources. Implemented
// by the sqlite store.
type HistorySource interface {
	RecentResources(ctx context.Context, ownerID string, days int) ([]workout.Resource, error)
}

// HistoryFetcher serves a compact rendering of recent workouts.
func HistoryFetcher(src HistorySource, ownerID string) Fetcher {
	return FetcherFunc(func(ctx context.Context, params map[string]string) (string, error) {
		days := 7
		if raw, ok := params["days_back"]; ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return "", fmt.Errorf("bad days_back %q: %w", raw, err)
			}
			days = n
		}

		resources, err := src.RecentResources(ctx, ownerID, days)
		if err != nil {
			return "", err
		}
		if len(resources) == 0 {
			return fmt.Sprintf("No workouts in the last %d days.", days), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Workouts in the last %d days:\n", days)
		for _, res := range resources {
			done := 0
			total := 0
			for _, ex := range res.Payload.Exercises {
				for _, set := range ex.Sets {
					total++
					if set.Done {
						done++
					}
				}
			}
			title := res.Payload.Title
			if title == "" {
				title = "untitled session"
			}
			fmt.Fprintf(&sb, "- %s (%s): %d exercises, %d/%d sets done\n",
				title, res.CreatedAt.Format("2006-01-02"), len(res.Payload.Exercises), done, total)
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	})
}
