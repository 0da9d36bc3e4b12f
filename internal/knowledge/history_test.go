package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachd/internal/workout"
)

type fakeHistory struct {
	resources []workout.Resource
	gotDays   int
}

func (f *fakeHistory) RecentResources(ctx context.Context, ownerID string, days int) ([]workout.Resource, error) {
	f.gotDays = days
	return f.resources, nil
}

func TestHistoryFetcherRendersSetProgress(t *testing.T) {
	src := &fakeHistory{resources: []workout.Resource{{
		Payload: workout.Payload{
			Title: "Leg Day",
			Exercises: []workout.Exercise{
				{Name: "Squat", Sets: []workout.Set{{Done: true}, {Done: true}, {}}},
				{Name: "Lunge", Sets: []workout.Set{{Done: true}}},
			},
		},
		CreatedAt: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
	}}}

	body, err := HistoryFetcher(src, "owner-1").Fetch(context.Background(), map[string]string{"days_back": "30"})
	require.NoError(t, err)
	assert.Equal(t, 30, src.gotDays)
	assert.Contains(t, body, "Workouts in the last 30 days")
	assert.Contains(t, body, "Leg Day (2026-08-25): 2 exercises, 3/4 sets done")
}

func TestHistoryFetcherEmpty(t *testing.T) {
	body, err := HistoryFetcher(&fakeHistory{}, "owner-1").Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "No workouts in the last 7 days.", body)
}

func TestHistoryFetcherRejectsBadDays(t *testing.T) {
	_, err := HistoryFetcher(&fakeHistory{}, "owner-1").Fetch(context.Background(), map[string]string{"days_back": "soon"})
	assert.Error(t, err)
}
