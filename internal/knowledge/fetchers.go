package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Fetcher retrieves the body of one knowledge source.
type Fetcher interface {
	Fetch(ctx context.Context, params map[string]string) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, params map[string]string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, params map[string]string) (string, error) {
	return f(ctx, params)
}

// Fetchers maps source names to their fetchers for one owner.
type Fetchers struct {
	bySource map[string]Fetcher
}

// NewFetchers creates an empty fetcher set.
func NewFetchers() *Fetchers {
	return &Fetchers{bySource: make(map[string]Fetcher)}
}

// Register adds a fetcher for a source, replacing any existing one.
func (f *Fetchers) Register(source string, fetcher Fetcher) {
	f.bySource[source] = fetcher
}

// Fetch runs the fetcher for a source.
func (f *Fetchers) Fetch(ctx context.Context, source string, params map[string]string) (string, error) {
	fetcher, ok := f.bySource[source]
	if !ok {
		return "", fmt.Errorf("no fetcher registered for source %q", source)
	}
	return fetcher.Fetch(ctx, params)
}

// ProfileFetcher serves slow-changing profile facts from a map.
func ProfileFetcher(facts map[string]string) Fetcher {
	return FetcherFunc(func(ctx context.Context, params map[string]string) (string, error) {
		if len(facts) == 0 {
			return "No profile on file.", nil
		}
		keys := make([]string, 0, len(facts))
		for k := range facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s: %s\n", k, facts[k])
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	})
}

// exerciseLibrary is a small built-in catalogue used when the user asks
// for alternatives. A production deployment would back this with a real
// exercise database behind the same Fetcher interface.
var exerciseLibrary = map[string][]string{
	"chest":     {"bench press", "incline dumbbell press", "push-up", "cable fly"},
	"back":      {"pull-up", "barbell row", "lat pulldown", "seated cable row"},
	"legs":      {"back squat", "romanian deadlift", "leg press", "walking lunge"},
	"shoulders": {"overhead press", "lateral raise", "face pull", "arnold press"},
	"arms":      {"barbell curl", "hammer curl", "triceps pushdown", "skullcrusher"},
	"core":      {"plank", "hanging leg raise", "cable crunch", "dead bug"},
	"glutes":    {"hip thrust", "glute bridge", "bulgarian split squat", "cable kickback"},
}

// LibraryFetcher serves exercise alternatives by muscle group.
func LibraryFetcher() Fetcher {
	return FetcherFunc(func(ctx context.Context, params map[string]string) (string, error) {
		group := params["muscle_group"]
		names, ok := exerciseLibrary[group]
		if !ok {
			return "", fmt.Errorf("unknown muscle group %q", group)
		}
		return fmt.Sprintf("Alternatives for %s: %s", group, strings.Join(names, ", ")), nil
	})
}
