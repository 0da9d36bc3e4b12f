package workout

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeStore is an in-memory Store with the same commit semantics as the
// sqlite implementation: CommitApply is conditional on the version the
// command was computed against.
type fakeStore struct {
	mu        sync.Mutex
	resources map[string]*Resource
	outcomes  map[string]*Outcome

	lookupErr error
	commitErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		resources: make(map[string]*Resource),
		outcomes:  make(map[string]*Outcome),
	}
}

func (f *fakeStore) put(res *Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[res.ID] = res
}

func (f *fakeStore) GetResource(ctx context.Context, id string) (*Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return res.clone(), nil
}

func (f *fakeStore) LookupOutcome(ctx context.Context, resourceID, commandID string) (*Outcome, bool, error) {
	if f.lookupErr != nil {
		return nil, false, f.lookupErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.outcomes[resourceID+"/"+commandID]
	return out, ok, nil
}

func (f *fakeStore) RecordOutcome(ctx context.Context, resourceID, commandID string, out *Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := resourceID + "/" + commandID
	if _, exists := f.outcomes[key]; !exists {
		f.outcomes[key] = out
	}
	return nil
}

func (f *fakeStore) CommitApply(ctx context.Context, res *Resource, expectedVersion int64, commandID string, out *Outcome) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.resources[res.ID]
	if !ok {
		return ErrNotFound
	}
	if current.PayloadVersion != expectedVersion {
		return ErrStaleWrite
	}
	f.resources[res.ID] = res
	f.outcomes[res.ID+"/"+commandID] = out
	return nil
}

func activeResource(id string, version int64) *Resource {
	return &Resource{
		ID:      id,
		OwnerID: "owner-1",
		Status:  StatusActive,
		Payload: Payload{
			Title: "Push Day",
			Exercises: []Exercise{
				{Name: "Bench Press", MuscleGroup: "chest", Sets: []Set{{Reps: 8}, {Reps: 8}, {Reps: 8}}},
				{Name: "Overhead Press", MuscleGroup: "shoulders", Sets: []Set{{Reps: 10}, {Reps: 10}}},
			},
		},
		PayloadVersion: version,
		CreatedAt:      time.Now().UTC(),
	}
}

func rawPatch(format string, args ...any) []byte {
	return []byte(fmt.Sprintf(format, args...))
}
