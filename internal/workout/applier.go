package workout

import (
	"context"
	"errors"

	"coachd/internal/logging"
)

// ErrStaleWrite is returned by Store.CommitApply when the conditional
// update matched zero rows. The applier converts it into a ConflictError
// carrying the current version.
var ErrStaleWrite = errors.New("stale write: version changed since read")

// Store is the persistence the applier needs. Implemented by the sqlite
// store; the commit must be atomic (patch + version bump + idempotency
// record in one transaction).
type Store interface {
	GetResource(ctx context.Context, id string) (*Resource, error)
	LookupOutcome(ctx context.Context, resourceID, commandID string) (*Outcome, bool, error)
	RecordOutcome(ctx context.Context, resourceID, commandID string, out *Outcome) error
	CommitApply(ctx context.Context, res *Resource, expectedVersion int64, commandID string, out *Outcome) error
}

// Applier is the single write path to workout session resources. Every
// writer (loop tools, HTTP clients, background jobs) goes through Apply.
type Applier struct {
	store Store
}

// NewApplier creates an applier over the given store.
func NewApplier(store Store) *Applier {
	return &Applier{store: store}
}

// Apply executes one command against a resource.
//
//  1. A previously seen command_id returns the stored outcome
//     unconditionally, with no re-execution or re-validation.
//  2. A stale expected_version returns ConflictError{CurrentVersion};
//     conflicts leave no idempotency record, so the same command_id may
//     succeed after the caller re-reads.
//  3. An invalid payload returns ValidationError and records the
//     rejection; no partial mutation occurs.
//  4. Otherwise the patch, version bump, and idempotency record commit
//     in one transaction and the new version is returned.
func (a *Applier) Apply(ctx context.Context, resourceID string, cmd Command) (*Outcome, error) {
	if cmd.CommandID == "" {
		return nil, &ValidationError{Field: "command_id", Reason: "required"}
	}

	if stored, ok, err := a.store.LookupOutcome(ctx, resourceID, cmd.CommandID); err != nil {
		return nil, err
	} else if ok {
		logging.Workout("replay of command %s on %s: returning stored outcome", cmd.CommandID, resourceID)
		return a.replay(stored)
	}

	res, err := a.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	if cmd.ExpectedVersion != res.PayloadVersion {
		logging.Workout("conflict on %s: expected v%d, current v%d", resourceID, cmd.ExpectedVersion, res.PayloadVersion)
		return nil, &ConflictError{CurrentVersion: res.PayloadVersion}
	}

	next := res.clone()
	if err := applyPatch(next, cmd); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			out := &Outcome{Applied: false, Rejection: ve.Reason, RejectionField: ve.Field}
			if recErr := a.store.RecordOutcome(ctx, resourceID, cmd.CommandID, out); recErr != nil {
				return nil, recErr
			}
		}
		return nil, err
	}

	next.PayloadVersion = res.PayloadVersion + 1
	out := &Outcome{NewVersion: next.PayloadVersion, Applied: true}

	if err := a.store.CommitApply(ctx, next, cmd.ExpectedVersion, cmd.CommandID, out); err != nil {
		if errors.Is(err, ErrStaleWrite) {
			// Lost a race between our read and the conditional write.
			current, rerr := a.store.GetResource(ctx, resourceID)
			if rerr != nil {
				return nil, rerr
			}
			return nil, &ConflictError{CurrentVersion: current.PayloadVersion}
		}
		return nil, err
	}

	logging.Workout("applied %s %s on %s: v%d -> v%d", cmd.Type, cmd.CommandID, resourceID, res.PayloadVersion, next.PayloadVersion)
	return out, nil
}

// replay converts a stored outcome back into the shape the original call
// produced.
func (a *Applier) replay(stored *Outcome) (*Outcome, error) {
	if stored.Applied {
		return stored, nil
	}
	return nil, &ValidationError{Field: stored.RejectionField, Reason: stored.Rejection}
}

// clone deep-copies the resource so validation failures never leave
// partial mutations behind.
func (r *Resource) clone() *Resource {
	next := *r
	next.Payload.Exercises = make([]Exercise, len(r.Payload.Exercises))
	for i, ex := range r.Payload.Exercises {
		cp := ex
		cp.Sets = append([]Set(nil), ex.Sets...)
		next.Payload.Exercises[i] = cp
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		next.CompletedAt = &t
	}
	return &next
}
