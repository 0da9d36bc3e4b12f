package workout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMatchingVersionAdvancesByOne(t *testing.T) {
	fs := newFakeStore()
	fs.put(activeResource("res-1", 3))
	applier := NewApplier(fs)

	cmd := Command{
		CommandID:       "cmd-1",
		ExpectedVersion: 3,
		Type:            CmdSwapExercise,
		Patch:           rawPatch(`{"index":0,"replacement":{"name":"Incline DB Press","muscle_group":"chest","sets":[{"reps":10},{"reps":10},{"reps":10}]}}`),
	}

	out, err := applier.Apply(context.Background(), "res-1", cmd)
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, int64(4), out.NewVersion)

	res, err := fs.GetResource(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.PayloadVersion)
	assert.Equal(t, "Incline DB Press", res.Payload.Exercises[0].Name)
}

func TestApplyReplaySameCommandIDReturnsStoredOutcome(t *testing.T) {
	fs := newFakeStore()
	fs.put(activeResource("res-1", 3))
	applier := NewApplier(fs)

	cmd := Command{
		CommandID:       "cmd-dup",
		ExpectedVersion: 3,
		Type:            CmdUpdateNotes,
		Patch:           rawPatch(`{"notes":"felt strong"}`),
	}

	first, err := applier.Apply(context.Background(), "res-1", cmd)
	require.NoError(t, err)
	require.Equal(t, int64(4), first.NewVersion)

	// Same command_id again, even with a now-stale expected_version:
	// replay wins, nothing re-executes.
	second, err := applier.Apply(context.Background(), "res-1", cmd)
	require.NoError(t, err)
	assert.Equal(t, first.NewVersion, second.NewVersion)

	res, _ := fs.GetResource(context.Background(), "res-1")
	assert.Equal(t, int64(4), res.PayloadVersion, "version must advance exactly once")
}

func TestApplyStaleVersionConflicts(t *testing.T) {
	fs := newFakeStore()
	fs.put(activeResource("res-1", 4))
	applier := NewApplier(fs)

	cmd := Command{
		CommandID:       "cmd-stale",
		ExpectedVersion: 3,
		Type:            CmdUpdateNotes,
		Patch:           rawPatch(`{"notes":"late"}`),
	}

	_, err := applier.Apply(context.Background(), "res-1", cmd)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(4), conflict.CurrentVersion)
	assert.True(t, IsConflict(err))
	assert.False(t, IsValidation(err))

	res, _ := fs.GetResource(context.Background(), "res-1")
	assert.Equal(t, int64(4), res.PayloadVersion, "conflict must not mutate")
	assert.Empty(t, res.Payload.Notes)
}

func TestApplyConflictLeavesNoIdempotencyRecord(t *testing.T) {
	fs := newFakeStore()
	fs.put(activeResource("res-1", 4))
	applier := NewApplier(fs)

	cmd := Command{
		CommandID:       "cmd-retry",
		ExpectedVersion: 3,
		Type:            CmdUpdateNotes,
		Patch:           rawPatch(`{"notes":"second attempt"}`),
	}

	_, err := applier.Apply(context.Background(), "res-1", cmd)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	// Re-read, retry with the same command_id and the fresh version.
	cmd.ExpectedVersion = conflict.CurrentVersion
	out, err := applier.Apply(context.Background(), "res-1", cmd)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.NewVersion)
}

func TestApplyValidationRejectionIsRecordedAndReplayed(t *testing.T) {
	fs := newFakeStore()
	fs.put(activeResource("res-1", 2))
	applier := NewApplier(fs)

	cmd := Command{
		CommandID:       "cmd-bad",
		ExpectedVersion: 2,
		Type:            CmdSwapExercise,
		Patch:           rawPatch(`{"index":9,"replacement":{"name":"Dips"}}`),
	}

	_, err := applier.Apply(context.Background(), "res-1", cmd)
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "index", invalid.Field)
	assert.True(t, IsValidation(err))
	assert.False(t, IsConflict(err))

	res, _ := fs.GetResource(context.Background(), "res-1")
	assert.Equal(t, int64(2), res.PayloadVersion, "rejected command must not bump the version")

	// The rejection is idempotent too: the replay reproduces it.
	_, err = applier.Apply(context.Background(), "res-1", cmd)
	var replayed *ValidationError
	require.ErrorAs(t, err, &replayed)
	assert.Equal(t, invalid.Field, replayed.Field)
	assert.Equal(t, invalid.Reason, replayed.Reason)
}

func TestApplyValidationFailureLeavesResourceUntouched(t *testing.T) {
	fs := newFakeStore()
	fs.put(activeResource("res-1", 1))
	applier := NewApplier(fs)

	// Negative reps fail after the set indices resolve; the Done flag on
	// the target set must not stick.
	cmd := Command{
		CommandID:       "cmd-neg",
		ExpectedVersion: 1,
		Type:            CmdCompleteSet,
		Patch:           rawPatch(`{"exercise_index":0,"set_index":1,"reps":-1}`),
	}

	_, err := applier.Apply(context.Background(), "res-1", cmd)
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)

	res, _ := fs.GetResource(context.Background(), "res-1")
	assert.False(t, res.Payload.Exercises[0].Sets[1].Done)
	assert.Equal(t, 8, res.Payload.Exercises[0].Sets[1].Reps)
}

func TestApplyLostRaceBecomesConflictWithCurrentVersion(t *testing.T) {
	fs := newFakeStore()
	fs.put(activeResource("res-1", 3))
	fs.commitErr = ErrStaleWrite
	applier := NewApplier(fs)

	cmd := Command{
		CommandID:       "cmd-race",
		ExpectedVersion: 3,
		Type:            CmdUpdateNotes,
		Patch:           rawPatch(`{"notes":"racing"}`),
	}

	_, err := applier.Apply(context.Background(), "res-1", cmd)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(3), conflict.CurrentVersion)
}

func TestApplyMissingCommandIDRejected(t *testing.T) {
	fs := newFakeStore()
	fs.put(activeResource("res-1", 1))
	applier := NewApplier(fs)

	_, err := applier.Apply(context.Background(), "res-1", Command{
		ExpectedVersion: 1,
		Type:            CmdUpdateNotes,
		Patch:           rawPatch(`{"notes":"x"}`),
	})
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "command_id", invalid.Field)
}

func TestApplyCompletedSessionRejectsMutations(t *testing.T) {
	fs := newFakeStore()
	res := activeResource("res-1", 5)
	res.Status = StatusCompleted
	fs.put(res)
	applier := NewApplier(fs)

	_, err := applier.Apply(context.Background(), "res-1", Command{
		CommandID:       "cmd-after",
		ExpectedVersion: 5,
		Type:            CmdAddExercise,
		Patch:           rawPatch(`{"exercise":{"name":"Curls"}}`),
	})
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "status", invalid.Field)
}
