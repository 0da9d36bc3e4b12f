package workout

import (
	"encoding/json"
	"fmt"
	"time"
)

// applyPatch validates cmd against res and mutates res in place.
// It returns a ValidationError (and leaves res untouched) on any invalid
// payload; callers pass a copy when they need rollback semantics.
func applyPatch(res *Resource, cmd Command) error {
	if res.Status != StatusActive && cmd.Type != CmdStopSession {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("resource is %s, not active", res.Status)}
	}

	switch cmd.Type {
	case CmdSwapExercise:
		return applySwap(res, cmd.Patch)
	case CmdAddExercise:
		return applyAdd(res, cmd.Patch)
	case CmdRemoveExercise:
		return applyRemove(res, cmd.Patch)
	case CmdCompleteSet:
		return applyCompleteSet(res, cmd.Patch)
	case CmdUpdateNotes:
		return applyNotes(res, cmd.Patch)
	case CmdCompleteSession:
		now := time.Now().UTC()
		res.Status = StatusCompleted
		res.CompletedAt = &now
		return nil
	case CmdStopSession:
		if res.Status != StatusActive {
			return &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot stop a %s session", res.Status)}
		}
		res.Status = StatusStopped
		return nil
	default:
		return &ValidationError{Field: "command_type", Reason: string(cmd.Type) + " is not recognized"}
	}
}

func decodePatch(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return &ValidationError{Field: "payload_patch", Reason: "missing"}
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return &ValidationError{Field: "payload_patch", Reason: err.Error()}
	}
	return nil
}

func applySwap(res *Resource, raw json.RawMessage) error {
	var p SwapPatch
	if err := decodePatch(raw, &p); err != nil {
		return err
	}
	if p.Index < 0 || p.Index >= len(res.Payload.Exercises) {
		return &ValidationError{Field: "index", Reason: fmt.Sprintf("%d out of range [0,%d)", p.Index, len(res.Payload.Exercises))}
	}
	if p.Replacement.Name == "" {
		return &ValidationError{Field: "replacement.name", Reason: "required"}
	}
	res.Payload.Exercises[p.Index] = p.Replacement
	return nil
}

func applyAdd(res *Resource, raw json.RawMessage) error {
	var p AddPatch
	if err := decodePatch(raw, &p); err != nil {
		return err
	}
	if p.Exercise.Name == "" {
		return &ValidationError{Field: "exercise.name", Reason: "required"}
	}
	exs := res.Payload.Exercises
	if p.Position == nil || *p.Position >= len(exs) {
		res.Payload.Exercises = append(exs, p.Exercise)
		return nil
	}
	pos := *p.Position
	if pos < 0 {
		return &ValidationError{Field: "position", Reason: "must be >= 0"}
	}
	exs = append(exs[:pos], append([]Exercise{p.Exercise}, exs[pos:]...)...)
	res.Payload.Exercises = exs
	return nil
}

func applyRemove(res *Resource, raw json.RawMessage) error {
	var p RemovePatch
	if err := decodePatch(raw, &p); err != nil {
		return err
	}
	if p.Index < 0 || p.Index >= len(res.Payload.Exercises) {
		return &ValidationError{Field: "index", Reason: fmt.Sprintf("%d out of range [0,%d)", p.Index, len(res.Payload.Exercises))}
	}
	res.Payload.Exercises = append(res.Payload.Exercises[:p.Index], res.Payload.Exercises[p.Index+1:]...)
	return nil
}

func applyCompleteSet(res *Resource, raw json.RawMessage) error {
	var p CompleteSetPatch
	if err := decodePatch(raw, &p); err != nil {
		return err
	}
	if p.ExerciseIndex < 0 || p.ExerciseIndex >= len(res.Payload.Exercises) {
		return &ValidationError{Field: "exercise_index", Reason: fmt.Sprintf("%d out of range [0,%d)", p.ExerciseIndex, len(res.Payload.Exercises))}
	}
	ex := &res.Payload.Exercises[p.ExerciseIndex]
	if p.SetIndex < 0 || p.SetIndex >= len(ex.Sets) {
		return &ValidationError{Field: "set_index", Reason: fmt.Sprintf("%d out of range [0,%d)", p.SetIndex, len(ex.Sets))}
	}
	if p.Reps != nil && *p.Reps < 0 {
		return &ValidationError{Field: "reps", Reason: "must be >= 0"}
	}
	if p.WeightKg != nil && *p.WeightKg < 0 {
		return &ValidationError{Field: "weight_kg", Reason: "must be >= 0"}
	}
	set := &ex.Sets[p.SetIndex]
	set.Done = true
	if p.Reps != nil {
		set.Reps = *p.Reps
	}
	if p.WeightKg != nil {
		set.WeightKg = *p.WeightKg
	}
	return nil
}

func applyNotes(res *Resource, raw json.RawMessage) error {
	var p NotesPatch
	if err := decodePatch(raw, &p); err != nil {
		return err
	}
	res.Payload.Notes = p.Notes
	return nil
}
