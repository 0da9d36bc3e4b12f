// Package workout defines the mutable workout session resource and the
// versioned, idempotent command pipeline that is the only write path to
// it. Concurrency control is optimistic: a command names the version it
// was computed against and is rejected, never merged, when stale.
package workout

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a workout session resource.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// Set is one set of an exercise.
type Set struct {
	Reps     int     `json:"reps"`
	WeightKg float64 `json:"weight_kg,omitempty"`
	Done     bool    `json:"done"`
}

// Exercise is one entry in the workout's exercise list.
type Exercise struct {
	Name        string `json:"name"`
	MuscleGroup string `json:"muscle_group,omitempty"`
	Sets        []Set  `json:"sets"`
}

// Payload is the structured content of a workout session resource.
type Payload struct {
	Title     string     `json:"title,omitempty"`
	Exercises []Exercise `json:"exercises"`
	Notes     string     `json:"notes,omitempty"`
}

// Resource is the versioned workout session. PayloadVersion increases by
// exactly one on every accepted mutation; versions are never skipped or
// reused.
type Resource struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Status         Status     `json:"status"`
	Payload        Payload    `json:"payload"`
	PayloadVersion int64      `json:"payload_version"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// CommandType names a mutation the applier knows how to validate and apply.
type CommandType string

const (
	CmdSwapExercise    CommandType = "swap_exercise"
	CmdAddExercise     CommandType = "add_exercise"
	CmdRemoveExercise  CommandType = "remove_exercise"
	CmdCompleteSet     CommandType = "complete_set"
	CmdUpdateNotes     CommandType = "update_notes"
	CmdCompleteSession CommandType = "complete_session"
	CmdStopSession     CommandType = "stop_session"
)

// Command is a request to mutate a resource. CommandID is the
// client-supplied idempotency key: replaying a previously seen CommandID
// for the same resource returns the original outcome without reapplying.
type Command struct {
	CommandID       string            `json:"command_id"`
	ExpectedVersion int64             `json:"expected_version"`
	Type            CommandType       `json:"command_type"`
	Patch           json.RawMessage   `json:"payload_patch,omitempty"`
	ClientMeta      map[string]string `json:"client_meta,omitempty"`
}

// Outcome is the stored result of an applied (or rejected-for-validation)
// command. Conflicts are not outcomes: they leave no idempotency record
// so the same CommandID can succeed after the caller re-reads.
type Outcome struct {
	NewVersion     int64  `json:"new_version,omitempty"`
	Applied        bool   `json:"applied"`
	Rejection      string `json:"rejection,omitempty"`
	RejectionField string `json:"rejection_field,omitempty"`
}

// Patch payloads, one per command type.

// SwapPatch replaces the exercise at Index with Replacement.
type SwapPatch struct {
	Index       int      `json:"index"`
	Replacement Exercise `json:"replacement"`
}

// AddPatch appends an exercise, optionally at Position.
type AddPatch struct {
	Exercise Exercise `json:"exercise"`
	Position *int     `json:"position,omitempty"`
}

// RemovePatch removes the exercise at Index.
type RemovePatch struct {
	Index int `json:"index"`
}

// CompleteSetPatch marks one set done and records actuals.
type CompleteSetPatch struct {
	ExerciseIndex int      `json:"exercise_index"`
	SetIndex      int      `json:"set_index"`
	Reps          *int     `json:"reps,omitempty"`
	WeightKg      *float64 `json:"weight_kg,omitempty"`
}

// NotesPatch replaces the free-form notes.
type NotesPatch struct {
	Notes string `json:"notes"`
}
