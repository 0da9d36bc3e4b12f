package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coachd/internal/workout"
)

// Action names for the coaching vocabulary.
const (
	ActionSendMessage     = "send_message"
	ActionSwapExercise    = "swap_exercise"
	ActionCompleteSet     = "complete_set"
	ActionAdjustWorkout   = "adjust_workout"
	ActionCompleteWorkout = "complete_workout"
	ActionIdle            = "idle"
)

// ResourceResolver finds the workout resource a session operates on.
// Implemented by the store's durable session -> resource table.
type ResourceResolver interface {
	ResourceFor(ctx context.Context, sessionID string) (string, error)
}

// CoachToolDeps carries what the built-in tools need. Mutations go
// exclusively through the applier; no tool touches the resource row
// directly.
type CoachToolDeps struct {
	SessionID string
	Resolver  ResourceResolver
	Applier   *workout.Applier
	Reader    interface {
		GetResource(ctx context.Context, id string) (*workout.Resource, error)
	}
}

// RegisterCoachTools installs the coaching action vocabulary.
func RegisterCoachTools(r *Registry, deps CoachToolDeps) {
	r.MustRegister(&Tool{
		Name:        ActionSendMessage,
		Description: "Send a message to the user. This is the only way to show text to the user.",
		Schema: Schema{
			Required:   []string{"text"},
			Properties: map[string]Property{"text": {Type: "string", Description: "Message to show the user"}},
		},
		StatusMessage: "Writing a reply",
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			text, _ := args["text"].(string)
			if text == "" {
				return nil, errors.New("text must not be empty")
			}
			return &ExecResult{Output: text}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        ActionSwapExercise,
		Description: "Replace one exercise in the current workout with another.",
		Schema: Schema{
			Required: []string{"index", "name"},
			Properties: map[string]Property{
				"index":        {Type: "integer", Description: "Zero-based index of the exercise to replace"},
				"name":         {Type: "string", Description: "Replacement exercise name"},
				"muscle_group": {Type: "string", Description: "Muscle group of the replacement"},
				"sets":         {Type: "integer", Description: "Number of sets, default 3"},
				"reps":         {Type: "integer", Description: "Reps per set, default 10"},
			},
		},
		StatusMessage: "Swapping exercise",
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			sets := intArg(args, "sets", 3)
			reps := intArg(args, "reps", 10)
			replacement := workout.Exercise{
				Name:        args["name"].(string),
				MuscleGroup: stringArg(args, "muscle_group"),
				Sets:        make([]workout.Set, sets),
			}
			for i := range replacement.Sets {
				replacement.Sets[i].Reps = reps
			}
			patch, _ := json.Marshal(workout.SwapPatch{
				Index:       intArg(args, "index", 0),
				Replacement: replacement,
			})
			out, err := deps.apply(ctx, workout.CmdSwapExercise, patch)
			if err != nil {
				return out, err
			}
			out.Output = fmt.Sprintf("swapped exercise %d to %s (v%d)", intArg(args, "index", 0), replacement.Name, out.ResourceVersion)
			return out, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        ActionCompleteSet,
		Description: "Mark one set of an exercise as done, recording actual reps and weight.",
		Schema: Schema{
			Required: []string{"exercise_index", "set_index"},
			Properties: map[string]Property{
				"exercise_index": {Type: "integer", Description: "Zero-based exercise index"},
				"set_index":      {Type: "integer", Description: "Zero-based set index"},
				"reps":           {Type: "integer", Description: "Actual reps performed"},
				"weight_kg":      {Type: "number", Description: "Actual weight used"},
			},
		},
		StatusMessage: "Logging the set",
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			p := workout.CompleteSetPatch{
				ExerciseIndex: intArg(args, "exercise_index", 0),
				SetIndex:      intArg(args, "set_index", 0),
			}
			if v, ok := args["reps"].(float64); ok {
				n := int(v)
				p.Reps = &n
			}
			if v, ok := args["weight_kg"].(float64); ok {
				p.WeightKg = &v
			}
			patch, _ := json.Marshal(p)
			out, err := deps.apply(ctx, workout.CmdCompleteSet, patch)
			if err != nil {
				return out, err
			}
			out.Output = fmt.Sprintf("set %d of exercise %d done (v%d)", p.SetIndex, p.ExerciseIndex, out.ResourceVersion)
			return out, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        ActionAdjustWorkout,
		Description: "Add or remove an exercise, or update workout notes.",
		Schema: Schema{
			Required: []string{"op"},
			Properties: map[string]Property{
				"op":           {Type: "string", Description: "One of: add, remove, notes"},
				"name":         {Type: "string", Description: "Exercise name (op=add)"},
				"muscle_group": {Type: "string", Description: "Muscle group (op=add)"},
				"index":        {Type: "integer", Description: "Exercise index (op=remove)"},
				"notes":        {Type: "string", Description: "New notes text (op=notes)"},
			},
		},
		StatusMessage: "Adjusting the workout",
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			var (
				cmdType workout.CommandType
				patch   []byte
			)
			switch stringArg(args, "op") {
			case "add":
				name := stringArg(args, "name")
				if name == "" {
					return nil, errors.New("op=add requires name")
				}
				ex := workout.Exercise{
					Name:        name,
					MuscleGroup: stringArg(args, "muscle_group"),
					Sets:        []workout.Set{{Reps: 10}, {Reps: 10}, {Reps: 10}},
				}
				cmdType = workout.CmdAddExercise
				patch, _ = json.Marshal(workout.AddPatch{Exercise: ex})
			case "remove":
				cmdType = workout.CmdRemoveExercise
				patch, _ = json.Marshal(workout.RemovePatch{Index: intArg(args, "index", 0)})
			case "notes":
				cmdType = workout.CmdUpdateNotes
				patch, _ = json.Marshal(workout.NotesPatch{Notes: stringArg(args, "notes")})
			default:
				return nil, fmt.Errorf("unknown op %q", stringArg(args, "op"))
			}
			out, err := deps.apply(ctx, cmdType, patch)
			if err != nil {
				return out, err
			}
			out.Output = fmt.Sprintf("workout adjusted: %s (v%d)", stringArg(args, "op"), out.ResourceVersion)
			return out, nil
		},
	})

	r.MustRegister(&Tool{
		Name:          ActionCompleteWorkout,
		Description:   "Mark the current workout session as completed.",
		StatusMessage: "Wrapping up the session",
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			out, err := deps.apply(ctx, workout.CmdCompleteSession, nil)
			if err != nil {
				return out, err
			}
			out.Output = fmt.Sprintf("workout completed (v%d)", out.ResourceVersion)
			return out, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        ActionIdle,
		Description: "Choose this when there is nothing left to do this turn.",
		Terminal:    true,
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			return &ExecResult{Output: "idle"}, nil
		},
	})
}

// apply resolves the session's resource, reads its current version, and
// issues one command through the applier. A conflict comes back as a
// failed result carrying the current version so the provider can see it
// and re-plan; it is never auto-retried here.
func (d CoachToolDeps) apply(ctx context.Context, cmdType workout.CommandType, patch json.RawMessage) (*ExecResult, error) {
	resourceID, err := d.Resolver.ResourceFor(ctx, d.SessionID)
	if err != nil {
		return nil, err
	}
	res, err := d.Reader.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	cmd := workout.Command{
		CommandID:       uuid.NewString(),
		ExpectedVersion: res.PayloadVersion,
		Type:            cmdType,
		Patch:           patch,
		ClientMeta:      map[string]string{"actor": "agent", "session_id": d.SessionID},
	}

	out, err := d.Applier.Apply(ctx, resourceID, cmd)
	if err != nil {
		var conflict *workout.ConflictError
		if errors.As(err, &conflict) {
			return &ExecResult{ResourceVersion: conflict.CurrentVersion}, err
		}
		return nil, err
	}
	return &ExecResult{ResourceVersion: out.NewVersion}, nil
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
