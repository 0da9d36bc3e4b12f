package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"coachd/internal/checkpoint"
	"coachd/internal/contextbuild"
	"coachd/internal/knowledge"
	"coachd/internal/loop"
	"coachd/internal/store"
	"coachd/internal/workout"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}

	var ownerID, workoutJSON string
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a session (and optionally its workout)",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			sess, err := st.CreateSession(ctx, ownerID)
			if err != nil {
				return err
			}
			fmt.Printf("session %s\n", sess.ID)

			if workoutJSON != "" {
				var payload workout.Payload
				if err := json.Unmarshal([]byte(workoutJSON), &payload); err != nil {
					return fmt.Errorf("parse --workout: %w", err)
				}
				res, err := st.CreateResource(ctx, ownerID, payload)
				if err != nil {
					return err
				}
				if err := st.LinkResource(ctx, sess.ID, res.ID); err != nil {
					return err
				}
				fmt.Printf("workout %s (v%d)\n", res.ID, res.PayloadVersion)
			}
			return nil
		},
	}
	newCmd.Flags().StringVar(&ownerID, "owner", "local", "owner id")
	newCmd.Flags().StringVar(&workoutJSON, "workout", "", "workout payload as JSON")
	cmd.AddCommand(newCmd)

	return cmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <session-id> <message>",
		Short: "Run one conversation turn and print the stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, message := args[0], args[1]

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			sess, err := st.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}

			prov, err := newProvider(ctx)
			if err != nil {
				return err
			}

			registry := loop.NewRegistry()
			loop.RegisterCoachTools(registry, loop.CoachToolDeps{
				SessionID: sessionID,
				Resolver:  st,
				Applier:   workout.NewApplier(st),
				Reader:    st,
			})
			builder := contextbuild.NewBuilder(st, nil)
			cp := checkpoint.NewManager(st, builder, prov, cfg.Limits.CheckpointBudgetTokens)
			l := loop.New(registry, builder, prov, st, loop.Config{
				MaxIterations: cfg.Limits.MaxIterations,
				ToolTimeout:   cfg.Limits.ToolTimeout,
			})

			fetchers := knowledge.NewFetchers()
			fetchers.Register(knowledge.SourceUserProfile, knowledge.ProfileFetcher(nil))
			fetchers.Register(knowledge.SourceWorkoutHistory, knowledge.HistoryFetcher(st, sess.OwnerID))
			fetchers.Register(knowledge.SourceExerciseLibrary, knowledge.LibraryFetcher())

			runner := loop.NewRunner(st, knowledge.NewSelector(), fetchers, cp, l)

			sink := loop.SinkFunc(func(ev loop.StreamEvent) {
				switch {
				case ev.UserVisible:
					fmt.Printf("\ncoach: %s\n", ev.Message)
				case ev.Type == loop.StreamDone:
					fmt.Println("[done]")
				case ev.Message != "":
					fmt.Printf("[%s] %s\n", ev.Type, ev.Message)
				default:
					fmt.Printf("[%s] %s\n", ev.Type, ev.Action)
				}
			})

			outcome, err := runner.Turn(ctx, sessionID, message, sink)
			if err != nil {
				return err
			}
			if outcome.Status == loop.StatusMaxIterations {
				fmt.Println("stopped: action limit reached")
			}
			return nil
		},
	}
}

func newWorkoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workout",
		Short: "Inspect workout resources",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <workout-id>",
		Short: "Print a workout resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := st.GetResource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	return cmd
}
