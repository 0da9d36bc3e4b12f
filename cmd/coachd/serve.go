package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coachd/internal/api"
	"coachd/internal/provider"
	"coachd/internal/store"
)

func newServeCmd() *cobra.Command {
	var profilePairs []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			prov, err := newProvider(ctx)
			if err != nil {
				return err
			}

			srv := api.NewServer(st, prov, cfg.Limits, parseProfile(profilePairs))
			logger.Info("starting coachd",
				zap.String("addr", cfg.Server.Addr),
				zap.String("db", cfg.Store.Path),
				zap.String("model", cfg.LLM.Model))
			return srv.Run(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringArrayVar(&profilePairs, "profile", nil, "profile fact as key=value (repeatable)")
	return cmd
}

// newProvider builds the configured completion provider. The API key
// falls back to GEMINI_API_KEY.
func newProvider(ctx context.Context) (provider.Provider, error) {
	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	switch cfg.LLM.Provider {
	case "", "gemini":
		return provider.NewGeminiProvider(ctx, provider.GeminiConfig{
			APIKey:  apiKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func parseProfile(pairs []string) map[string]string {
	profile := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		for i := 0; i < len(pair); i++ {
			if pair[i] == '=' {
				profile[pair[:i]] = pair[i+1:]
				break
			}
		}
	}
	if len(profile) == 0 {
		return nil
	}
	return profile
}
