package cli

import (
	"context"
	"log"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/config"
	"proctor-quiz-service/internal/infra/memory"
	pginfra "proctor-quiz-service/internal/infra/postgres"
	redisinfra "proctor-quiz-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewResetCmd rewrites the test session window and optionally clears test
// identities. Operational tooling for rehearsals, not the exam-time path.
func NewResetCmd(configPath *string) *cobra.Command {
	var (
		lobbyMinutes    int
		durationMinutes int
		schoolIDs       []string
		clearEmails     []string
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the test session window and clear test identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), *configPath, lobbyMinutes, durationMinutes, schoolIDs, clearEmails)
		},
	}
	cmd.Flags().IntVar(&lobbyMinutes, "lobby", 3, "minutes until the test session starts")
	cmd.Flags().IntVar(&durationMinutes, "duration", 5, "test session duration in minutes")
	cmd.Flags().StringSliceVar(&schoolIDs, "schools", []string{"sch_01", "sch_02", "sch_03"}, "school ids mapped to the test session")
	cmd.Flags().StringSliceVar(&clearEmails, "clear", nil, "test identities to delete")
	return cmd
}

func runReset(ctx context.Context, configPath string, lobbyMinutes, durationMinutes int, schoolIDs, clearEmails []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var sessions app.SessionWriter = memory.NewSessionSource()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		sessions = pginfra.NewSessionSource(pool)
	}

	var store app.ParticipantStore = memory.NewParticipantStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		store = redisinfra.NewParticipantStore(client)
	}

	admin := app.NewAdmin(sessions, store)
	session, err := admin.ResetTestSession(ctx, lobbyMinutes, durationMinutes, schoolIDs)
	if err != nil {
		return err
	}
	if err := admin.ClearParticipants(ctx, clearEmails); err != nil {
		return err
	}

	log.Printf("test session %s reset: starts %s, runs %dm", session.ID, session.StartTime.Format("15:04:05"), session.DurationMinutes)
	return nil
}
