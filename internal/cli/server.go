package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/config"
	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/infra/memory"
	pginfra "proctor-quiz-service/internal/infra/postgres"
	redisinfra "proctor-quiz-service/internal/infra/redis"
	transport "proctor-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var bankLoader memory.BankLoader = memory.NewStaticBankLoader(sampleQuestions())
	if pool != nil {
		bankLoader = pginfra.NewBankLoader(pool)
	}

	bankTTL := config.TTLDuration(cfg.Quiz.BankTTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewQuestionBank(redisClient, bankLoader, bankTTL)
	} else {
		bank = memory.NewQuestionBank(bankLoader, bankTTL)
	}

	var store app.ParticipantStore
	if redisClient != nil {
		store = redisinfra.NewParticipantStore(redisClient)
	} else {
		store = memory.NewParticipantStore()
	}

	memSessions := memory.NewSessionSource(sampleSessions()...)
	var sessionSource app.SessionSource = memSessions
	var sessionWriter app.SessionWriter = memSessions
	if pool != nil {
		pgSessions := pginfra.NewSessionSource(pool)
		sessionSource = pgSessions
		sessionWriter = pgSessions
	}
	sessionTTL := config.TTLDuration(cfg.Session.CacheTTL, time.Minute)
	directory := app.NewCachedDirectory(sessionSource, sessionTTL)

	ledger := app.NewLedger(store)
	engine := app.NewEngine(store, bank, directory, cfg.Quiz.QuestionsPerTier)
	admin := app.NewAdmin(sessionWriter, store)

	api := transport.NewAPI(ledger, engine, store, directory, admin)
	proctor := transport.NewProctorHandler(store)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	api.Register(mux)
	mux.HandleFunc("/ws/proctor", proctor.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting proctor quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions provides a minimal bank for redis/postgres-less runs; swap
// in the Postgres loader for real sessions.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{QID: "q_e1", Difficulty: domain.DifficultyEasy, Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectKey: "4"},
		{QID: "q_e2", Difficulty: domain.DifficultyEasy, Text: "What color is the sky on a clear day?", Options: []string{"Blue", "Green", "Red"}, CorrectKey: "Blue"},
		{QID: "q_m1", Difficulty: domain.DifficultyMedium, Text: "What is 12 x 12?", Options: []string{"124", "144", "164"}, CorrectKey: "144"},
		{QID: "q_m2", Difficulty: domain.DifficultyMedium, Text: "Which planet is closest to the sun?", Options: []string{"Venus", "Mercury", "Mars"}, CorrectKey: "Mercury"},
		{QID: "q_h1", Difficulty: domain.DifficultyHard, Text: "What is the square root of 2209?", Options: []string{"43", "47", "53"}, CorrectKey: "47"},
		{QID: "q_h2", Difficulty: domain.DifficultyHard, Text: "In which year was the first transatlantic telegraph cable completed?", Options: []string{"1858", "1872", "1890"}, CorrectKey: "1858"},
	}
}

func sampleSessions() []domain.Session {
	return []domain.Session{
		{
			ID:                 "session_demo",
			Name:               "Demo Session",
			StartTime:          time.Now().Add(3 * time.Minute).In(domain.ExamZone),
			DurationMinutes:    5,
			EntryWindowMinutes: 3,
			SchoolIDs:          []string{"sch_01", "sch_02", "sch_03"},
		},
	}
}
