package redis

import (
	"context"
	"testing"
	"time"

	"proctor-quiz-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
)

type countingLoader struct {
	calls     int
	questions []domain.Question
}

func (l *countingLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	l.calls++
	return l.questions, nil
}

func TestQuestionBankCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{questions: []domain.Question{
		{QID: "e1", Difficulty: domain.DifficultyEasy, Text: "2+2?", Options: []string{"3", "4"}, CorrectKey: "4"},
		{QID: "m1", Difficulty: domain.DifficultyMedium, Text: "sqrt(144)?", Options: []string{"12", "14"}, CorrectKey: "12"},
	}}
	bank := NewQuestionBank(newClient(mr), loader, time.Minute)

	questions, err := bank.Questions(context.Background())
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 || loader.calls != 1 {
		t.Fatalf("expected one loader call for 2 questions, got %d calls", loader.calls)
	}

	// Second call should hit cache, loader not incremented.
	questions, err = bank.Questions(context.Background())
	if err != nil {
		t.Fatalf("cached questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if questions[0].CorrectKey != "4" {
		t.Fatalf("cached bank must retain correct keys, got %q", questions[0].CorrectKey)
	}
}

func TestQuestionBankReloadsAfterExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{questions: []domain.Question{
		{QID: "e1", Difficulty: domain.DifficultyEasy, Text: "2+2?", Options: []string{"3", "4"}, CorrectKey: "4"},
	}}
	bank := NewQuestionBank(newClient(mr), loader, time.Minute)

	if _, err := bank.Questions(context.Background()); err != nil {
		t.Fatalf("questions: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := bank.Questions(context.Background()); err != nil {
		t.Fatalf("questions after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after TTL, loader calls=%d", loader.calls)
	}
}
