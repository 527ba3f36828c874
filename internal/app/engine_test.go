package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/infra/memory"
)

var sessionStart = time.Date(2026, 4, 8, 11, 0, 0, 0, domain.ExamZone)

type fixture struct {
	store  *memory.ParticipantStore
	engine *app.Engine
	clock  *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testQuestions() []domain.Question {
	return []domain.Question{
		{QID: "e1", Difficulty: domain.DifficultyEasy, Text: "E1?", Options: []string{"a", "b", "c"}, CorrectKey: "a"},
		{QID: "e2", Difficulty: domain.DifficultyEasy, Text: "E2?", Options: []string{"a", "b", "c"}, CorrectKey: "b"},
		{QID: "m1", Difficulty: domain.DifficultyMedium, Text: "M1?", Options: []string{"a", "b", "c"}, CorrectKey: "c"},
		{QID: "m2", Difficulty: domain.DifficultyMedium, Text: "M2?", Options: []string{"a", "b", "c"}, CorrectKey: "a"},
		{QID: "h1", Difficulty: domain.DifficultyHard, Text: "H1?", Options: []string{"a", "b", "c"}, CorrectKey: "b"},
		{QID: "h2", Difficulty: domain.DifficultyHard, Text: "H2?", Options: []string{"a", "b", "c"}, CorrectKey: "c"},
	}
}

// newFixture builds an engine over in-memory infra with a 5 minute session
// for sch_01 and the clock positioned one minute into the active window.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewParticipantStore()
	bank := memory.NewQuestionBank(memory.NewStaticBankLoader(testQuestions()), time.Minute)
	directory := app.NewCachedDirectory(memory.NewSessionSource(domain.Session{
		ID:              "session_1",
		Name:            "April 8 - Morning",
		StartTime:       sessionStart,
		DurationMinutes: 5,
		SchoolIDs:       []string{"sch_01"},
	}), time.Minute)

	clock := &fakeClock{now: sessionStart.Add(time.Minute)}
	engine := app.NewEngineWithClock(store, bank, directory, 0, clock.Now)

	if err := store.Create(context.Background(), domain.Participant{
		Email:    "alice@sch01.edu",
		SchoolID: "sch_01",
		Status:   domain.StatusLobby,
		JoinedAt: sessionStart.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
	return &fixture{store: store, engine: engine, clock: clock}
}

func tierOf(qid string) domain.Difficulty {
	for _, q := range testQuestions() {
		if q.QID == qid {
			return q.Difficulty
		}
	}
	return ""
}

func TestBeginAssignsTieredOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view, err := f.engine.Begin(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(view.Questions) != 6 {
		t.Fatalf("expected 6 questions, got %d", len(view.Questions))
	}
	wantTiers := []domain.Difficulty{
		domain.DifficultyEasy, domain.DifficultyEasy,
		domain.DifficultyMedium, domain.DifficultyMedium,
		domain.DifficultyHard, domain.DifficultyHard,
	}
	for i, q := range view.Questions {
		if tierOf(q.QID) != wantTiers[i] {
			t.Fatalf("position %d: expected %s question, got %s (%s)", i, wantTiers[i], tierOf(q.QID), q.QID)
		}
		if q.CorrectKey != "" {
			t.Fatalf("correct key leaked for %s", q.QID)
		}
	}

	p, err := f.store.Get(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != domain.StatusInProgress || len(p.QuestionOrder) != 6 || p.CurrentIndex != 0 {
		t.Fatalf("unexpected persisted state: %+v", p)
	}
	if !p.StartTime.Equal(f.clock.Now()) {
		t.Fatalf("expected start time persisted")
	}
}

func TestBeginCapsQuestionsPerTier(t *testing.T) {
	ctx := context.Background()
	store := memory.NewParticipantStore()
	bank := memory.NewQuestionBank(memory.NewStaticBankLoader(testQuestions()), time.Minute)
	directory := app.NewCachedDirectory(memory.NewSessionSource(domain.Session{
		ID: "session_1", StartTime: sessionStart, DurationMinutes: 5, SchoolIDs: []string{"sch_01"},
	}), time.Minute)
	clock := &fakeClock{now: sessionStart.Add(time.Minute)}
	engine := app.NewEngineWithClock(store, bank, directory, 1, clock.Now)

	if err := store.Create(ctx, domain.Participant{Email: "a@b.c", SchoolID: "sch_01", Status: domain.StatusLobby}); err != nil {
		t.Fatalf("create: %v", err)
	}
	view, err := engine.Begin(ctx, "a@b.c")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(view.Questions) != 3 {
		t.Fatalf("expected 1 question per tier, got %d", len(view.Questions))
	}
}

func TestBeginResumesOrderAndReshufflesOptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.engine.Begin(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.engine.SubmitAnswer(ctx, "alice@sch01.edu", first.Questions[0].QID, "a"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	second, err := f.engine.Begin(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if second.CurrentIndex != 1 {
		t.Fatalf("expected resume at index 1, got %d", second.CurrentIndex)
	}
	if second.Answers[first.Questions[0].QID] != "a" {
		t.Fatalf("expected recorded answer preserved, got %v", second.Answers)
	}
	// Question order is durable across reloads; option order is not.
	for i := range first.Questions {
		if first.Questions[i].QID != second.Questions[i].QID {
			t.Fatalf("question order changed on resume: %s vs %s", first.Questions[i].QID, second.Questions[i].QID)
		}
		if !sameOptionSet(first.Questions[i].Options, second.Questions[i].Options) {
			t.Fatalf("option set changed on resume for %s", first.Questions[i].QID)
		}
	}
}

func sameOptionSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, opt := range a {
		seen[opt]++
	}
	for _, opt := range b {
		seen[opt]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

func TestBeginBeforeStartIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.clock.now = sessionStart.Add(-time.Minute)

	_, err := f.engine.Begin(ctx, "alice@sch01.edu")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error before session start, got %v", err)
	}
}

func TestSubmitAllAnswersCompletesAndScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view, err := f.engine.Begin(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	keys := answerKey()
	for i, q := range view.Questions {
		f.clock.Advance(10 * time.Second)
		progress, err := f.engine.SubmitAnswer(ctx, "alice@sch01.edu", q.QID, keys[q.QID])
		if err != nil {
			t.Fatalf("submit %s: %v", q.QID, err)
		}
		if i < len(view.Questions)-1 && progress.Completed {
			t.Fatalf("completed too early at %d", i)
		}
		if i == len(view.Questions)-1 && !progress.Completed {
			t.Fatalf("expected completion on last answer")
		}
	}

	p, err := f.store.Get(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", p.Status)
	}
	if p.TimeTaken != "1m" {
		t.Fatalf("expected time taken 1m, got %q", p.TimeTaken)
	}

	summary, err := f.engine.Results(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if summary.Score != 6 || summary.Total != 6 {
		t.Fatalf("expected perfect score 6/6, got %d/%d", summary.Score, summary.Total)
	}
	for _, item := range summary.Review {
		if !item.IsCorrect {
			t.Fatalf("expected all correct, got %+v", item)
		}
	}
}

func answerKey() map[string]string {
	keys := make(map[string]string)
	for _, q := range testQuestions() {
		keys[q.QID] = q.CorrectKey
	}
	return keys
}

func TestSubmitRejectsEmptySelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.engine.Begin(ctx, "alice@sch01.edu"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err := f.engine.SubmitAnswer(ctx, "alice@sch01.edu", "e1", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty selection, got %v", err)
	}
}

func TestDeadlineForceCompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view, err := f.engine.Begin(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.engine.SubmitAnswer(ctx, "alice@sch01.edu", view.Questions[0].QID, "a"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.clock.now = sessionStart.Add(6 * time.Minute)
	applied, err := f.engine.ForceComplete(ctx, "alice@sch01.edu")
	if err != nil || !applied {
		t.Fatalf("expected first force-complete to apply, got applied=%v err=%v", applied, err)
	}
	first, _ := f.store.Get(ctx, "alice@sch01.edu")

	// A racing second trigger must not move the completion timestamp.
	f.clock.Advance(30 * time.Second)
	applied, err = f.engine.ForceComplete(ctx, "alice@sch01.edu")
	if err != nil || applied {
		t.Fatalf("expected second force-complete to no-op, got applied=%v err=%v", applied, err)
	}
	second, _ := f.store.Get(ctx, "alice@sch01.edu")
	if !first.CompletedAt.Equal(second.CompletedAt) {
		t.Fatalf("completion timestamp moved: %v -> %v", first.CompletedAt, second.CompletedAt)
	}
	if first.TimeTaken != second.TimeTaken {
		t.Fatalf("time taken changed: %q -> %q", first.TimeTaken, second.TimeTaken)
	}
}

func TestLateSubmissionForceCompletesInstead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view, err := f.engine.Begin(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	// Deadline passes; the server clock, not the client's, decides.
	f.clock.now = sessionStart.Add(6 * time.Minute)
	_, err = f.engine.SubmitAnswer(ctx, "alice@sch01.edu", view.Questions[0].QID, "a")
	if !errors.Is(err, domain.ErrAttemptFinished) {
		t.Fatalf("expected attempt-finished on late submission, got %v", err)
	}

	p, _ := f.store.Get(ctx, "alice@sch01.edu")
	if p.Status != domain.StatusCompleted {
		t.Fatalf("expected forced completion, got %s", p.Status)
	}
	if len(p.Answers) != 0 {
		t.Fatalf("late answer must not be recorded, got %v", p.Answers)
	}
}

func TestBeginRoutesFinishedAttemptsAway(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.engine.Begin(ctx, "alice@sch01.edu"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.engine.ForceComplete(ctx, "alice@sch01.edu"); err != nil {
		t.Fatalf("force complete: %v", err)
	}

	_, err := f.engine.Begin(ctx, "alice@sch01.edu")
	var finished *domain.AttemptFinishedError
	if !errors.As(err, &finished) || finished.Status != domain.StatusCompleted {
		t.Fatalf("expected attempt-finished with COMPLETED, got %v", err)
	}
}

func TestResultsWithEmptyAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.engine.Begin(ctx, "alice@sch01.edu"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	summary, err := f.engine.Results(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if summary.Score != 0 || summary.Total != 6 || len(summary.Review) != 0 {
		t.Fatalf("expected empty review with 0/6, got %+v", summary)
	}
}

func TestResultsSkipsUnknownQuestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view, err := f.engine.Begin(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.engine.SubmitAnswer(ctx, "alice@sch01.edu", view.Questions[0].QID, answerKey()[view.Questions[0].QID]); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Simulate a stale answer for a question no longer in the bank.
	if err := f.store.RecordAnswer(ctx, "alice@sch01.edu", "ghost", "x"); err != nil {
		t.Fatalf("record: %v", err)
	}

	summary, err := f.engine.Results(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if summary.Score != 1 || len(summary.Review) != 1 {
		t.Fatalf("expected the malformed item skipped, got %+v", summary)
	}
}
