package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"proctor-quiz-service/internal/domain"
)

// ExamView is everything a client needs to render the quiz: questions in the
// participant's assigned order with freshly shuffled options, plus restored
// progress. Correct keys are stripped before the view leaves the engine.
type ExamView struct {
	Status       domain.Status
	Questions    []domain.Question
	CurrentIndex int
	Answers      map[string]string
	StartTime    time.Time
	Deadline     time.Time
}

// Progress reports the outcome of one answer submission.
type Progress struct {
	CurrentIndex int
	Completed    bool
	Total        int
}

// ReviewItem is one graded answer in a results review.
type ReviewItem struct {
	QID           string `json:"qid"`
	Text          string `json:"text"`
	YourAnswer    string `json:"yourAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// ResultSummary is computed fresh from stored answers and the answer key.
type ResultSummary struct {
	Score  int          `json:"score"`
	Total  int          `json:"total"`
	Review []ReviewItem `json:"review"`
}

// Engine drives the per-participant quiz state machine: question assignment,
// answer recording, deadline enforcement, and grading.
type Engine struct {
	store     ParticipantStore
	bank      QuestionBank
	directory SessionDirectory
	perTier   int
	now       func() time.Time
}

// NewEngine builds a quiz engine. perTier caps each difficulty bucket during
// assignment; zero assigns every question in the bank.
func NewEngine(store ParticipantStore, bank QuestionBank, directory SessionDirectory, perTier int) *Engine {
	return NewEngineWithClock(store, bank, directory, perTier, time.Now)
}

// NewEngineWithClock is test-only for deterministic timestamps.
func NewEngineWithClock(store ParticipantStore, bank QuestionBank, directory SessionDirectory, perTier int, now func() time.Time) *Engine {
	return &Engine{store: store, bank: bank, directory: directory, perTier: perTier, now: now}
}

// Begin enters the quiz phase: assigns a question order on first entry, or
// resumes from the durable record. Options are re-shuffled on every call;
// only the question order is durable.
func (e *Engine) Begin(ctx context.Context, email string) (ExamView, error) {
	p, err := e.store.Get(ctx, email)
	if err != nil {
		return ExamView{}, err
	}
	if p.Status.Terminal() {
		return ExamView{}, &domain.AttemptFinishedError{Status: p.Status}
	}

	session, err := e.directory.Resolve(ctx, p.SchoolID)
	if err != nil {
		return ExamView{}, err
	}

	now := e.now()
	if !now.Before(session.EndTime()) {
		// The window closed while the participant was away.
		if _, err := e.ForceComplete(ctx, email); err != nil {
			return ExamView{}, err
		}
		return ExamView{}, &domain.AttemptFinishedError{Status: domain.StatusCompleted}
	}
	if now.Before(session.StartTime) {
		return ExamView{}, fmt.Errorf("%w: session has not started", domain.ErrValidation)
	}

	questions, err := e.bank.Questions(ctx)
	if err != nil {
		return ExamView{}, err
	}
	byQID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byQID[q.QID] = q
	}

	if len(p.QuestionOrder) == 0 {
		order := e.assignOrder(questions)
		status := domain.StatusInProgress
		index := 0
		start := now
		patch := ParticipantPatch{
			Status:        &status,
			QuestionOrder: order,
			CurrentIndex:  &index,
			StartTime:     &start,
		}
		if err := e.store.Patch(ctx, email, patch); err != nil {
			return ExamView{}, err
		}
		p.QuestionOrder = order
		p.CurrentIndex = 0
		p.StartTime = start
		p.Status = status
	}

	view := ExamView{
		Status:       p.Status,
		CurrentIndex: p.CurrentIndex,
		Answers:      p.Answers,
		StartTime:    p.StartTime,
		Deadline:     session.EndTime(),
	}
	for _, qid := range p.QuestionOrder {
		q, ok := byQID[qid]
		if !ok {
			continue
		}
		rq := q.Redacted()
		rand.Shuffle(len(rq.Options), func(i, j int) {
			rq.Options[i], rq.Options[j] = rq.Options[j], rq.Options[i]
		})
		view.Questions = append(view.Questions, rq)
	}
	return view, nil
}

// assignOrder buckets by difficulty, shuffles each bucket independently, and
// concatenates easy -> medium -> hard.
func (e *Engine) assignOrder(questions []domain.Question) []string {
	var easy, medium, hard []string
	for _, q := range questions {
		switch {
		case strings.EqualFold(string(q.Difficulty), string(domain.DifficultyEasy)):
			easy = append(easy, q.QID)
		case strings.EqualFold(string(q.Difficulty), string(domain.DifficultyMedium)):
			medium = append(medium, q.QID)
		default:
			hard = append(hard, q.QID)
		}
	}
	shuffleTier := func(tier []string) []string {
		rand.Shuffle(len(tier), func(i, j int) {
			tier[i], tier[j] = tier[j], tier[i]
		})
		if e.perTier > 0 && len(tier) > e.perTier {
			tier = tier[:e.perTier]
		}
		return tier
	}
	easy = shuffleTier(easy)
	medium = shuffleTier(medium)
	hard = shuffleTier(hard)

	order := make([]string, 0, len(easy)+len(medium)+len(hard))
	order = append(order, easy...)
	order = append(order, medium...)
	order = append(order, hard...)
	return order
}

// SubmitAnswer records the selected option for the current question and
// advances. The session deadline is revalidated against the server clock at
// write time: a late submission force-completes the attempt instead of
// recording the answer.
func (e *Engine) SubmitAnswer(ctx context.Context, email, qid, option string) (Progress, error) {
	if option == "" {
		return Progress{}, fmt.Errorf("%w: no option selected", domain.ErrValidation)
	}

	p, err := e.store.Get(ctx, email)
	if err != nil {
		return Progress{}, err
	}
	if p.Status.Terminal() {
		return Progress{}, &domain.AttemptFinishedError{Status: p.Status}
	}
	if p.Status != domain.StatusInProgress || len(p.QuestionOrder) == 0 {
		return Progress{}, fmt.Errorf("%w: quiz not started", domain.ErrValidation)
	}

	session, err := e.directory.Resolve(ctx, p.SchoolID)
	if err != nil {
		return Progress{}, err
	}
	now := e.now()
	if !now.Before(session.EndTime()) {
		if _, err := e.ForceComplete(ctx, email); err != nil {
			return Progress{}, err
		}
		return Progress{}, &domain.AttemptFinishedError{Status: domain.StatusCompleted}
	}

	if p.CurrentIndex >= len(p.QuestionOrder) || p.QuestionOrder[p.CurrentIndex] != qid {
		return Progress{}, fmt.Errorf("%w: %q is not the current question", domain.ErrValidation, qid)
	}

	if err := e.store.RecordAnswer(ctx, email, qid, option); err != nil {
		return Progress{}, err
	}

	total := len(p.QuestionOrder)
	nextIndex := p.CurrentIndex + 1
	if nextIndex < total {
		if err := e.store.Patch(ctx, email, ParticipantPatch{CurrentIndex: &nextIndex}); err != nil {
			return Progress{}, err
		}
		return Progress{CurrentIndex: nextIndex, Total: total}, nil
	}

	applied, err := e.store.Complete(ctx, email, now, domain.FormatTimeTaken(now.Sub(p.StartTime)))
	if err != nil {
		return Progress{}, err
	}
	if applied {
		answers := make(map[string]string, len(p.Answers)+1)
		for k, v := range p.Answers {
			answers[k] = v
		}
		answers[qid] = option
		e.patchScore(ctx, email, answers)
	}
	return Progress{CurrentIndex: p.CurrentIndex, Completed: true, Total: total}, nil
}

// ForceComplete is the deadline path: the participant is completed with
// whatever answers were recorded. Idempotent; the first completion wins and
// later triggers report applied=false.
func (e *Engine) ForceComplete(ctx context.Context, email string) (bool, error) {
	p, err := e.store.Get(ctx, email)
	if err != nil {
		return false, err
	}
	if p.Status.Terminal() {
		return false, nil
	}

	now := e.now()
	timeTaken := "0ms"
	if !p.StartTime.IsZero() {
		timeTaken = domain.FormatTimeTaken(now.Sub(p.StartTime))
	}
	applied, err := e.store.Complete(ctx, email, now, timeTaken)
	if err != nil {
		return false, err
	}
	if applied {
		e.patchScore(ctx, email, p.Answers)
	}
	return applied, nil
}

// patchScore persists the grade best-effort. Results always regrade from the
// answer key, so a failure here only delays the stored score.
func (e *Engine) patchScore(ctx context.Context, email string, answers map[string]string) {
	questions, err := e.bank.Questions(ctx)
	if err != nil {
		return
	}
	score := gradeAnswers(answers, questions)
	_ = e.store.Patch(ctx, email, ParticipantPatch{Score: &score})
}

// Results regrades the stored answers against the immutable answer key.
// Client-held scores are never trusted. Items with unknown question IDs are
// skipped so one malformed record cannot block the whole review.
func (e *Engine) Results(ctx context.Context, email string) (ResultSummary, error) {
	p, err := e.store.Get(ctx, email)
	if err != nil {
		return ResultSummary{}, err
	}
	questions, err := e.bank.Questions(ctx)
	if err != nil {
		return ResultSummary{}, err
	}
	byQID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byQID[q.QID] = q
	}

	summary := ResultSummary{Review: []ReviewItem{}}
	for _, qid := range p.QuestionOrder {
		answer, answered := p.Answers[qid]
		if !answered {
			continue
		}
		q, ok := byQID[qid]
		if !ok {
			continue
		}
		correct := answer == q.CorrectKey
		if correct {
			summary.Score++
		}
		summary.Review = append(summary.Review, ReviewItem{
			QID:           qid,
			Text:          q.Text,
			YourAnswer:    answer,
			CorrectAnswer: q.CorrectKey,
			IsCorrect:     correct,
		})
	}

	summary.Total = len(p.QuestionOrder)
	if summary.Total == 0 {
		summary.Total = len(questions)
	}
	return summary, nil
}

func gradeAnswers(answers map[string]string, questions []domain.Question) int {
	byQID := make(map[string]string, len(questions))
	for _, q := range questions {
		byQID[q.QID] = q.CorrectKey
	}
	score := 0
	for qid, answer := range answers {
		if key, ok := byQID[qid]; ok && key != "" && answer == key {
			score++
		}
	}
	return score
}
