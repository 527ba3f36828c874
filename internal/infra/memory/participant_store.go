package memory

import (
	"context"
	"sync"
	"time"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
)

// ParticipantStore is the in-memory twin of the Redis store, with the same
// conditional-write semantics. Used in tests and redis-less deployments.
type ParticipantStore struct {
	mu           sync.Mutex
	participants map[string]*domain.Participant
}

func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{participants: make(map[string]*domain.Participant)}
}

func (s *ParticipantStore) Create(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.Email]; ok {
		return domain.ErrAlreadyJoined
	}
	stored := p
	stored.Answers = cloneAnswers(p.Answers)
	stored.QuestionOrder = append([]string(nil), p.QuestionOrder...)
	s.participants[p.Email] = &stored
	return nil
}

func (s *ParticipantStore) Get(_ context.Context, email string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.participants[email]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	out := *stored
	out.Answers = cloneAnswers(stored.Answers)
	out.QuestionOrder = append([]string(nil), stored.QuestionOrder...)
	return out, nil
}

func (s *ParticipantStore) Patch(_ context.Context, email string, patch app.ParticipantPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.participants[email]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if patch.QuestionOrder != nil {
		stored.QuestionOrder = append([]string(nil), patch.QuestionOrder...)
	}
	if patch.CurrentIndex != nil {
		stored.CurrentIndex = *patch.CurrentIndex
	}
	if patch.StrikeCount != nil {
		stored.StrikeCount = *patch.StrikeCount
	}
	if patch.Score != nil {
		stored.Score = *patch.Score
	}
	if patch.StartTime != nil {
		stored.StartTime = *patch.StartTime
	}
	if patch.SchoolName != nil {
		stored.SchoolName = *patch.SchoolName
	}
	if patch.Status != nil {
		// Status only moves forward; a stale writer cannot resurrect a
		// finished attempt.
		next := *patch.Status
		if next == stored.Status || next.Rank() > stored.Status.Rank() {
			stored.Status = next
		}
	}
	return nil
}

func (s *ParticipantStore) RecordAnswer(_ context.Context, email, qid, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.participants[email]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if stored.Answers == nil {
		stored.Answers = make(map[string]string)
	}
	stored.Answers[qid] = option
	return nil
}

func (s *ParticipantStore) Complete(_ context.Context, email string, completedAt time.Time, timeTaken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.participants[email]
	if !ok {
		return false, domain.ErrParticipantNotFound
	}
	if stored.Status.Terminal() {
		return false, nil
	}
	stored.Status = domain.StatusCompleted
	stored.CompletedAt = completedAt.In(domain.ExamZone)
	stored.TimeTaken = timeTaken
	return true, nil
}

func (s *ParticipantStore) Disqualify(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.participants[email]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if stored.Status == domain.StatusCompleted {
		return nil
	}
	stored.Status = domain.StatusDisqualified
	stored.IsDisqualified = true
	stored.StrikeCount = app.MaxStrikes
	return nil
}

func (s *ParticipantStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[email]; !ok {
		return domain.ErrParticipantNotFound
	}
	delete(s.participants, email)
	return nil
}

func cloneAnswers(answers map[string]string) map[string]string {
	if answers == nil {
		return nil
	}
	out := make(map[string]string, len(answers))
	for k, v := range answers {
		out[k] = v
	}
	return out
}
