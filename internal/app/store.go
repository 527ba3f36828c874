package app

import (
	"context"
	"time"

	"proctor-quiz-service/internal/domain"
)

// ParticipantStore is the durable per-participant exam record. Implementations
// must provide atomic create-if-absent and field-level merges so concurrent
// writers (quiz engine, anti-cheat monitor) cannot clobber each other.
type ParticipantStore interface {
	// Create writes a fresh record only if the email is unclaimed.
	// Returns domain.ErrAlreadyJoined when the key exists.
	Create(ctx context.Context, p domain.Participant) error
	Get(ctx context.Context, email string) (domain.Participant, error)
	// Patch merges only the fields present in the patch. Status changes are
	// applied only when they move the record forward; a stale writer can
	// never resurrect a finished attempt.
	Patch(ctx context.Context, email string, patch ParticipantPatch) error
	// RecordAnswer upserts a single answer without touching other fields.
	RecordAnswer(ctx context.Context, email, qid, option string) error
	// Complete latches the record into COMPLETED. The first writer wins;
	// later calls (and calls on disqualified records) report applied=false.
	Complete(ctx context.Context, email string, completedAt time.Time, timeTaken string) (applied bool, err error)
	// Disqualify latches the record into DISQUALIFIED with three strikes.
	// No-op on already-completed records.
	Disqualify(ctx context.Context, email string) error
	// Delete removes a record entirely. Administrative reset only.
	Delete(ctx context.Context, email string) error
}

// ParticipantPatch carries an update of independent fields; nil fields are
// left untouched by Patch.
type ParticipantPatch struct {
	Status        *domain.Status
	QuestionOrder []string
	CurrentIndex  *int
	StrikeCount   *int
	Score         *int
	StartTime     *time.Time
	SchoolName    *string
}

// QuestionBank supplies the immutable question set, correct keys included.
// Only the engine may see unredacted questions.
type QuestionBank interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

// SessionDirectory resolves a school to its scheduled exam window.
type SessionDirectory interface {
	Resolve(ctx context.Context, schoolID string) (domain.Session, error)
}
