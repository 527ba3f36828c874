package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proctor-quiz-service/internal/domain"
)

// SessionWriter upserts session rows in the scheduling store. Only the admin
// tooling writes sessions; everything else treats the directory as read-only.
type SessionWriter interface {
	PutSession(ctx context.Context, session domain.Session) error
}

// TestSessionID is the well-known session the reset affordance rewrites.
const TestSessionID = "test_session_now"

// Admin is operational tooling for rehearsals: it re-points the test
// session's timing window and clears named test identities. Not part of the
// exam-time hot path.
type Admin struct {
	sessions SessionWriter
	store    ParticipantStore
	now      func() time.Time
}

func NewAdmin(sessions SessionWriter, store ParticipantStore) *Admin {
	return NewAdminWithClock(sessions, store, time.Now)
}

// NewAdminWithClock is test-only for deterministic windows.
func NewAdminWithClock(sessions SessionWriter, store ParticipantStore, now func() time.Time) *Admin {
	return &Admin{sessions: sessions, store: store, now: now}
}

// ResetTestSession rewrites the test session to start lobbyMinutes from now
// and run for durationMinutes.
func (a *Admin) ResetTestSession(ctx context.Context, lobbyMinutes, durationMinutes int, schoolIDs []string) (domain.Session, error) {
	if lobbyMinutes <= 0 {
		lobbyMinutes = 3
	}
	if durationMinutes <= 0 {
		durationMinutes = 5
	}
	if len(schoolIDs) == 0 {
		return domain.Session{}, fmt.Errorf("%w: at least one school id is required", domain.ErrValidation)
	}

	session := domain.Session{
		ID:                 TestSessionID,
		Name:               "Test Session (Reset)",
		StartTime:          a.now().Add(time.Duration(lobbyMinutes) * time.Minute).In(domain.ExamZone),
		DurationMinutes:    durationMinutes,
		EntryWindowMinutes: lobbyMinutes,
		SchoolIDs:          schoolIDs,
	}
	if err := a.sessions.PutSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("reset test session: %w", err)
	}
	return session, nil
}

// ClearParticipants deletes the named test identities. Missing records are
// ignored.
func (a *Admin) ClearParticipants(ctx context.Context, emails []string) error {
	for _, email := range emails {
		if err := a.store.Delete(ctx, email); err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
			return fmt.Errorf("clear %s: %w", email, err)
		}
	}
	return nil
}
