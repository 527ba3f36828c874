package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"proctor-quiz-service/internal/domain"
)

// JoinOutcome distinguishes a first-time claim from a resumed attempt.
type JoinOutcome string

const (
	JoinCreated JoinOutcome = "CREATED"
	JoinResumed JoinOutcome = "RESUMED"
)

// JoinResult is what the identity ledger reports back to the caller.
// PrevStatus is only meaningful for JoinResumed; it lets the caller route a
// completed user to results and an in-progress one back into the quiz.
type JoinResult struct {
	Outcome    JoinOutcome
	PrevStatus domain.Status
}

// Ledger owns the at-most-once claim of an email identity to a school.
type Ledger struct {
	store ParticipantStore
	now   func() time.Time
}

func NewLedger(store ParticipantStore) *Ledger {
	return NewLedgerWithClock(store, time.Now)
}

// NewLedgerWithClock is test-only for deterministic join timestamps.
func NewLedgerWithClock(store ParticipantStore, now func() time.Time) *Ledger {
	return &Ledger{store: store, now: now}
}

// Join claims the email for the school or resumes an existing attempt.
// At most one concurrent creator wins; everyone else observes the committed
// record. Retrying a successful join resolves to RESUMED, so the call is
// idempotent from the caller's perspective.
func (l *Ledger) Join(ctx context.Context, email, schoolID, schoolName string) (JoinResult, error) {
	email = strings.TrimSpace(email)
	schoolID = strings.TrimSpace(schoolID)
	if email == "" || schoolID == "" {
		return JoinResult{}, fmt.Errorf("%w: email and school id are required", domain.ErrValidation)
	}

	fresh := domain.Participant{
		Email:      email,
		SchoolID:   schoolID,
		SchoolName: schoolName,
		Status:     domain.StatusLobby,
		JoinedAt:   l.now(),
	}

	err := l.store.Create(ctx, fresh)
	if err == nil {
		return JoinResult{Outcome: JoinCreated, PrevStatus: domain.StatusLobby}, nil
	}
	if !errors.Is(err, domain.ErrAlreadyJoined) {
		return JoinResult{}, fmt.Errorf("join %s: %w", email, err)
	}

	existing, err := l.store.Get(ctx, email)
	if err != nil {
		return JoinResult{}, fmt.Errorf("join %s: %w", email, err)
	}
	if existing.SchoolID != schoolID {
		return JoinResult{}, domain.ErrSchoolMismatch
	}
	if existing.IsDisqualified || existing.Status == domain.StatusDisqualified {
		return JoinResult{}, domain.ErrDisqualified
	}
	return JoinResult{Outcome: JoinResumed, PrevStatus: existing.Status}, nil
}
