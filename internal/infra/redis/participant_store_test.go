package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *ParticipantStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewParticipantStore(newClient(mr))
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func seedParticipant(t *testing.T, store *ParticipantStore, email string) {
	t.Helper()
	err := store.Create(context.Background(), domain.Participant{
		Email:    email,
		SchoolID: "sch_01",
		Status:   domain.StatusLobby,
		JoinedAt: time.Date(2026, 4, 8, 10, 45, 0, 0, domain.ExamZone),
	})
	if err != nil {
		t.Fatalf("seed participant: %v", err)
	}
}

func TestCreateIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedParticipant(t, store, "alice@sch01.edu")

	err := store.Create(ctx, domain.Participant{Email: "alice@sch01.edu", SchoolID: "sch_02"})
	if !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}

	p, err := store.Get(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.SchoolID != "sch_01" {
		t.Fatalf("losing create must not overwrite, got school %s", p.SchoolID)
	}
	if p.Status != domain.StatusLobby {
		t.Fatalf("unexpected status %s", p.Status)
	}
	if p.JoinedAt.IsZero() {
		t.Fatalf("expected joined_at round-trip")
	}
}

func TestGetMissingParticipant(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "ghost@sch01.edu"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestPatchMergesFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedParticipant(t, store, "alice@sch01.edu")

	inProgress := domain.StatusInProgress
	start := time.Date(2026, 4, 8, 11, 0, 0, 0, domain.ExamZone)
	idx := 0
	err := store.Patch(ctx, "alice@sch01.edu", app.ParticipantPatch{
		Status:        &inProgress,
		QuestionOrder: []string{"e1", "m1", "h1"},
		CurrentIndex:  &idx,
		StartTime:     &start,
	})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}

	// A concurrent patch touching other fields must not clobber these.
	strikes := 2
	if err := store.Patch(ctx, "alice@sch01.edu", app.ParticipantPatch{StrikeCount: &strikes}); err != nil {
		t.Fatalf("second patch: %v", err)
	}

	p, err := store.Get(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != domain.StatusInProgress || p.StrikeCount != 2 {
		t.Fatalf("unexpected record %+v", p)
	}
	if len(p.QuestionOrder) != 3 || p.QuestionOrder[0] != "e1" {
		t.Fatalf("question order lost: %v", p.QuestionOrder)
	}
	if !p.StartTime.Equal(start) {
		t.Fatalf("start time lost: %v", p.StartTime)
	}
}

func TestPatchStatusIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedParticipant(t, store, "alice@sch01.edu")

	completed := domain.StatusCompleted
	if err := store.Patch(ctx, "alice@sch01.edu", app.ParticipantPatch{Status: &completed}); err != nil {
		t.Fatalf("patch: %v", err)
	}

	// Stale writer tries to pull the record back to a live status.
	inProgress := domain.StatusInProgress
	if err := store.Patch(ctx, "alice@sch01.edu", app.ParticipantPatch{Status: &inProgress}); err != nil {
		t.Fatalf("stale patch: %v", err)
	}

	p, _ := store.Get(ctx, "alice@sch01.edu")
	if p.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED to stick, got %s", p.Status)
	}

	// Equal-rank terminal statuses must not overwrite each other either.
	disqualified := domain.StatusDisqualified
	if err := store.Patch(ctx, "alice@sch01.edu", app.ParticipantPatch{Status: &disqualified}); err != nil {
		t.Fatalf("terminal patch: %v", err)
	}
	p, _ = store.Get(ctx, "alice@sch01.edu")
	if p.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED preserved, got %s", p.Status)
	}
}

func TestPatchMissingParticipant(t *testing.T) {
	store := newTestStore(t)
	idx := 1
	err := store.Patch(context.Background(), "ghost@sch01.edu", app.ParticipantPatch{CurrentIndex: &idx})
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestRecordAnswerKeepsSubHash(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedParticipant(t, store, "alice@sch01.edu")

	if err := store.RecordAnswer(ctx, "alice@sch01.edu", "e1", "b"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordAnswer(ctx, "alice@sch01.edu", "e1", "c"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := store.RecordAnswer(ctx, "alice@sch01.edu", "m1", "a"); err != nil {
		t.Fatalf("second qid: %v", err)
	}

	p, err := store.Get(ctx, "alice@sch01.edu")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Answers["e1"] != "c" || p.Answers["m1"] != "a" {
		t.Fatalf("unexpected answers %v", p.Answers)
	}

	if err := store.RecordAnswer(ctx, "ghost@sch01.edu", "e1", "a"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestCompleteLatchFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedParticipant(t, store, "alice@sch01.edu")

	first := time.Date(2026, 4, 8, 11, 20, 0, 0, domain.ExamZone)
	applied, err := store.Complete(ctx, "alice@sch01.edu", first, "20m")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !applied {
		t.Fatalf("first completion must apply")
	}

	applied, err = store.Complete(ctx, "alice@sch01.edu", first.Add(time.Minute), "21m")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if applied {
		t.Fatalf("second completion must be a no-op")
	}

	p, _ := store.Get(ctx, "alice@sch01.edu")
	if !p.CompletedAt.Equal(first) || p.TimeTaken != "20m" {
		t.Fatalf("latch did not hold: completed_at=%v time_taken=%s", p.CompletedAt, p.TimeTaken)
	}
}

func TestDisqualifySetsTerminalState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedParticipant(t, store, "alice@sch01.edu")

	if err := store.Disqualify(ctx, "alice@sch01.edu"); err != nil {
		t.Fatalf("disqualify: %v", err)
	}
	p, _ := store.Get(ctx, "alice@sch01.edu")
	if p.Status != domain.StatusDisqualified || !p.IsDisqualified || p.StrikeCount != 3 {
		t.Fatalf("unexpected record %+v", p)
	}

	// A finished attempt cannot be disqualified afterwards.
	seedParticipant(t, store, "bob@sch01.edu")
	if _, err := store.Complete(ctx, "bob@sch01.edu", time.Now(), "5m"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Disqualify(ctx, "bob@sch01.edu"); err != nil {
		t.Fatalf("disqualify completed: %v", err)
	}
	p, _ = store.Get(ctx, "bob@sch01.edu")
	if p.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED preserved, got %s", p.Status)
	}
}

func TestDeleteRemovesRecordAndAnswers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedParticipant(t, store, "alice@sch01.edu")
	if err := store.RecordAnswer(ctx, "alice@sch01.edu", "e1", "a"); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := store.Delete(ctx, "alice@sch01.edu"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "alice@sch01.edu"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}
	if err := store.Delete(ctx, "alice@sch01.edu"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound on second delete, got %v", err)
	}
}
