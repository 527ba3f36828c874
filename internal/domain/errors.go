package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation flags missing or malformed caller input.
	ErrValidation = errors.New("invalid input")
	// ErrAlreadyJoined is returned by a create-if-absent write when the email is taken.
	ErrAlreadyJoined = errors.New("participant already exists")
	// ErrSchoolMismatch rejects a join that would reassign an email to a different school.
	ErrSchoolMismatch = errors.New("email already active with a different school")
	// ErrDisqualified is terminal; the participant cannot rejoin.
	ErrDisqualified = errors.New("participant is disqualified")
	// ErrParticipantNotFound is returned when no state exists for an email.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrSessionNotFound means no exam is scheduled for the given school.
	ErrSessionNotFound = errors.New("no session scheduled for school")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptFinished signals that the attempt reached a terminal status.
	ErrAttemptFinished = errors.New("attempt already finished")
)

// AttemptFinishedError carries the terminal status so callers can route
// completed participants to results and disqualified ones away.
type AttemptFinishedError struct {
	Status Status
}

func (e *AttemptFinishedError) Error() string {
	return fmt.Sprintf("attempt already finished: %s", e.Status)
}

func (e *AttemptFinishedError) Is(target error) bool {
	return target == ErrAttemptFinished
}
