package domain

import (
	"fmt"
	"strings"
	"time"
)

// ExamZone is the fixed offset all persisted timestamps are rendered in.
// Sessions are scheduled in this zone regardless of where participants sit.
var ExamZone = time.FixedZone("+08:00", 8*60*60)

// Status is the lifecycle state of a participant's attempt.
// Transitions are monotonic: LOBBY -> IN_PROGRESS -> {COMPLETED | DISQUALIFIED}.
type Status string

const (
	StatusLobby        Status = "LOBBY"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusCompleted    Status = "COMPLETED"
	StatusDisqualified Status = "DISQUALIFIED"
)

// Rank orders statuses for the monotonic-transition check. Terminal states
// share the top rank so neither can overwrite the other.
func (s Status) Rank() int {
	switch s {
	case StatusLobby:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusDisqualified:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the attempt can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDisqualified
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Participant is one student's exam attempt record, keyed by email.
type Participant struct {
	Email          string
	SchoolID       string
	SchoolName     string
	Status         Status
	QuestionOrder  []string
	CurrentIndex   int
	Answers        map[string]string
	Score          int
	StrikeCount    int
	IsDisqualified bool
	StartTime      time.Time
	JoinedAt       time.Time
	CompletedAt    time.Time
	TimeTaken      string
}

// Session is a scheduled exam window shared by a group of schools.
type Session struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	StartTime          time.Time `json:"startTime"`
	DurationMinutes    int       `json:"durationMinutes"`
	EntryWindowMinutes int       `json:"entryWindowMinutes,omitempty"`
	SchoolIDs          []string  `json:"schoolIds"`
}

// DefaultEntryWindowMinutes applies when a session does not override the
// lobby window.
const DefaultEntryWindowMinutes = 30

func (s Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

func (s Session) EntryOpensAt() time.Time {
	window := s.EntryWindowMinutes
	if window <= 0 {
		window = DefaultEntryWindowMinutes
	}
	return s.StartTime.Add(-time.Duration(window) * time.Minute)
}

func (s Session) Includes(schoolID string) bool {
	for _, id := range s.SchoolIDs {
		if id == schoolID {
			return true
		}
	}
	return false
}

// Question is an immutable MCQ item. CorrectKey must never reach a client;
// use Redacted before serving.
type Question struct {
	QID        string     `json:"qid"`
	Difficulty Difficulty `json:"difficulty"`
	Text       string     `json:"text"`
	Options    []string   `json:"options"`
	ImageURL   string     `json:"image_url,omitempty"`
	CorrectKey string     `json:"correct_key,omitempty"`
}

// Redacted returns a copy safe to send to clients.
func (q Question) Redacted() Question {
	q.CorrectKey = ""
	q.Options = append([]string(nil), q.Options...)
	return q
}

// FormatTimeTaken renders a duration as "3m 12s 45ms", dropping zero-valued
// units. Sub-millisecond durations collapse to "0ms".
func FormatTimeTaken(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000

	parts := make([]string, 0, 3)
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	if millis > 0 {
		parts = append(parts, fmt.Sprintf("%dms", millis))
	}
	if len(parts) == 0 {
		return "0ms"
	}
	return strings.Join(parts, " ")
}
