package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ParticipantStore keeps one hash per participant plus an answers sub-hash:
//
//	participant:{email}          field-level record (HSET merges)
//	participant:{email}:answers  {qid} -> selected option
//
// Conditional writes (create-if-absent, completion/disqualification latches,
// monotonic status) run as Lua scripts so concurrent joins and racing
// completion triggers resolve server-side in a single step.
type ParticipantStore struct {
	client *redis.Client
}

func NewParticipantStore(client *redis.Client) *ParticipantStore {
	return &ParticipantStore{client: client}
}

// createScript claims the key only if it does not exist yet; at most one
// creator wins.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// patchScript merges ARGV[2..] field pairs, then applies ARGV[1] as the new
// status only when it moves the record forward. A stale writer can never
// drag a finished attempt back to a live status.
var patchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local i = 2
while i < #ARGV do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i+1])
  i = i + 2
end
local new = ARGV[1]
if new ~= "" then
  local ranks = {["LOBBY"]=0, ["IN_PROGRESS"]=1, ["COMPLETED"]=2, ["DISQUALIFIED"]=2}
  local cur = redis.call("HGET", KEYS[1], "status")
  local cr = ranks[cur] or -1
  local nr = ranks[new] or -1
  if new == cur or nr > cr then
    redis.call("HSET", KEYS[1], "status", new)
  end
end
return 1
`)

var recordAnswerScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// completeScript is the one-way completion latch: the first writer sets the
// terminal fields, everyone after that is a no-op.
var completeScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "status")
if cur == false then
  return -1
end
if cur == "COMPLETED" or cur == "DISQUALIFIED" then
  return 0
end
redis.call("HSET", KEYS[1], "status", "COMPLETED", "completed_at", ARGV[1], "time_taken", ARGV[2])
return 1
`)

var disqualifyScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "status")
if cur == false then
  return -1
end
if cur == "COMPLETED" then
  return 0
end
redis.call("HSET", KEYS[1], "status", "DISQUALIFIED", "is_disqualified", "1", "strike_count", "3")
return 1
`)

func (s *ParticipantStore) Create(ctx context.Context, p domain.Participant) error {
	fields := []interface{}{
		"email", p.Email,
		"school_id", p.SchoolID,
		"school_name", p.SchoolName,
		"status", string(p.Status),
		"current_index", strconv.Itoa(p.CurrentIndex),
		"score", strconv.Itoa(p.Score),
		"strike_count", strconv.Itoa(p.StrikeCount),
		"is_disqualified", boolField(p.IsDisqualified),
		"joined_at", formatTime(p.JoinedAt),
	}
	created, err := createScript.Run(ctx, s.client, []string{s.key(p.Email)}, fields...).Int()
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	if created == 0 {
		return domain.ErrAlreadyJoined
	}
	return nil
}

func (s *ParticipantStore) Get(ctx context.Context, email string) (domain.Participant, error) {
	record, err := s.client.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	if len(record) == 0 {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	answers, err := s.client.HGetAll(ctx, s.answersKey(email)).Result()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get answers: %w", err)
	}
	return decodeParticipant(record, answers)
}

func (s *ParticipantStore) Patch(ctx context.Context, email string, patch app.ParticipantPatch) error {
	status := ""
	if patch.Status != nil {
		status = string(*patch.Status)
	}
	args := []interface{}{status}
	if patch.QuestionOrder != nil {
		encoded, err := json.Marshal(patch.QuestionOrder)
		if err != nil {
			return fmt.Errorf("encode question order: %w", err)
		}
		args = append(args, "question_order", string(encoded))
	}
	if patch.CurrentIndex != nil {
		args = append(args, "current_index", strconv.Itoa(*patch.CurrentIndex))
	}
	if patch.StrikeCount != nil {
		args = append(args, "strike_count", strconv.Itoa(*patch.StrikeCount))
	}
	if patch.Score != nil {
		args = append(args, "score", strconv.Itoa(*patch.Score))
	}
	if patch.StartTime != nil {
		args = append(args, "start_time", formatTime(*patch.StartTime))
	}
	if patch.SchoolName != nil {
		args = append(args, "school_name", *patch.SchoolName)
	}
	if len(args) == 1 && status == "" {
		return nil
	}

	res, err := patchScript.Run(ctx, s.client, []string{s.key(email)}, args...).Int()
	if err != nil {
		return fmt.Errorf("patch participant: %w", err)
	}
	if res == -1 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *ParticipantStore) RecordAnswer(ctx context.Context, email, qid, option string) error {
	res, err := recordAnswerScript.Run(ctx, s.client,
		[]string{s.key(email), s.answersKey(email)}, qid, option).Int()
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	if res == -1 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *ParticipantStore) Complete(ctx context.Context, email string, completedAt time.Time, timeTaken string) (bool, error) {
	res, err := completeScript.Run(ctx, s.client, []string{s.key(email)},
		formatTime(completedAt), timeTaken).Int()
	if err != nil {
		return false, fmt.Errorf("complete participant: %w", err)
	}
	if res == -1 {
		return false, domain.ErrParticipantNotFound
	}
	return res == 1, nil
}

func (s *ParticipantStore) Disqualify(ctx context.Context, email string) error {
	res, err := disqualifyScript.Run(ctx, s.client, []string{s.key(email)}).Int()
	if err != nil {
		return fmt.Errorf("disqualify participant: %w", err)
	}
	if res == -1 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *ParticipantStore) Delete(ctx context.Context, email string) error {
	deleted, err := s.client.Del(ctx, s.key(email), s.answersKey(email)).Result()
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if deleted == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *ParticipantStore) key(email string) string {
	return "participant:" + email
}

func (s *ParticipantStore) answersKey(email string) string {
	return "participant:" + email + ":answers"
}

func decodeParticipant(record, answers map[string]string) (domain.Participant, error) {
	p := domain.Participant{
		Email:          record["email"],
		SchoolID:       record["school_id"],
		SchoolName:     record["school_name"],
		Status:         domain.Status(record["status"]),
		TimeTaken:      record["time_taken"],
		IsDisqualified: record["is_disqualified"] == "1",
	}
	if raw := record["question_order"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.QuestionOrder); err != nil {
			return domain.Participant{}, fmt.Errorf("decode question order: %w", err)
		}
	}
	p.CurrentIndex = intField(record["current_index"])
	p.Score = intField(record["score"])
	p.StrikeCount = intField(record["strike_count"])
	p.StartTime = parseTime(record["start_time"])
	p.JoinedAt = parseTime(record["joined_at"])
	p.CompletedAt = parseTime(record["completed_at"])
	if len(answers) > 0 {
		p.Answers = answers
	}
	return p, nil
}

func intField(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(domain.ExamZone).Format(time.RFC3339)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
