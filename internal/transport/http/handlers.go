package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
)

// API exposes the exam-time endpoints plus the admin reset affordance.
type API struct {
	ledger    *app.Ledger
	engine    *app.Engine
	store     app.ParticipantStore
	directory app.SessionDirectory
	admin     *app.Admin
	now       func() time.Time
}

func NewAPI(ledger *app.Ledger, engine *app.Engine, store app.ParticipantStore, directory app.SessionDirectory, admin *app.Admin) *API {
	return &API{
		ledger:    ledger,
		engine:    engine,
		store:     store,
		directory: directory,
		admin:     admin,
		now:       time.Now,
	}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/join", a.handleJoin)
	mux.HandleFunc("/api/session", a.handleSession)
	mux.HandleFunc("/api/time", a.handleTime)
	mux.HandleFunc("/api/quiz/state", a.handleState)
	mux.HandleFunc("/api/quiz/questions", a.handleQuestions)
	mux.HandleFunc("/api/quiz/answer", a.handleAnswer)
	mux.HandleFunc("/api/quiz/complete", a.handleComplete)
	mux.HandleFunc("/api/quiz/results", a.handleResults)
	mux.HandleFunc("/api/admin/reset", a.handleReset)
}

type joinRequest struct {
	Email      string `json:"email"`
	SchoolID   string `json:"schoolId"`
	SchoolName string `json:"schoolName"`
}

type joinResponse struct {
	Success    bool   `json:"success"`
	Status     string `json:"status"`
	PrevStatus string `json:"prevStatus,omitempty"`
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	result, err := a.ledger.Join(r.Context(), req.Email, req.SchoolID, req.SchoolName)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	resp := joinResponse{Success: true, Status: string(result.Outcome)}
	if result.Outcome == app.JoinResumed {
		resp.PrevStatus = string(result.PrevStatus)
	}
	writeJSON(w, http.StatusOK, resp)
}

type sessionResponse struct {
	StartTime          string `json:"startTime"`
	DurationMinutes    int    `json:"durationMinutes"`
	EntryWindowMinutes int    `json:"entryWindowMinutes,omitempty"`
	Name               string `json:"name"`
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	schoolID := r.URL.Query().Get("schoolId")
	if schoolID == "" {
		writeError(w, http.StatusBadRequest, "schoolId is required", "")
		return
	}
	session, err := a.directory.Resolve(r.Context(), schoolID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "No exam scheduled for this school.", "")
			return
		}
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		StartTime:          session.StartTime.In(domain.ExamZone).Format(time.RFC3339),
		DurationMinutes:    session.DurationMinutes,
		EntryWindowMinutes: session.EntryWindowMinutes,
		Name:               session.Name,
	})
}

// handleTime serves the server clock for offset sampling.
func (a *API) handleTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"time": a.now().UnixMilli()})
}

type stateResponse struct {
	Email          string            `json:"email"`
	SchoolID       string            `json:"school_id"`
	SchoolName     string            `json:"school_name,omitempty"`
	Status         string            `json:"status"`
	CurrentIndex   int               `json:"current_index"`
	QuestionOrder  []string          `json:"question_order,omitempty"`
	Answers        map[string]string `json:"answers,omitempty"`
	Score          int               `json:"score"`
	StrikeCount    int               `json:"strike_count"`
	IsDisqualified bool              `json:"is_disqualified"`
	StartTime      string            `json:"start_time,omitempty"`
	JoinedAt       string            `json:"joined_at,omitempty"`
	CompletedAt    string            `json:"completed_at,omitempty"`
	TimeTaken      string            `json:"time_taken,omitempty"`
}

type stateWriteRequest struct {
	Email    string     `json:"email"`
	SchoolID string     `json:"schoolId"`
	State    statePatch `json:"state"`
}

type statePatch struct {
	Status       *domain.Status    `json:"status"`
	CurrentIndex *int              `json:"current_index"`
	Answers      map[string]string `json:"answers"`
	StrikeCount  *int              `json:"strike_count"`
	CompletedAt  *string           `json:"completed_at"`
	TimeTaken    *string           `json:"time_taken"`
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleStateRead(w, r)
	case http.MethodPost:
		a.handleStateWrite(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleStateRead(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required", "")
		return
	}
	p, err := a.store.Get(r.Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "No state found"})
			return
		}
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		Email:          p.Email,
		SchoolID:       p.SchoolID,
		SchoolName:     p.SchoolName,
		Status:         string(p.Status),
		CurrentIndex:   p.CurrentIndex,
		QuestionOrder:  p.QuestionOrder,
		Answers:        p.Answers,
		Score:          p.Score,
		StrikeCount:    p.StrikeCount,
		IsDisqualified: p.IsDisqualified,
		StartTime:      formatZoned(p.StartTime),
		JoinedAt:       formatZoned(p.JoinedAt),
		CompletedAt:    formatZoned(p.CompletedAt),
		TimeTaken:      p.TimeTaken,
	})
}

// handleStateWrite merges a partial state into the stored record. Completion
// and disqualification go through the store latches, so a racing or replayed
// write can never resurrect a finished attempt.
func (a *API) handleStateWrite(w http.ResponseWriter, r *http.Request) {
	var req stateWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Email == "" || req.SchoolID == "" {
		writeError(w, http.StatusBadRequest, "email and schoolId are required", "")
		return
	}

	ctx := r.Context()
	p, err := a.store.Get(ctx, req.Email)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if p.SchoolID != req.SchoolID {
		a.writeDomainError(w, domain.ErrSchoolMismatch)
		return
	}

	for qid, option := range req.State.Answers {
		if err := a.store.RecordAnswer(ctx, req.Email, qid, option); err != nil {
			a.writeDomainError(w, err)
			return
		}
	}

	patch := app.ParticipantPatch{
		CurrentIndex: req.State.CurrentIndex,
		StrikeCount:  req.State.StrikeCount,
	}
	if req.State.Status != nil {
		switch *req.State.Status {
		case domain.StatusCompleted:
			completedAt := a.now()
			if req.State.CompletedAt != nil {
				if t, err := time.Parse(time.RFC3339, *req.State.CompletedAt); err == nil {
					completedAt = t
				}
			}
			timeTaken := ""
			if req.State.TimeTaken != nil {
				timeTaken = *req.State.TimeTaken
			}
			if _, err := a.store.Complete(ctx, req.Email, completedAt, timeTaken); err != nil {
				a.writeDomainError(w, err)
				return
			}
		case domain.StatusDisqualified:
			if err := a.store.Disqualify(ctx, req.Email); err != nil {
				a.writeDomainError(w, err)
				return
			}
		default:
			patch.Status = req.State.Status
		}
	}

	if err := a.store.Patch(ctx, req.Email, patch); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type questionsResponse struct {
	Questions    []domain.Question `json:"questions"`
	CurrentIndex int               `json:"currentIndex"`
	Answers      map[string]string `json:"answers,omitempty"`
	StartTime    string            `json:"startTime"`
	Deadline     string            `json:"deadline"`
	Total        int               `json:"total"`
}

func (a *API) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required", "")
		return
	}
	view, err := a.engine.Begin(r.Context(), email)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questionsResponse{
		Questions:    view.Questions,
		CurrentIndex: view.CurrentIndex,
		Answers:      view.Answers,
		StartTime:    formatZoned(view.StartTime),
		Deadline:     formatZoned(view.Deadline),
		Total:        len(view.Questions),
	})
}

type answerRequest struct {
	Email  string `json:"email"`
	QID    string `json:"qid"`
	Option string `json:"option"`
}

type answerResponse struct {
	CurrentIndex int  `json:"currentIndex"`
	Completed    bool `json:"completed"`
	Total        int  `json:"total"`
}

func (a *API) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	progress, err := a.engine.SubmitAnswer(r.Context(), req.Email, req.QID, req.Option)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{
		CurrentIndex: progress.CurrentIndex,
		Completed:    progress.Completed,
		Total:        progress.Total,
	})
}

// handleComplete is the client timer's deadline trigger. Idempotent: racing
// triggers resolve to the first completion.
func (a *API) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required", "")
		return
	}
	applied, err := a.engine.ForceComplete(r.Context(), req.Email)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "applied": applied})
}

func (a *API) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required", "")
		return
	}
	summary, err := a.engine.Results(r.Context(), email)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type resetRequest struct {
	LobbyMinutes    int      `json:"lobbyMinutes"`
	DurationMinutes int      `json:"durationMinutes"`
	SchoolIDs       []string `json:"schoolIds"`
	ClearEmails     []string `json:"clearEmails"`
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.admin == nil {
		writeError(w, http.StatusNotFound, "admin interface disabled", "")
		return
	}
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	session, err := a.admin.ResetTestSession(r.Context(), req.LobbyMinutes, req.DurationMinutes, req.SchoolIDs)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if err := a.admin.ClearParticipants(r.Context(), req.ClearEmails); err != nil {
		a.writeDomainError(w, err)
		return
	}
	if inv, ok := a.directory.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": session.ID,
		"startTime": session.StartTime.Format(time.RFC3339),
		"duration":  session.DurationMinutes,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeDomainError maps the error taxonomy to distinct machine-readable
// codes; UI routing depends on telling a sabotage block from a generic
// failure.
func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	var finished *domain.AttemptFinishedError
	switch {
	case errors.As(err, &finished):
		writeJSON(w, http.StatusConflict, map[string]string{
			"code":   "FINISHED",
			"status": string(finished.Status),
		})
	case errors.Is(err, domain.ErrSchoolMismatch):
		writeError(w, http.StatusForbidden, "This email is already active with a different school session.", "SABOTAGE_BLOCK")
	case errors.Is(err, domain.ErrDisqualified):
		writeError(w, http.StatusForbidden, "User is disqualified.", "DISQUALIFIED")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrParticipantNotFound):
		writeError(w, http.StatusNotFound, "User not found", "")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "No exam scheduled for this school.", "")
	default:
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func formatZoned(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(domain.ExamZone).Format(time.RFC3339)
}
