package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/assessment"
	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/media"
	"github.com/eriker75/onenglish-sub004/internal/queue"
	"github.com/eriker75/onenglish-sub004/internal/storage/sqlite"
)

// maxBodyBytes bounds request bodies; base64 media inflates uploads by a third
const maxBodyBytes = 64 << 20

// Sub-resources of a question. Question ids may contain slashes, so the
// action is the last path segment.
const (
	actionAnswers     = "answers"
	actionAttempts    = "attempts"
	actionRecalculate = "recalculate"
	actionPoints      = "points"
)

// splitQuestionPath separates "<id>/<action>" for known actions
func splitQuestionPath(p string) (id, action string) {
	p = strings.Trim(p, "/")
	if i := strings.LastIndex(p, "/"); i > 0 {
		switch tail := p[i+1:]; tail {
		case actionAnswers, actionAttempts, actionRecalculate, actionPoints:
			return p[:i], tail
		}
	}
	return p, ""
}

func (s *Server) handleQuestionRoute(w http.ResponseWriter, r *http.Request) {
	id, action := splitQuestionPath(r.PathValue("id"))
	if id == "" {
		s.jsonError(w, http.StatusBadRequest, "question id is required", nil)
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		s.handleGetQuestion(w, r, id)
	case r.Method == http.MethodGet && action == actionAnswers:
		s.handleHistory(w, r, id)
	case r.Method == http.MethodGet && action == actionAttempts:
		s.handleAttempts(w, r, id)
	case r.Method == http.MethodPost && action == actionAnswers:
		s.handleSubmitAnswer(w, r, id)
	case r.Method == http.MethodPost && action == actionRecalculate:
		s.handleRecalculate(w, r, id)
	case r.Method == http.MethodPut && action == actionPoints:
		s.handleUpdatePoints(w, r, id)
	default:
		s.jsonError(w, http.StatusNotFound, "route not found", nil)
	}
}

// Health & status

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":           "running",
		"version":          Version,
		"uptime_seconds":   int(time.Since(s.started).Seconds()),
		"storage":          cfg.Storage.Driver,
		"attempts_backend": cfg.AttemptsBackend(),
		"llm_providers":    s.app.LLM.List(),
		"queue":            s.app.Queue != nil && s.app.Queue.IsConnected(),
	})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	registered := make(map[string]bool)
	for _, name := range s.app.LLM.List() {
		registered[name] = true
	}

	providers := make([]map[string]any, 0, len(s.app.Config.LLM.Providers))
	for name, pc := range s.app.Config.LLM.Providers {
		providers = append(providers, map[string]any{
			"name":       name,
			"enabled":    pc.Enabled,
			"model":      pc.Model,
			"registered": registered[name],
		})
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"default":        s.app.Config.LLM.DefaultProvider,
		"judge":          s.app.Config.Judge.Provider,
		"media_provider": s.app.Config.Judge.MediaProvider,
		"providers":      providers,
	})
}

// Questions

func (s *Server) handleQuestionTypes(w http.ResponseWriter, r *http.Request) {
	types := s.app.Assessment.QuestionTypes()
	result := make([]map[string]any, 0, len(types))
	for _, t := range types {
		result = append(result, map[string]any{
			"type":        t,
			"family":      t.Family(),
			"answer_kind": t.AnswerKind(),
			"stage":       t.DefaultStage(),
		})
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"types": result})
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.app.Catalog.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result := make([]map[string]any, 0, len(questions))
	for _, q := range questions {
		result = append(result, map[string]any{
			"id":            q.ID,
			"type":          q.Type,
			"stage":         q.Stage,
			"points":        q.Points,
			"title":         q.Title,
			"sub_questions": len(q.SubQuestions),
		})
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"questions": result})
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request, id string) {
	q, err := s.app.Assessment.GetQuestion(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, q)
}

type submitAnswerRequest struct {
	StudentID string          `json:"student_id"`
	Answer    json.RawMessage `json:"answer"`
	Media     []media.Upload  `json:"media,omitempty"`
	ElapsedMs int64           `json:"elapsed_ms,omitempty"`
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request, id string) {
	if !s.limiter.allow(w, r) {
		return
	}
	var req submitAnswerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.StudentID == "" {
		s.jsonError(w, http.StatusBadRequest, "student_id is required", nil)
		return
	}

	files, err := media.DecodeAll(req.Media, s.limits)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	scored, err := s.app.Assessment.ValidateAnswer(r.Context(), assessment.Submission{
		QuestionID: id,
		StudentID:  req.StudentID,
		UserAnswer: req.Answer,
		Media:      files,
		ElapsedMs:  req.ElapsedMs,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, scored)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, id string) {
	studentID := r.URL.Query().Get("student_id")
	if _, err := s.app.Assessment.GetQuestion(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	history, err := s.app.Assessment.History(r.Context(), id, studentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if history == nil {
		history = []*domain.ScoredAnswer{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"question_id": id,
		"student_id":  studentID,
		"answers":     history,
	})
}

// handleEvents lists recorded domain events, newest first
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.app.EventLog == nil {
		s.jsonError(w, http.StatusNotImplemented, "event log requires sqlite storage", nil)
		return
	}

	q := r.URL.Query()
	filter := sqlite.EventFilter{
		Type:       q.Get("type"),
		QuestionID: q.Get("question_id"),
		StudentID:  q.Get("student_id"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.jsonError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp", err)
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		filter.Limit = min(n, 1000)
	}

	events, err := s.app.EventLog.Query(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request, id string) {
	studentID := r.URL.Query().Get("student_id")
	if studentID == "" {
		s.jsonError(w, http.StatusBadRequest, "student_id is required", nil)
		return
	}

	used, limit, err := s.app.Assessment.Attempts(r.Context(), id, studentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{
		"question_id":  id,
		"student_id":   studentID,
		"used":         used,
		"max_attempts": limit,
		"unlimited":    limit <= 0,
	}
	if limit > 0 {
		resp["remaining"] = max(limit-used, 0)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request, id string) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if s.app.Producer == nil {
			s.jsonError(w, http.StatusServiceUnavailable, "queue is not enabled", nil)
			return
		}
		job := queue.NewRecalcJob(id, queue.ReasonManual)
		if err := s.app.Producer.PublishRecalcJob(r.Context(), job); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.jsonResponse(w, http.StatusAccepted, map[string]any{
			"question_id": id,
			"job_id":      job.ID,
		})
		return
	}

	total, err := s.app.Assessment.RecalculateCompositePoints(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"question_id": id,
		"points":      total,
	})
}

func (s *Server) handleUpdatePoints(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Points *int `json:"points"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Points == nil {
		s.jsonError(w, http.StatusBadRequest, "points is required", nil)
		return
	}

	if err := s.app.Catalog.UpdatePoints(r.Context(), id, *req.Points); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	q, err := s.app.Catalog.GetQuestion(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(r.PathValue("id"), "/")
	if err := s.app.Catalog.DeleteQuestion(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helpers

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.jsonError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP status codes
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"correlation_id", GetCorrelationID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	s.jsonError(w, status, message, err)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound, "question not found"
	case errors.Is(err, domain.ErrUnsupportedQuestionType):
		return http.StatusUnprocessableEntity, "unsupported question type"
	case errors.Is(err, domain.ErrInvalidQuestion):
		return http.StatusUnprocessableEntity, "invalid question"
	case errors.Is(err, domain.ErrInvalidAnswerShape):
		return http.StatusBadRequest, "invalid answer"
	case errors.Is(err, domain.ErrAttemptsExceeded):
		return http.StatusTooManyRequests, "attempts exceeded"
	case errors.Is(err, domain.ErrCompositePointsManaged):
		return http.StatusConflict, "composite points are derived from sub-questions"
	case errors.Is(err, domain.ErrNestedComposite):
		return http.StatusConflict, "sub-questions cannot be composite"
	case errors.Is(err, assessment.ErrRecalculationUnavailable):
		return http.StatusServiceUnavailable, "point recalculation unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil && status < http.StatusInternalServerError {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
