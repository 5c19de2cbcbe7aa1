package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eriker75/onenglish-sub004/internal/assessment"
	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/media"
	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
)

// Version reported to MCP clients
const Version = "0.1.0"

// Server exposes answer validation as MCP tools
type Server struct {
	mcpServer  *server.Server
	assessment *assessment.Service
	limits     media.Limits
	logger     *slog.Logger
}

// Config contains configuration for the MCP server
type Config struct {
	Assessment  *assessment.Service
	MediaLimits media.Limits
	Logger      *slog.Logger
}

// NewServer creates a new MCP server
func NewServer(cfg Config) *Server {
	s := &Server{
		assessment: cfg.Assessment,
		limits:     cfg.MediaLimits,
		logger:     cfg.Logger,
	}
	if s.limits.MaxFiles == 0 {
		s.limits = media.DefaultLimits()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.mcpServer = server.New(server.Info{
		Name:    "onenglish",
		Version: Version,
	}, server.WithInstructions(`
OnEnglish grades student answers to English-learning questions.

Available tools:
- onenglish_question_types: List supported question types and their answer shapes
- onenglish_get_question: Show a question without its reference answer
- onenglish_validate_answer: Score a student's answer and consume one attempt
- onenglish_attempts: Show how many attempts a student has left
- onenglish_history: List a student's scored answers for a question
- onenglish_recalculate_points: Recompute a composite question's total from its sub-questions

Answer shapes:
- text: a JSON string
- sequence: an ordered list of strings
- set: a list of strings, order ignored
- sub_answers: an object keyed by sub-question id
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("onenglish_question_types").
		Description("List supported question types with their grading family and expected answer shape.").
		Handler(s.handleQuestionTypes)

	s.mcpServer.Tool("onenglish_get_question").
		Description("Get a question and its sub-questions. Reference answers are never returned.").
		Handler(s.handleGetQuestion)

	s.mcpServer.Tool("onenglish_validate_answer").
		Description("Validate and score a student's answer. Each call consumes one attempt.").
		Handler(s.handleValidateAnswer)

	s.mcpServer.Tool("onenglish_attempts").
		Description("Show attempts used and remaining for a student on a question.").
		Handler(s.handleAttempts)

	s.mcpServer.Tool("onenglish_history").
		Description("List a student's scored answers for a question, oldest first.").
		Handler(s.handleHistory)

	s.mcpServer.Tool("onenglish_recalculate_points").
		Description("Recalculate a composite question's points as the sum of its sub-questions.").
		Handler(s.handleRecalculate)
}

// Input/Output types for tools

type QuestionTypesInput struct{}

type QuestionTypeInfo struct {
	Type       string `json:"type"`
	Family     string `json:"family"`
	AnswerKind string `json:"answer_kind"`
	Stage      string `json:"stage"`
}

type QuestionTypesOutput struct {
	Types []QuestionTypeInfo `json:"types"`
}

type QuestionInput struct {
	QuestionID string `json:"question_id" jsonschema:"description=Question ID in format pack/slug"`
}

type ValidateInput struct {
	QuestionID string         `json:"question_id" jsonschema:"description=Question ID in format pack/slug"`
	StudentID  string         `json:"student_id" jsonschema:"description=Student identifier"`
	Answer     any            `json:"answer,omitempty" jsonschema:"description=Answer in the shape the question type expects"`
	Media      []media.Upload `json:"media,omitempty" jsonschema:"description=Base64 audio or image files for spoken and visual answers"`
	ElapsedMs  int64          `json:"elapsed_ms,omitempty" jsonschema:"description=Time the student spent answering"`
}

type ValidateOutput struct {
	IsCorrect     bool   `json:"is_correct"`
	PointsEarned  int    `json:"points_earned"`
	MaxPoints     int    `json:"max_points"`
	AttemptNumber int    `json:"attempt_number"`
	FeedbackEN    string `json:"feedback_en"`
	FeedbackES    string `json:"feedback_es"`
	JudgeFailure  bool   `json:"judge_failure,omitempty"`
	Summary       string `json:"summary"`
}

type StudentInput struct {
	QuestionID string `json:"question_id" jsonschema:"description=Question ID in format pack/slug"`
	StudentID  string `json:"student_id" jsonschema:"description=Student identifier"`
}

type AttemptsOutput struct {
	Used        int  `json:"used"`
	MaxAttempts int  `json:"max_attempts"`
	Unlimited   bool `json:"unlimited"`
	Remaining   int  `json:"remaining,omitempty"`
}

type HistoryOutput struct {
	Answers []*domain.ScoredAnswer `json:"answers"`
}

type RecalculateOutput struct {
	QuestionID string `json:"question_id"`
	Points     int    `json:"points"`
}

// Tool handlers

func (s *Server) handleQuestionTypes(ctx context.Context, _ QuestionTypesInput) (QuestionTypesOutput, error) {
	types := s.assessment.QuestionTypes()
	out := QuestionTypesOutput{Types: make([]QuestionTypeInfo, 0, len(types))}
	for _, t := range types {
		out.Types = append(out.Types, QuestionTypeInfo{
			Type:       string(t),
			Family:     string(t.Family()),
			AnswerKind: string(t.AnswerKind()),
			Stage:      string(t.DefaultStage()),
		})
	}
	return out, nil
}

func (s *Server) handleGetQuestion(ctx context.Context, input QuestionInput) (*domain.Question, error) {
	if input.QuestionID == "" {
		return nil, errors.New("question_id is required")
	}
	q, err := s.assessment.GetQuestion(ctx, input.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *Server) handleValidateAnswer(ctx context.Context, input ValidateInput) (ValidateOutput, error) {
	if input.QuestionID == "" || input.StudentID == "" {
		return ValidateOutput{}, errors.New("question_id and student_id are required")
	}

	var raw json.RawMessage
	if input.Answer != nil {
		b, err := json.Marshal(input.Answer)
		if err != nil {
			return ValidateOutput{}, fmt.Errorf("encode answer: %w", err)
		}
		raw = b
	}
	files, err := media.DecodeAll(input.Media, s.limits)
	if err != nil {
		return ValidateOutput{}, err
	}

	scored, err := s.assessment.ValidateAnswer(ctx, assessment.Submission{
		QuestionID: input.QuestionID,
		StudentID:  input.StudentID,
		UserAnswer: raw,
		Media:      files,
		ElapsedMs:  input.ElapsedMs,
	})
	if err != nil {
		return ValidateOutput{}, fmt.Errorf("validate answer: %w", err)
	}

	return ValidateOutput{
		IsCorrect:     scored.IsCorrect,
		PointsEarned:  scored.PointsEarned,
		MaxPoints:     scored.MaxPoints,
		AttemptNumber: scored.AttemptNumber,
		FeedbackEN:    scored.Feedback.EN,
		FeedbackES:    scored.Feedback.ES,
		JudgeFailure:  scored.JudgeFailure,
		Summary:       summarize(scored),
	}, nil
}

func summarize(a *domain.ScoredAnswer) string {
	mark := "✗"
	if a.IsCorrect {
		mark = "✓"
	}
	s := fmt.Sprintf("%s %d/%d points (attempt %d)", mark, a.PointsEarned, a.MaxPoints, a.AttemptNumber)
	if a.JudgeFailure {
		s += " | not graded, judge unavailable"
	}
	return s
}

func (s *Server) handleAttempts(ctx context.Context, input StudentInput) (AttemptsOutput, error) {
	if input.QuestionID == "" || input.StudentID == "" {
		return AttemptsOutput{}, errors.New("question_id and student_id are required")
	}
	used, limit, err := s.assessment.Attempts(ctx, input.QuestionID, input.StudentID)
	if err != nil {
		return AttemptsOutput{}, fmt.Errorf("attempts: %w", err)
	}
	out := AttemptsOutput{Used: used, MaxAttempts: limit, Unlimited: limit <= 0}
	if limit > 0 {
		out.Remaining = max(limit-used, 0)
	}
	return out, nil
}

func (s *Server) handleHistory(ctx context.Context, input StudentInput) (HistoryOutput, error) {
	if input.QuestionID == "" {
		return HistoryOutput{}, errors.New("question_id is required")
	}
	answers, err := s.assessment.History(ctx, input.QuestionID, input.StudentID)
	if err != nil {
		return HistoryOutput{}, fmt.Errorf("history: %w", err)
	}
	if answers == nil {
		answers = []*domain.ScoredAnswer{}
	}
	return HistoryOutput{Answers: answers}, nil
}

func (s *Server) handleRecalculate(ctx context.Context, input QuestionInput) (RecalculateOutput, error) {
	if input.QuestionID == "" {
		return RecalculateOutput{}, errors.New("question_id is required")
	}
	total, err := s.assessment.RecalculateCompositePoints(ctx, input.QuestionID)
	if err != nil {
		return RecalculateOutput{}, fmt.Errorf("recalculate: %w", err)
	}
	s.logger.Info("composite points recalculated via mcp", "question_id", input.QuestionID, "points", total)
	return RecalculateOutput{QuestionID: input.QuestionID, Points: total}, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
