// Package judge adapts LLM providers into a strict grading contract. Callers
// receive either a structured Judgement or one of the domain judge errors;
// response text parsing never leaks out of this package.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/llm"
	"github.com/eriker75/onenglish-sub004/internal/metrics"
	"github.com/eriker75/onenglish-sub004/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTimeout bounds a single judge call
const DefaultTimeout = 30 * time.Second

// Judge grades free-form answers
type Judge interface {
	InvokeText(ctx context.Context, p Prompt) (*Judgement, error)
	InvokeWithMedia(ctx context.Context, p Prompt, media []domain.Media) (*Judgement, error)
}

// Prompt is a fixed-structure grading request
type Prompt struct {
	System string
	User   string
}

// Judgement is the parsed result of a judge call
type Judgement struct {
	IsCorrect  bool     `json:"is_correct"`
	Score      *float64 `json:"score,omitempty"`
	FeedbackEN string   `json:"feedback_en,omitempty"`
	FeedbackES string   `json:"feedback_es,omitempty"`
	ValidItems []string `json:"valid_items,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
}

// maxIncorrectFraction caps partial credit on answers the judge marks
// incorrect.
const maxIncorrectFraction = 0.5

// Fraction returns the score clamped to [0,1], or is_correct as 1/0. An
// answer marked incorrect earns at most maxIncorrectFraction.
func (j *Judgement) Fraction() float64 {
	if j.Score == nil {
		if j.IsCorrect {
			return 1
		}
		return 0
	}
	s := *j.Score
	if s > 1 && s <= 100 {
		// Some models answer on a percentage scale.
		s /= 100
	}
	switch {
	case s < 0:
		s = 0
	case s > 1:
		s = 1
	}
	if !j.IsCorrect && s > maxIncorrectFraction {
		return maxIncorrectFraction
	}
	return s
}

// Feedback returns the bilingual feedback, if any
func (j *Judgement) Feedback() domain.Feedback {
	return domain.Feedback{EN: j.FeedbackEN, ES: j.FeedbackES}
}

// LLMJudge implements Judge on top of llm providers
type LLMJudge struct {
	text      llm.Provider
	media     llm.Provider
	timeout   time.Duration
	maxTokens int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures an LLMJudge
type Option func(*LLMJudge)

// WithMediaProvider sets the provider used for media calls
func WithMediaProvider(p llm.Provider) Option {
	return func(j *LLMJudge) { j.media = p }
}

// WithTimeout sets the per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(j *LLMJudge) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithMaxTokens caps the judge reply length
func WithMaxTokens(n int) Option {
	return func(j *LLMJudge) { j.maxTokens = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(j *LLMJudge) { j.logger = l }
}

// WithMetrics records call outcomes and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *LLMJudge) { j.metrics = m }
}

// NewLLMJudge creates a judge backed by the given text provider. Without a
// media provider, media calls go to the text provider.
func NewLLMJudge(text llm.Provider, opts ...Option) *LLMJudge {
	j := &LLMJudge{
		text:      text,
		timeout:   DefaultTimeout,
		maxTokens: 1024,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.media == nil {
		j.media = text
	}
	return j
}

// InvokeText grades a text-only prompt
func (j *LLMJudge) InvokeText(ctx context.Context, p Prompt) (*Judgement, error) {
	return j.invoke(ctx, "text", j.text, p, nil)
}

// InvokeWithMedia grades a prompt plus every media file in a single call
func (j *LLMJudge) InvokeWithMedia(ctx context.Context, p Prompt, media []domain.Media) (*Judgement, error) {
	if len(media) == 0 {
		return j.InvokeText(ctx, p)
	}
	atts := make([]llm.Attachment, len(media))
	for i, m := range media {
		atts[i] = llm.Attachment{Name: m.Name, MIMEType: m.MIMEType, Data: m.Data}
	}
	return j.invoke(ctx, "media", j.media, p, atts)
}

func (j *LLMJudge) invoke(ctx context.Context, mode string, provider llm.Provider, p Prompt, atts []llm.Attachment) (*Judgement, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", domain.ErrJudgeUnavailable)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "judge."+mode)
	defer span.End()
	span.SetAttributes(
		attribute.String("judge.provider", provider.Name()),
		attribute.Int("judge.attachments", len(atts)),
	)

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	jd, err := j.call(ctx, provider, p, atts)
	elapsed := time.Since(start)
	j.metrics.ObserveJudge(mode, err, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		j.logger.Warn("judge call failed",
			"mode", mode,
			"provider", provider.Name(),
			"elapsed", elapsed,
			"error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("judge.is_correct", jd.IsCorrect))
	j.logger.Debug("judge call completed",
		"mode", mode,
		"provider", provider.Name(),
		"elapsed", elapsed,
		"is_correct", jd.IsCorrect)
	return jd, nil
}

func (j *LLMJudge) call(ctx context.Context, provider llm.Provider, p Prompt, atts []llm.Attachment) (*Judgement, error) {
	resp, err := provider.Generate(ctx, &llm.Request{
		System:      p.System,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: p.User}},
		Attachments: atts,
		MaxTokens:   j.maxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return Parse(resp.Content)
}

// classify maps a provider error to a domain judge error
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrJudgeTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrJudgeUnavailable, err)
}
