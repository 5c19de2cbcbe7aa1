// Package metrics exposes Prometheus collectors for grading activity.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
	OutcomeSoftFail  = "judge_failure"
	OutcomeError     = "error"
	OutcomeOK        = "ok"
)

// Metrics holds the collectors registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	validations       *prometheus.CounterVec
	validationLatency *prometheus.HistogramVec
	judgeCalls        *prometheus.CounterVec
	judgeLatency      *prometheus.HistogramVec
	attemptsRejected  *prometheus.CounterVec
	recalculations    *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onenglish",
				Name:      "validations_total",
				Help:      "Answers validated, by question type and outcome",
			},
			[]string{"type", "outcome"},
		),
		validationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "onenglish",
				Name:      "validation_duration_seconds",
				Help:      "End-to-end validation latency",
				Buckets:   []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 15, 30},
			},
			[]string{"type"},
		),
		judgeCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onenglish",
				Name:      "judge_calls_total",
				Help:      "Semantic judge calls, by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		judgeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "onenglish",
				Name:      "judge_duration_seconds",
				Help:      "Semantic judge call latency",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		),
		attemptsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onenglish",
				Name:      "attempts_rejected_total",
				Help:      "Submissions rejected because the attempt budget was spent",
			},
			[]string{"type"},
		),
		recalculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onenglish",
				Name:      "point_recalculations_total",
				Help:      "Composite point recalculations, by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.validations,
		m.validationLatency,
		m.judgeCalls,
		m.judgeLatency,
		m.attemptsRejected,
		m.recalculations,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveValidation records one scored answer
func (m *Metrics) ObserveValidation(t domain.QuestionType, scored *domain.ScoredAnswer, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeIncorrect
	switch {
	case scored == nil:
		outcome = OutcomeError
	case scored.JudgeFailure:
		outcome = OutcomeSoftFail
	case scored.IsCorrect:
		outcome = OutcomeCorrect
	}
	m.validations.WithLabelValues(string(t), outcome).Inc()
	m.validationLatency.WithLabelValues(string(t)).Observe(d.Seconds())
}

// ObserveJudge records a judge call. mode is "text" or "media".
func (m *Metrics) ObserveJudge(mode string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.judgeCalls.WithLabelValues(mode, JudgeOutcome(err)).Inc()
	m.judgeLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// AttemptRejected counts a submission refused by the attempt tracker
func (m *Metrics) AttemptRejected(t domain.QuestionType) {
	if m == nil {
		return
	}
	m.attemptsRejected.WithLabelValues(string(t)).Inc()
}

// ObserveRecalculation counts a composite point recalculation
func (m *Metrics) ObserveRecalculation(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.recalculations.WithLabelValues(outcome).Inc()
}

// JudgeOutcome maps a judge error to its metric label
func JudgeOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrJudgeTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrMalformedJudgeResponse):
		return "malformed"
	default:
		return "unavailable"
	}
}
