package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// Hard errors propagate to the caller so the transport layer can map them to
// client-visible responses. Judge errors never leave the grading pipeline;
// they are folded into a soft verdict.
// -----------------------------------------------------------------------------

// Grading errors (hard)
var (
	ErrQuestionNotFound        = errors.New("question not found")
	ErrUnsupportedQuestionType = errors.New("unsupported question type")
	ErrInvalidAnswerShape      = errors.New("invalid answer shape")
	ErrAttemptsExceeded        = errors.New("attempts exceeded")
)

// Judge errors (soft)
var (
	ErrJudgeUnavailable       = errors.New("judge unavailable")
	ErrJudgeTimeout           = errors.New("judge timeout")
	ErrMalformedJudgeResponse = errors.New("malformed judge response")
)

// Authoring errors
var (
	ErrCompositePointsManaged = errors.New("composite question points are derived from sub-questions")
	ErrNestedComposite        = errors.New("sub-questions cannot have sub-questions")
	ErrInvalidQuestion        = errors.New("invalid question")
)

// IsJudgeFailure reports whether err is one of the recoverable judge errors
func IsJudgeFailure(err error) bool {
	return errors.Is(err, ErrJudgeUnavailable) ||
		errors.Is(err, ErrJudgeTimeout) ||
		errors.Is(err, ErrMalformedJudgeResponse)
}
