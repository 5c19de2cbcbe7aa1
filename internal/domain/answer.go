package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Answer is the discriminated union of answer shapes. The variant is fixed by
// the question type's AnswerKind.
type Answer interface {
	Kind() AnswerKind
	isAnswer()
}

// TextAnswer is a single free-text or selected-option answer
type TextAnswer struct {
	Value string
}

// SequenceAnswer is an ordered list of tokens
type SequenceAnswer struct {
	Tokens []string
}

// SetAnswer is an unordered collection of items
type SetAnswer struct {
	Items []string
}

// SubAnswers maps sub-question ids to their answers
type SubAnswers struct {
	Values map[string]Answer
}

func (TextAnswer) Kind() AnswerKind     { return KindText }
func (SequenceAnswer) Kind() AnswerKind { return KindSequence }
func (SetAnswer) Kind() AnswerKind      { return KindSet }
func (SubAnswers) Kind() AnswerKind     { return KindSub }

func (TextAnswer) isAnswer()     {}
func (SequenceAnswer) isAnswer() {}
func (SetAnswer) isAnswer()      {}
func (SubAnswers) isAnswer()     {}

// DecodeAnswer converts a raw submitted payload into the variant the question
// expects. Composite payloads are decoded per sub-question.
func DecodeAnswer(q *Question, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		if q.Type.Family() == FamilyJudge {
			// Media-only submissions carry no text.
			return TextAnswer{}, nil
		}
		return nil, fmt.Errorf("%w: empty answer for %s", ErrInvalidAnswerShape, q.Type)
	}

	switch q.Type.AnswerKind() {
	case KindText:
		s, err := decodeScalar(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a string: %v", ErrInvalidAnswerShape, q.Type, err)
		}
		return TextAnswer{Value: s}, nil

	case KindSequence:
		tokens, err := decodeStrings(raw, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects an ordered list of strings: %v", ErrInvalidAnswerShape, q.Type, err)
		}
		return SequenceAnswer{Tokens: tokens}, nil

	case KindSet:
		items, err := decodeStrings(raw, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a list of strings: %v", ErrInvalidAnswerShape, q.Type, err)
		}
		return SetAnswer{Items: items}, nil

	case KindSub:
		var parts map[string]json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return nil, fmt.Errorf("%w: %s expects an object keyed by sub-question id", ErrInvalidAnswerShape, q.Type)
		}
		values := make(map[string]Answer, len(parts))
		for id, part := range parts {
			child, ok := q.Child(id)
			if !ok {
				return nil, fmt.Errorf("%w: unknown sub-question %q", ErrInvalidAnswerShape, id)
			}
			a, err := DecodeAnswer(child, part)
			if err != nil {
				return nil, fmt.Errorf("sub-question %s: %w", id, err)
			}
			values[id] = a
		}
		return SubAnswers{Values: values}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedQuestionType, q.Type)
}

// DecodeReference decodes a stored reference answer. Composite questions have
// no reference of their own.
func DecodeReference(t QuestionType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch t.AnswerKind() {
	case KindText:
		s, err := decodeScalar(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s reference: %w", t, err)
		}
		return TextAnswer{Value: s}, nil
	case KindSequence:
		tokens, err := decodeStrings(raw, false)
		if err != nil {
			return nil, fmt.Errorf("decode %s reference: %w", t, err)
		}
		return SequenceAnswer{Tokens: tokens}, nil
	case KindSet:
		items, err := decodeStrings(raw, true)
		if err != nil {
			return nil, fmt.Errorf("decode %s reference: %w", t, err)
		}
		return SetAnswer{Items: items}, nil
	case KindSub:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedQuestionType, t)
}

// EncodeAnswer renders an answer in its JSON storage form
func EncodeAnswer(a Answer) (json.RawMessage, error) {
	switch v := a.(type) {
	case nil:
		return nil, nil
	case TextAnswer:
		return json.Marshal(v.Value)
	case SequenceAnswer:
		return json.Marshal(v.Tokens)
	case SetAnswer:
		return json.Marshal(v.Items)
	case SubAnswers:
		out := make(map[string]json.RawMessage, len(v.Values))
		for id, child := range v.Values {
			b, err := EncodeAnswer(child)
			if err != nil {
				return nil, err
			}
			out[id] = b
		}
		return json.Marshal(out)
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidAnswerShape, a)
}

// decodeScalar accepts JSON strings, booleans and numbers as text
func decodeScalar(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("not a scalar: %s", truncate(string(raw), 40))
}

// decodeStrings accepts a JSON array of strings; when allowSingle is set a
// lone string is treated as a one-element list
func decodeStrings(raw json.RawMessage, allowSingle bool) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	if allowSingle {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []string{s}, nil
		}
	}
	return nil, fmt.Errorf("not a string list: %s", truncate(string(raw), 40))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
