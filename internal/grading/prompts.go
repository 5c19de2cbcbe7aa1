package grading

import (
	"fmt"
	"strings"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/judge"
)

const responseContract = `
Respond with a single JSON object and nothing else:
{"is_correct": boolean, "score": number between 0 and 1, "feedback_en": string, "feedback_es": string, "transcript": string}
- "feedback_en" is one or two short sentences for the student in English.
- "feedback_es" is the same feedback in Spanish.
- "transcript" is what the student said when audio is attached, otherwise "".`

// systemPrompt returns grading instructions for a judge-backed type
func systemPrompt(t domain.QuestionType) string {
	base := `You are an English teacher grading one answer from a Spanish-speaking learner.
Be fair and encouraging, but only mark an answer correct when it meets the task.

TASK:`

	var task string
	switch t {
	case domain.TypeSpelling:
		task = `
- The learner spells the reference word letter by letter (usually in audio).
- Correct only if every letter is present and in order. Ignore pauses and filler words.`
	case domain.TypeReportIt:
		task = `
- The learner rewrites the given sentence in reported (indirect) speech.
- Check backshifted tenses, pronoun changes and time expressions.
- Minor punctuation differences are acceptable.`
	case domain.TypeSentenceMaker:
		task = `
- The learner writes a sentence about the attached image(s) or the given prompt.
- Correct if the sentence is grammatical and describes the content.`
	case domain.TypeTales:
		task = `
- The learner writes a short story inspired by the attached image(s) or prompt.
- Score coherence, grammar and vocabulary. Correct if the story is understandable and on topic.`
	case domain.TypeSuperbrain:
		task = `
- The learner answers the question out loud or in writing.
- Correct if the answer addresses the question with acceptable English.`
	case domain.TypeTellMeAboutIt:
		task = `
- The learner talks about the given topic.
- Score fluency, relevance and grammar. Correct if the response stays on topic with acceptable English.`
	case domain.TypeDebate:
		task = `
- The learner argues for the stance given in the question.
- Score how persuasive, relevant and well structured the argument is.`
	case domain.TypeGossip:
		task = `
- The learner reports what they heard in the question audio.
- Correct if the report keeps the meaning of the reference answer.`
	default:
		task = `
- Compare the learner's answer with the reference answer and decide if it is acceptable.`
	}
	return base + task + "\n" + responseContract
}

// semanticPrompt builds the fixed-structure judge prompt for q
func semanticPrompt(q *domain.Question, answer string, mediaCount int) judge.Prompt {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Question type: %s\n\n", q.Type))
	if q.Title != "" {
		sb.WriteString(fmt.Sprintf("## Title\n%s\n\n", q.Title))
	}
	if q.Instructions != "" {
		sb.WriteString(fmt.Sprintf("## Instructions\n%s\n\n", q.Instructions))
	}
	if len(q.Content) > 0 && string(q.Content) != "null" {
		sb.WriteString(fmt.Sprintf("## Content\n%s\n\n", truncate(string(q.Content), 4000)))
	}
	if len(q.Options) > 0 {
		sb.WriteString(fmt.Sprintf("## Options\n%s\n\n", strings.Join(q.Options, ", ")))
	}
	if ref := q.ReferenceText(); ref != "" {
		sb.WriteString(fmt.Sprintf("## Reference answer\n%s\n\n", ref))
	}

	sb.WriteString("## Learner answer\n")
	if answer == "" {
		sb.WriteString("(no text, see attached media)\n\n")
	} else {
		sb.WriteString(truncate(answer, 8000) + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("## Attached media files: %d\n", mediaCount))

	return judge.Prompt{
		System: systemPrompt(q.Type),
		User:   sb.String(),
	}
}

// associationPrompt asks the judge which candidate items fit the question
func associationPrompt(q *domain.Question, candidates []string, required int) judge.Prompt {
	system := `You are an English teacher checking a learner's word list.
Keep only the items that are real English words or phrases AND clearly relate to the question.
Do not correct spelling; a misspelled item is invalid.

Respond with a single JSON object and nothing else:
{"is_correct": boolean, "valid_items": [string], "feedback_en": string, "feedback_es": string}
- "valid_items" lists the accepted items exactly as given.
- "is_correct" is true when valid_items has at least the required number of items.`

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Question type: %s\n\n", q.Type))
	if q.Instructions != "" {
		sb.WriteString(fmt.Sprintf("## Instructions\n%s\n\n", q.Instructions))
	}
	if len(q.Content) > 0 && string(q.Content) != "null" {
		sb.WriteString(fmt.Sprintf("## Content\n%s\n\n", truncate(string(q.Content), 4000)))
	}
	sb.WriteString(fmt.Sprintf("## Required valid items: %d\n\n", required))
	sb.WriteString("## Learner items\n")
	for _, c := range candidates {
		sb.WriteString("- " + c + "\n")
	}

	return judge.Prompt{System: system, User: sb.String()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
