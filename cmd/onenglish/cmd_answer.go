package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/media"
)

// cmdQuestions lists questions, or shows one when an id is given
func cmdQuestions(args []string) error {
	c := newClient(daemonAddr)

	if len(args) > 0 {
		var q json.RawMessage
		if err := c.get(questionPath(args[0], ""), &q); err != nil {
			return err
		}
		return printJSON(q)
	}

	var resp struct {
		Questions []struct {
			ID           string `json:"id"`
			Type         string `json:"type"`
			Stage        string `json:"stage"`
			Points       int    `json:"points"`
			SubQuestions int    `json:"sub_questions"`
		} `json:"questions"`
	}
	if err := c.get("/v1/questions", &resp); err != nil {
		return err
	}
	if len(resp.Questions) == 0 {
		fmt.Println("No questions. Add packs under ~/.onenglish/questions and run 'onenglish seed'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTAGE\tPOINTS\tSUBS")
	for _, q := range resp.Questions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", q.ID, q.Type, q.Stage, q.Points, q.SubQuestions)
	}
	return w.Flush()
}

// cmdAnswer submits an answer, or lists history with "answer history"
func cmdAnswer(args []string) error {
	if len(args) > 0 && args[0] == "history" {
		return cmdAnswerHistory(args[1:])
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: onenglish answer <question-id> <student-id> [answer-json] [media-file...]")
	}

	body := map[string]any{"student_id": args[1]}
	if len(args) > 2 {
		body["answer"] = parseAnswerArg(args[2])
	}
	if len(args) > 3 {
		uploads, err := readUploads(args[3:])
		if err != nil {
			return err
		}
		body["media"] = uploads
	}

	var scored domain.ScoredAnswer
	if err := newClient(daemonAddr).post(questionPath(args[0], "answers"), body, &scored); err != nil {
		return err
	}
	printScored(&scored)
	return nil
}

func cmdAnswerHistory(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: onenglish answer history <question-id> <student-id>")
	}
	var resp struct {
		Answers []domain.ScoredAnswer `json:"answers"`
	}
	path := questionPath(args[0], "answers") + "?student_id=" + url.QueryEscape(args[1])
	if err := newClient(daemonAddr).get(path, &resp); err != nil {
		return err
	}
	if len(resp.Answers) == 0 {
		fmt.Println("No answers yet.")
		return nil
	}
	for i := range resp.Answers {
		a := &resp.Answers[i]
		fmt.Printf("%s  %s\n", a.ScoredAt.Local().Format("2006-01-02 15:04"), scoreLine(a))
	}
	return nil
}

// cmdRecalc recalculates a composite question's points
func cmdRecalc(args []string) error {
	var id string
	async := false
	for _, a := range args {
		switch a {
		case "--async", "-a":
			async = true
		default:
			id = a
		}
	}
	if id == "" {
		return fmt.Errorf("usage: onenglish recalc <question-id> [--async]")
	}

	path := questionPath(id, "recalculate")
	if async {
		path += "?async=true"
	}
	var resp struct {
		Points int    `json:"points"`
		JobID  string `json:"job_id"`
	}
	if err := newClient(daemonAddr).post(path, nil, &resp); err != nil {
		return err
	}
	if resp.JobID != "" {
		fmt.Printf("✓ Recalculation queued (job %s)\n", resp.JobID)
		return nil
	}
	fmt.Printf("✓ %s now worth %d points\n", id, resp.Points)
	return nil
}

// parseAnswerArg accepts JSON as typed; anything that is not valid JSON is
// sent as a plain string
func parseAnswerArg(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func readUploads(paths []string) ([]media.Upload, error) {
	uploads := make([]media.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read media file: %w", err)
		}
		uploads = append(uploads, media.Upload{
			Name: filepath.Base(p),
			Data: base64.StdEncoding.EncodeToString(data),
		})
	}
	return uploads, nil
}

func scoreLine(a *domain.ScoredAnswer) string {
	mark := "✗"
	if a.IsCorrect {
		mark = "✓"
	}
	line := fmt.Sprintf("%s %d/%d points (attempt %d)", mark, a.PointsEarned, a.MaxPoints, a.AttemptNumber)
	if a.JudgeFailure {
		line += " [judge unavailable]"
	}
	return line
}

func printScored(a *domain.ScoredAnswer) {
	fmt.Println(scoreLine(a))
	if a.Feedback.EN != "" {
		fmt.Printf("  EN: %s\n", a.Feedback.EN)
	}
	if a.Feedback.ES != "" {
		fmt.Printf("  ES: %s\n", a.Feedback.ES)
	}
	if t, ok := a.Details["transcript"].(string); ok && t != "" {
		fmt.Printf("  Transcript: %s\n", strings.TrimSpace(t))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
