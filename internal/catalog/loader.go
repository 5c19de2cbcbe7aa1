// Package catalog loads question packs from YAML and owns the authoring
// operations that affect point totals.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eriker75/onenglish-sub004/internal/domain"
	"gopkg.in/yaml.v3"
)

// PackFile is the YAML structure of pack.yaml
type PackFile struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Stage       string   `yaml:"stage"`
	MaxAttempts int      `yaml:"max_attempts"`
	Questions   []string `yaml:"questions"`
}

// QuestionFile is the YAML structure of one question. Content and answer are
// free-form YAML converted to JSON.
type QuestionFile struct {
	ID               string            `yaml:"id"`
	Type             string            `yaml:"type"`
	Stage            string            `yaml:"stage"`
	Points           int               `yaml:"points"`
	ValidationMethod string            `yaml:"validation_method"`
	Title            string            `yaml:"title"`
	Instructions     string            `yaml:"instructions"`
	Content          any               `yaml:"content"`
	Options          []string          `yaml:"options"`
	Answer           any               `yaml:"answer"`
	Configuration    map[string]string `yaml:"configuration"`
	MaxAttempts      int               `yaml:"max_attempts"`
	SubQuestions     []QuestionFile    `yaml:"sub_questions"`
}

// Pack is a named, ordered set of questions
type Pack struct {
	ID          string
	Name        string
	Version     string
	Description string
	QuestionIDs []string
}

// Loader reads packs laid out as basePath/<pack>/pack.yaml with one YAML file
// per question next to it
type Loader struct {
	basePath string
}

// NewLoader creates a loader rooted at basePath
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// BasePath returns the root directory
func (l *Loader) BasePath() string {
	return l.basePath
}

func (l *Loader) readPack(packID string) (*PackFile, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, packID, "pack.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read pack file: %w", err)
	}
	var pf PackFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse pack file: %w", err)
	}
	if pf.ID == "" {
		pf.ID = packID
	}
	return &pf, nil
}

// LoadPack loads a pack manifest
func (l *Loader) LoadPack(packID string) (*Pack, error) {
	pf, err := l.readPack(packID)
	if err != nil {
		return nil, err
	}
	pack := &Pack{
		ID:          pf.ID,
		Name:        pf.Name,
		Version:     pf.Version,
		Description: pf.Description,
		QuestionIDs: make([]string, len(pf.Questions)),
	}
	copy(pack.QuestionIDs, pf.Questions)
	return pack, nil
}

// LoadQuestion loads a single question file. slug is relative to the pack
// directory, without the .yaml extension.
func (l *Loader) LoadQuestion(packID, slug string) (*domain.Question, error) {
	pf, err := l.readPack(packID)
	if err != nil {
		return nil, err
	}
	return l.loadQuestion(pf, slug)
}

func (l *Loader) loadQuestion(pf *PackFile, slug string) (*domain.Question, error) {
	if strings.Contains(slug, "..") {
		return nil, fmt.Errorf("invalid question slug: %s", slug)
	}
	data, err := os.ReadFile(filepath.Join(l.basePath, pf.ID, slug+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("read question file: %w", err)
	}

	var qf QuestionFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parse question file: %w", err)
	}
	if qf.ID == "" {
		qf.ID = pf.ID + "/" + slug
	}
	if qf.Stage == "" {
		qf.Stage = pf.Stage
	}
	if qf.MaxAttempts == 0 {
		qf.MaxAttempts = pf.MaxAttempts
	}

	q, err := qf.ToQuestion()
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", qf.ID, err)
	}
	return q, nil
}

// LoadPackQuestions loads every question a pack lists, in order
func (l *Loader) LoadPackQuestions(packID string) ([]*domain.Question, error) {
	pf, err := l.readPack(packID)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Question, 0, len(pf.Questions))
	for _, slug := range pf.Questions {
		q, err := l.loadQuestion(pf, slug)
		if err != nil {
			return nil, fmt.Errorf("load question %s/%s: %w", pf.ID, slug, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// LoadAll loads the questions of every pack under the base directory
func (l *Loader) LoadAll() ([]*domain.Question, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("read questions directory: %w", err)
	}

	var out []*domain.Question
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.basePath, entry.Name(), "pack.yaml")); os.IsNotExist(err) {
			continue
		}
		qs, err := l.LoadPackQuestions(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("load pack %s: %w", entry.Name(), err)
		}
		out = append(out, qs...)
	}
	return out, nil
}

// ToQuestion converts the file form into a validated domain question
func (qf *QuestionFile) ToQuestion() (*domain.Question, error) {
	t, err := domain.ParseQuestionType(qf.Type)
	if err != nil {
		return nil, err
	}

	q := &domain.Question{
		ID:               qf.ID,
		Type:             t,
		Stage:            domain.Stage(qf.Stage),
		Points:           qf.Points,
		ValidationMethod: domain.ValidationMethod(strings.ToUpper(qf.ValidationMethod)),
		Title:            qf.Title,
		Instructions:     qf.Instructions,
		Options:          qf.Options,
		Configuration:    qf.Configuration,
		MaxAttempts:      qf.MaxAttempts,
	}
	if q.Stage == "" {
		q.Stage = t.DefaultStage()
	}
	if q.ValidationMethod == "" {
		q.ValidationMethod = defaultMethod(t)
	}

	if qf.Content != nil {
		if q.Content, err = json.Marshal(qf.Content); err != nil {
			return nil, fmt.Errorf("encode content: %w", err)
		}
	}
	if qf.Answer != nil {
		raw, err := json.Marshal(qf.Answer)
		if err != nil {
			return nil, fmt.Errorf("encode answer: %w", err)
		}
		if q.Answer, err = domain.DecodeReference(t, raw); err != nil {
			return nil, err
		}
	}

	for i := range qf.SubQuestions {
		sf := &qf.SubQuestions[i]
		if sf.ID == "" {
			sf.ID = fmt.Sprintf("%s-%d", qf.ID, i+1)
		}
		if sf.MaxAttempts == 0 {
			sf.MaxAttempts = qf.MaxAttempts
		}
		child, err := sf.ToQuestion()
		if err != nil {
			return nil, fmt.Errorf("sub-question %s: %w", sf.ID, err)
		}
		child.ParentID = q.ID
		child.Position = i
		q.SubQuestions = append(q.SubQuestions, child)
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// defaultMethod picks AI grading for judge-backed types and AUTO otherwise
func defaultMethod(t domain.QuestionType) domain.ValidationMethod {
	if t.Family() == domain.FamilyJudge {
		return domain.ValidationAI
	}
	return domain.ValidationAuto
}
