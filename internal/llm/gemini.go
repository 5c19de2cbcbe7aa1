package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements the Provider interface for Google Gemini. It is
// the only bundled provider that accepts arbitrary audio, which makes it the
// default media provider for spoken answers.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds configuration for the Gemini provider
type GeminiConfig struct {
	APIKey   string
	Model    string // default: gemini-2.0-flash
	Endpoint string // optional API endpoint override
}

// NewGeminiProvider creates a Gemini provider with a long-lived client
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  cfg.Model,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// SupportsMedia accepts images, audio, video, PDF and plain text
func (p *GeminiProvider) SupportsMedia(mimeType string) bool {
	switch {
	case isImage(mimeType), isAudio(mimeType):
		return true
	case strings.HasPrefix(mimeType, "video/"), strings.HasPrefix(mimeType, "text/"):
		return true
	case mimeType == "application/pdf":
		return true
	}
	return false
}

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := checkAttachments(p, req.Attachments); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	m := p.client.GenerativeModel(model)
	m.GenerationConfig = geminiConfig(req)

	system, history, parts := geminiContents(req)
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	var (
		resp *genai.GenerateContentResponse
		err  error
	)
	if len(history) > 0 {
		cs := m.StartChat()
		cs.History = history
		resp, err = cs.SendMessage(ctx, parts...)
	} else {
		resp, err = m.GenerateContent(ctx, parts...)
	}
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", fromGoogleAPI(err))
	}

	return parseGeminiResponse(resp), nil
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func geminiConfig(req *Request) genai.GenerationConfig {
	cfg := genai.GenerationConfig{
		StopSequences: req.StopSeqs,
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		n := int32(req.MaxTokens)
		cfg.MaxOutputTokens = &n
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// geminiContents splits a request into system text, prior turns and the
// parts of the final user turn (which carries every attachment)
func geminiContents(req *Request) (string, []*genai.Content, []genai.Part) {
	system := req.System
	attachAt := lastUserIndex(req.Messages)

	var history []*genai.Content
	var parts []genai.Part
	for i, m := range req.Messages {
		if m.Role == RoleSystem {
			if system == "" {
				system = m.Content
			}
			continue
		}
		if i == attachAt {
			parts = append(parts, genai.Text(m.Content))
			for _, a := range req.Attachments {
				parts = append(parts, &genai.Blob{MIMEType: a.MIMEType, Data: a.Data})
			}
			continue
		}

		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	if parts == nil {
		for _, a := range req.Attachments {
			parts = append(parts, &genai.Blob{MIMEType: a.MIMEType, Data: a.Data})
		}
	}
	return system, history, parts
}

func parseGeminiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}

	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				out.Content += string(t)
			}
		}
		out.FinishReason = c.FinishReason.String()
		break
	}

	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out
}
