package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"
)

// mockProvider is a test implementation of Provider
type mockProvider struct {
	name     string
	media    map[string]bool
	response *Response
	err      error
	calls    int
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockProvider) SupportsMedia(mimeType string) bool {
	return m.media[mimeType]
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	p := &mockProvider{name: "test"}

	r.Register("test", p)

	got, err := r.Get("test")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != p {
		t.Error("Get() returned different provider")
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("Get(missing) error = %v; want ErrProviderNotFound", err)
	}
}

func TestRegistry_Default(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Default(); !errors.Is(err, ErrNoDefaultProvider) {
		t.Errorf("Default() on empty registry error = %v; want ErrNoDefaultProvider", err)
	}

	r.Register("openai", &mockProvider{name: "openai"})
	r.Register("claude", &mockProvider{name: "claude"})

	p, err := r.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if p.Name() != "claude" {
		t.Errorf("Default() auto = %s; want claude (first by name)", p.Name())
	}

	if err := r.SetDefault("openai"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}
	p, _ = r.Resolve("auto")
	if p.Name() != "openai" {
		t.Errorf("Resolve(auto) = %s; want openai", p.Name())
	}

	if err := r.SetDefault("nope"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("SetDefault(nope) error = %v; want ErrProviderNotFound", err)
	}
}

func TestRegistry_ForMedia(t *testing.T) {
	r := NewRegistry()
	r.Register("claude", &mockProvider{name: "claude", media: map[string]bool{"image/png": true}})
	r.Register("gemini", &mockProvider{name: "gemini", media: map[string]bool{"image/png": true, "audio/mpeg": true}})

	p, err := r.ForMedia("claude", []string{"image/png"})
	if err != nil || p.Name() != "claude" {
		t.Errorf("ForMedia(claude, png) = %v, %v; want claude", p, err)
	}

	p, err = r.ForMedia("claude", []string{"image/png", "audio/mpeg"})
	if err != nil || p.Name() != "gemini" {
		t.Errorf("ForMedia(claude, png+mp3) = %v, %v; want gemini fallback", p, err)
	}

	if _, err := r.ForMedia("", []string{"video/mp4"}); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("ForMedia(video) error = %v; want ErrUnsupportedMedia", err)
	}
}

func TestRegistry_List_Sorted(t *testing.T) {
	r := NewRegistry()
	r.Register("ollama", &mockProvider{name: "ollama"})
	r.Register("claude", &mockProvider{name: "claude"})
	r.Register("gemini", &mockProvider{name: "gemini"})

	got := strings.Join(r.List(), ",")
	if got != "claude,gemini,ollama" {
		t.Errorf("List() = %s; want claude,gemini,ollama", got)
	}
}

func TestDefaultResilientConfig(t *testing.T) {
	cfg := DefaultResilientConfig()

	if !cfg.EnableCircuitBreaker || !cfg.EnableRetry || !cfg.EnableBulkhead || !cfg.EnableRateLimit {
		t.Error("all resilience patterns should be enabled by default")
	}
	if cfg.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.MaxConcurrent)
	}
	if cfg.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", cfg.MaxAttempts)
	}
}

func TestNewResilientProvider_NoPatterns(t *testing.T) {
	rp := NewResilientProvider(&mockProvider{name: "test"}, ResilientConfig{})

	if rp.circuitBreaker != nil || rp.retrier != nil || rp.bulkhead != nil || rp.rateLimit != nil {
		t.Error("no pattern should be configured when all are disabled")
	}
}

func TestResilientProvider_Generate_Success(t *testing.T) {
	p := &mockProvider{
		name:     "test",
		media:    map[string]bool{"audio/wav": true},
		response: &Response{Content: `{"is_correct": true}`},
	}
	rp := NewResilientProvider(p, ResilientConfig{
		EnableRetry:    true,
		EnableBulkhead: true,
		MaxConcurrent:  2,
	})

	resp, err := rp.Generate(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != `{"is_correct": true}` {
		t.Errorf("Content = %v", resp.Content)
	}
	if !rp.SupportsMedia("audio/wav") {
		t.Error("SupportsMedia should delegate to wrapped provider")
	}
}

func TestResilientProvider_Generate_NonRetryableNotRetried(t *testing.T) {
	p := &mockProvider{name: "test", err: &StatusError{Provider: "test", Code: 400, Body: "bad request"}}
	rp := NewResilientProvider(p, ResilientConfig{EnableRetry: true, MaxAttempts: 3})

	if _, err := rp.Generate(context.Background(), &Request{}); err == nil {
		t.Fatal("Generate() expected error")
	}
	if p.calls != 1 {
		t.Errorf("calls = %d; want 1 (400 is not retryable)", p.calls)
	}
}

func TestIsRetryableHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&StatusError{Code: 429}, true},
		{fmt.Errorf("judge: %w", &StatusError{Code: 503}), true},
		{&StatusError{Code: 401}, false},
		{errors.New("API error (status 503)"), false},
		{context.DeadlineExceeded, false},
		{fmt.Errorf("wrap: %w", ErrUnsupportedMedia), false},
	}

	for _, tt := range tests {
		if got := isRetryableHTTPError(tt.err); got != tt.want {
			t.Errorf("isRetryableHTTPError(%v) = %v; want %v", tt.err, got, tt.want)
		}
	}
}

func TestClaudeProvider_BuildRequest_Attachments(t *testing.T) {
	p := NewClaudeProvider(ClaudeConfig{APIKey: "k"})

	got := p.buildRequest(&Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "grade"},
			{Role: RoleUser, Content: "describe"},
		},
		Attachments: []Attachment{
			{MIMEType: "image/png", Data: []byte("a")},
			{MIMEType: "image/jpeg", Data: []byte("b")},
		},
	})

	if got.System != "grade" {
		t.Errorf("System = %q; want grade", got.System)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("len(Messages) = %d; want 1", len(got.Messages))
	}
	blocks := got.Messages[0].Content
	if len(blocks) != 3 {
		t.Fatalf("len(blocks) = %d; want 2 images + 1 text", len(blocks))
	}
	if blocks[0].Type != "image" || blocks[0].Source.MediaType != "image/png" {
		t.Errorf("blocks[0] = %+v; want png image", blocks[0])
	}
	if blocks[2].Type != "text" || blocks[2].Text != "describe" {
		t.Errorf("blocks[2] = %+v; want text", blocks[2])
	}
	if got.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d; want default 1024", got.MaxTokens)
	}
}

func TestClaudeProvider_RejectsAudio(t *testing.T) {
	p := NewClaudeProvider(ClaudeConfig{APIKey: "k"})

	_, err := p.Generate(context.Background(), &Request{
		Messages:    []Message{{Role: RoleUser, Content: "x"}},
		Attachments: []Attachment{{MIMEType: "audio/mpeg"}},
	})
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("Generate() error = %v; want ErrUnsupportedMedia", err)
	}
}

func TestClaudeProvider_Generate_HTTPSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Path = %v, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %v, want test-key", r.Header.Get("x-api-key"))
		}
		w.Write([]byte(`{"id":"msg","type":"message","role":"assistant",
			"content":[{"type":"text","text":"{\"is_correct\":true}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer server.Close()

	p := NewClaudeProvider(ClaudeConfig{APIKey: "test-key", BaseURL: server.URL})
	resp, err := p.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != `{"is_correct":true}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %+v; want 10/5", resp.Usage)
	}
}

func TestClaudeProvider_Generate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
	}))
	defer server.Close()

	p := NewClaudeProvider(ClaudeConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := p.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError || se.Provider != "claude" {
		t.Fatalf("Generate() error = %v; want claude StatusError 500", err)
	}
	if !strings.Contains(se.Body, "internal server error") {
		t.Errorf("Body = %q", se.Body)
	}
}

func TestOpenAIProvider_BuildRequest_AudioAndJSON(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k"})

	got := p.buildRequest(&Request{
		System:      "grade",
		Messages:    []Message{{Role: RoleUser, Content: "spell"}},
		Attachments: []Attachment{{MIMEType: "audio/mpeg", Data: []byte("mp3")}},
		JSON:        true,
	})

	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("ResponseFormat = %+v; want json_object", got.ResponseFormat)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("len(Messages) = %d; want system + user", len(got.Messages))
	}
	parts, ok := got.Messages[1].Content.([]openaiPart)
	if !ok {
		t.Fatalf("user content = %T; want []openaiPart", got.Messages[1].Content)
	}
	if len(parts) != 2 || parts[1].InputAudio == nil || parts[1].InputAudio.Format != "mp3" {
		t.Errorf("parts = %+v; want text + mp3 input_audio", parts)
	}
}

func TestOpenAIProvider_Generate_HTTPSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %v", r.Header.Get("Authorization"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "gpt-4o" {
			t.Errorf("model = %v; want gpt-4o", body["model"])
		}
		w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	resp, err := p.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "ok" || resp.FinishReason != "stop" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestOllamaProvider_BuildRequest(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{Model: "llava"})

	got := p.buildRequest(&Request{
		System:      "grade",
		Messages:    []Message{{Role: RoleUser, Content: "describe"}},
		Attachments: []Attachment{{MIMEType: "image/png", Data: []byte("png")}},
		JSON:        true,
		MaxTokens:   100,
	})

	if got.Stream {
		t.Error("Stream = true; want false")
	}
	if got.Format != "json" {
		t.Errorf("Format = %q; want json", got.Format)
	}
	if len(got.Messages) != 2 || len(got.Messages[1].Images) != 1 {
		t.Errorf("Messages = %+v; want image on user message", got.Messages)
	}
	if got.Options == nil || got.Options.NumPredict != 100 {
		t.Errorf("Options = %+v; want NumPredict 100", got.Options)
	}
}

func TestOllamaProvider_Generate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: server.URL})
	_, err := p.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	var se *StatusError
	if !errors.As(err, &se) || !se.Temporary() {
		t.Errorf("Generate() error = %v; want temporary StatusError", err)
	}
}

func TestGeminiContents(t *testing.T) {
	system, history, parts := geminiContents(&Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "grade"},
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: "ok"},
			{Role: RoleUser, Content: "listen"},
		},
		Attachments: []Attachment{{MIMEType: "audio/ogg", Data: []byte("ogg")}},
	})

	if system != "grade" {
		t.Errorf("system = %q; want grade", system)
	}
	if len(history) != 2 || history[1].Role != "model" {
		t.Errorf("history = %+v; want user + model turns", history)
	}
	if len(parts) != 2 {
		t.Errorf("len(parts) = %d; want text + blob", len(parts))
	}
}

func TestGeminiProvider_SupportsMedia(t *testing.T) {
	p := &GeminiProvider{}
	for _, mt := range []string{"audio/ogg", "audio/webm", "image/png", "application/pdf"} {
		if !p.SupportsMedia(mt) {
			t.Errorf("SupportsMedia(%s) = false; want true", mt)
		}
	}
	if p.SupportsMedia("application/zip") {
		t.Error("SupportsMedia(zip) = true; want false")
	}
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), GeminiConfig{}); err == nil {
		t.Error("NewGeminiProvider() without key expected error")
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Provider: "openai", Code: 429, Body: "slow down"}
	if got := err.Error(); got != "openai API error (status 429): slow down" {
		t.Errorf("Error() = %q", got)
	}
	if (&StatusError{Code: 404}).Temporary() {
		t.Error("404 should not be temporary")
	}
}

func TestFromGoogleAPI(t *testing.T) {
	err := fromGoogleAPI(fmt.Errorf("rpc: %w", &googleapi.Error{Code: 503, Message: "overloaded"}))
	var se *StatusError
	if !errors.As(err, &se) || se.Provider != "gemini" || !se.Temporary() {
		t.Errorf("fromGoogleAPI() = %v; want temporary gemini StatusError", err)
	}

	plain := errors.New("boom")
	if got := fromGoogleAPI(plain); got != plain {
		t.Errorf("fromGoogleAPI(plain) = %v; want unchanged", got)
	}
}
