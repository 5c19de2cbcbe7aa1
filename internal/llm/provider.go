package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrNoDefaultProvider = errors.New("no default provider configured")
	ErrUnsupportedMedia  = errors.New("provider does not support media type")
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate performs a completion request
	Generate(ctx context.Context, req *Request) (*Response, error)

	// SupportsMedia reports whether the provider accepts the MIME type as an attachment
	SupportsMedia(mimeType string) bool
}

// Request represents an LLM request
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	StopSeqs    []string
	System      string // System prompt (some providers handle this separately)

	// Attachments are sent with the last user message in a single call
	Attachments []Attachment

	// JSON asks the provider for a JSON-only reply where it supports it
	JSON bool
}

// Attachment is binary media sent alongside a prompt
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Message represents a chat message
type Message struct {
	Role    Role
	Content string
}

// Role represents the role of a message sender
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response represents an LLM response
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage tracks token usage
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// checkAttachments fails fast when a provider cannot carry an attachment
func checkAttachments(p Provider, atts []Attachment) error {
	for _, a := range atts {
		if !p.SupportsMedia(a.MIMEType) {
			return fmt.Errorf("%w: %s (%s)", ErrUnsupportedMedia, a.MIMEType, p.Name())
		}
	}
	return nil
}

// lastUserIndex returns the index of the message attachments are bound to
func lastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func isAudio(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/")
}

// Registry manages LLM providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultP  string
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// SetDefault sets the default provider
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	r.defaultP = name
	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Default returns the default provider
// If default is "auto" or not found, returns the first available provider by name
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultP != "" && r.defaultP != "auto" {
		if p, ok := r.providers[r.defaultP]; ok {
			return p, nil
		}
	}

	names := r.sortedNames()
	if len(names) == 0 {
		return nil, ErrNoDefaultProvider
	}
	return r.providers[names[0]], nil
}

// Resolve returns the named provider, or the default when name is "" or "auto"
func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" || name == "auto" {
		return r.Default()
	}
	return r.Get(name)
}

// ForMedia returns the first provider (preferring name) that accepts every MIME type
func (r *Registry) ForMedia(name string, mimeTypes []string) (Provider, error) {
	accepts := func(p Provider) bool {
		for _, mt := range mimeTypes {
			if !p.SupportsMedia(mt) {
				return false
			}
		}
		return true
	}

	if p, err := r.Resolve(name); err == nil && accepts(p) {
		return p, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.sortedNames() {
		if p := r.providers[n]; accepts(p) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, strings.Join(mimeTypes, ","))
}

// List returns all registered provider names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

// DefaultName returns the name of the default provider
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultP
}

// Close releases provider resources that need it
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if c, ok := p.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
