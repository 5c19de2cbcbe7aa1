package llm

// LLMRegistry defines the provider registry operations used by the judge
// wiring and the daemon status handlers
type LLMRegistry interface {
	// List returns all registered provider names
	List() []string

	// Resolve returns a provider by name or the default for "auto"
	Resolve(name string) (Provider, error)

	// ForMedia returns a provider accepting every given MIME type
	ForMedia(name string, mimeTypes []string) (Provider, error)

	// Register adds a provider to the registry
	Register(name string, p Provider)
}

// Ensure Registry implements LLMRegistry
var _ LLMRegistry = (*Registry)(nil)
