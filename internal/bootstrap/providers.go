package bootstrap

import (
	"context"
	"fmt"
	"sort"

	"github.com/eriker75/onenglish-sub004/internal/judge"
	"github.com/eriker75/onenglish-sub004/internal/llm"
)

// registerProviders wraps every enabled, configured provider in the
// resilience stack and registers it
func (a *App) registerProviders(ctx context.Context) error {
	names := make([]string, 0, len(a.Config.LLM.Providers))
	for name := range a.Config.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := a.Config.LLM.Providers[name]
		if pc == nil || !pc.Enabled {
			continue
		}

		var p llm.Provider
		switch name {
		case "claude":
			if pc.APIKey == "" {
				a.Logger.Debug("provider enabled but no API key set", "name", name)
				continue
			}
			p = llm.NewClaudeProvider(llm.ClaudeConfig{APIKey: pc.APIKey, BaseURL: pc.URL, Model: pc.Model})
		case "openai":
			if pc.APIKey == "" {
				a.Logger.Debug("provider enabled but no API key set", "name", name)
				continue
			}
			p = llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: pc.APIKey, BaseURL: pc.URL, Model: pc.Model})
		case "gemini":
			if pc.APIKey == "" {
				a.Logger.Debug("provider enabled but no API key set", "name", name)
				continue
			}
			gp, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{APIKey: pc.APIKey, Model: pc.Model, Endpoint: pc.URL})
			if err != nil {
				return fmt.Errorf("register gemini: %w", err)
			}
			p = gp
		case "ollama":
			p = llm.NewOllamaProvider(llm.OllamaConfig{BaseURL: pc.URL, Model: pc.Model})
		default:
			a.Logger.Warn("unknown LLM provider in config", "name", name)
			continue
		}

		a.LLM.Register(name, llm.NewResilientProvider(p, a.resilience()))
		a.Logger.Info("registered LLM provider", "name", name, "model", pc.Model)
	}

	if def := a.Config.LLM.DefaultProvider; def != "" && def != "auto" {
		if err := a.LLM.SetDefault(def); err != nil {
			a.Logger.Warn("default provider not available", "name", def, "error", err)
		}
	}
	return nil
}

func (a *App) resilience() llm.ResilientConfig {
	jc := a.Config.Judge
	rc := llm.DefaultResilientConfig()
	rc.EnableCircuitBreaker = jc.CircuitBreaker
	rc.EnableRetry = jc.Retry
	rc.EnableRateLimit = jc.RatePerSecond > 0
	rc.RatePerSecond = jc.RatePerSecond
	rc.EnableBulkhead = jc.MaxConcurrent > 0
	rc.MaxConcurrent = jc.MaxConcurrent
	rc.Logger = a.Logger
	return rc
}

// buildJudge returns nil when no provider is registered; judge-graded
// questions then score as soft failures
func (a *App) buildJudge() judge.Judge {
	text, err := a.LLM.Resolve(a.Config.Judge.Provider)
	if err != nil {
		a.Logger.Warn("no judge provider available, open-ended answers will not be graded", "error", err)
		return nil
	}

	opts := []judge.Option{
		judge.WithTimeout(a.Config.Judge.Timeout()),
		judge.WithLogger(a.Logger),
		judge.WithMetrics(a.Metrics),
	}
	if a.Config.Judge.MaxTokens > 0 {
		opts = append(opts, judge.WithMaxTokens(a.Config.Judge.MaxTokens))
	}
	if media, err := a.LLM.ForMedia(a.Config.Judge.MediaProvider, []string{"audio/mpeg", "image/png"}); err == nil {
		opts = append(opts, judge.WithMediaProvider(media))
	} else {
		a.Logger.Info("no audio-capable provider, media answers use the text judge", "error", err)
	}
	return judge.NewLLMJudge(text, opts...)
}
