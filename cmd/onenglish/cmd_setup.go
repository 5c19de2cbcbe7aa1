package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/attempt"
	"github.com/eriker75/onenglish-sub004/internal/bootstrap"
	"github.com/eriker75/onenglish-sub004/internal/config"
	"github.com/eriker75/onenglish-sub004/internal/queue"
	"github.com/eriker75/onenglish-sub004/internal/storage/postgres"
)

// cmdInit initializes ~/.onenglish for first-time use
func cmdInit() error {
	fmt.Println("OnEnglish - First-Time Setup")
	fmt.Println("============================")
	fmt.Println()

	fmt.Print("Creating ~/.onenglish directory structure... ")
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.Save(dir, config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	fmt.Println()
	fmt.Println("Judge Provider Setup")
	fmt.Println("--------------------")
	fmt.Println("Open-ended and spoken answers are graded by Claude, OpenAI, Gemini or Ollama (local).")
	fmt.Println("Gemini is preferred for audio answers.")
	fmt.Println()

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	keys := existingKeys(cfg)
	changed := false
	for _, name := range []string{"claude", "gemini", "openai"} {
		if keys[name] != "" {
			fmt.Printf("%s API key: already configured ✓\n", name)
			continue
		}
		fmt.Printf("Enter %s API key (or press Enter to skip): ", name)
		key, _ := reader.ReadString('\n')
		if key = strings.TrimSpace(key); key != "" {
			keys[name] = key
			changed = true
		}
	}
	if changed {
		if err := config.SaveSecrets(dir, keys); err != nil {
			fmt.Printf("  ⚠ Failed to save: %v\n", err)
		} else {
			fmt.Println("  ✓ Saved")
		}
	}

	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Add question packs under %s\n", filepath.Join(dir, "questions"))
	fmt.Println("  2. onenglish start      # Start the daemon (seeds packs on start)")
	fmt.Println("  3. onenglish doctor     # Verify configuration")
	fmt.Println("  4. onenglish questions  # List loaded questions")
	return nil
}

// existingKeys collects the API keys already known for each provider
func existingKeys(cfg *config.LocalConfig) map[string]string {
	keys := make(map[string]string)
	for name, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			keys[name] = p.APIKey
		}
	}
	return keys
}

// cmdDoctor checks configuration and every configured backing service
func cmdDoctor() error {
	fmt.Println("Checking configuration...")
	allGood := true
	check := func(label string, err error, ok string) {
		fmt.Printf("%-10s ", label+":")
		if err != nil {
			fmt.Printf("✗ %v\n", err)
			allGood = false
			return
		}
		fmt.Printf("✓ %s\n", ok)
	}

	dir, err := config.Dir()
	if err == nil {
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			err = fmt.Errorf("%s not created (run 'onenglish init')", dir)
		}
	}
	check("Directory", err, dir)

	cfg, err := config.Load()
	check("Config", err, "loaded")
	if err != nil {
		return nil
	}
	check("Validate", cfg.Validate(), "ok")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Storage.DSN)
		if err == nil {
			store.Close()
		}
		check("Postgres", err, "reachable")
	case config.DriverSQLite:
		check("SQLite", nil, cfg.Storage.Path)
	default:
		fmt.Println("Storage:   ⚠ memory (answers are lost on restart)")
	}

	if cfg.AttemptsBackend() == config.BackendRedis {
		tracker, err := attempt.NewRedisTracker(ctx, attempt.RedisConfig{
			Addr:     cfg.Attempts.RedisAddr,
			Password: cfg.Attempts.RedisPassword,
			DB:       cfg.Attempts.RedisDB,
		})
		if err == nil {
			tracker.Close()
		}
		check("Redis", err, cfg.Attempts.RedisAddr)
	}

	if cfg.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Queue.URL)
		if err == nil {
			conn.Close()
		}
		check("RabbitMQ", err, "connected")
	}

	fmt.Println("\nJudge Providers:")
	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	ready := 0
	for _, name := range names {
		p := cfg.LLM.Providers[name]
		if !p.Enabled {
			continue
		}
		fmt.Printf("  %s: ", name)
		switch {
		case name == "ollama":
			if err := checkOllama(p.URL); err != nil {
				fmt.Printf("✗ %v\n", err)
				continue
			}
			fmt.Printf("✓ available (model: %s)\n", p.Model)
		case p.APIKey != "":
			fmt.Printf("✓ configured (model: %s)\n", p.Model)
		default:
			fmt.Printf("✗ no API key (run 'onenglish provider set-key %s')\n", name)
			continue
		}
		ready++
	}
	if ready == 0 {
		fmt.Println("  ⚠ none ready: open-ended answers will be returned ungraded")
	}

	fmt.Print("\nDaemon:    ")
	if isRunning() {
		fmt.Println("✓ running")
	} else {
		fmt.Println("✗ not running (run 'onenglish start')")
	}

	fmt.Println()
	if allGood {
		fmt.Println("All checks passed! ✓")
	} else {
		fmt.Println("Some checks failed. Please fix the issues above.")
	}
	return nil
}

// cmdConfig shows the effective configuration
func cmdConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("OnEnglish Configuration")

	fmt.Println("Daemon:")
	fmt.Printf("  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)

	fmt.Println("\nJudge:")
	fmt.Printf("  provider: %s (media: %s)\n", cfg.Judge.Provider, cfg.Judge.MediaProvider)
	fmt.Printf("  timeout: %s  max_tokens: %d  concurrency: %d\n", cfg.Judge.Timeout(), cfg.Judge.MaxTokens, cfg.Judge.Concurrency)
	for name, p := range cfg.LLM.Providers {
		if p.Enabled {
			keyStatus := "✗"
			if p.APIKey != "" || name == "ollama" {
				keyStatus = "✓"
			}
			fmt.Printf("  %s: model=%s key=%s\n", name, p.Model, keyStatus)
		}
	}

	fmt.Println("\nStorage:")
	fmt.Printf("  driver: %s\n", cfg.Storage.Driver)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		fmt.Printf("  path: %s\n", cfg.Storage.Path)
	case config.DriverPostgres:
		fmt.Println("  dsn: (set)")
	}

	fmt.Println("\nAttempts:")
	fmt.Printf("  backend: %s\n", cfg.AttemptsBackend())
	fmt.Printf("  default_max: %d\n", cfg.Attempts.DefaultMax)

	fmt.Println("\nQueue:")
	fmt.Printf("  enabled: %t  workers: %d  prefetch: %d\n", cfg.Queue.Enabled, cfg.Queue.Workers, cfg.Queue.Prefetch)

	fmt.Println("\nTracing:")
	fmt.Printf("  enabled: %t  endpoint: %s\n", cfg.Tracing.Enabled, cfg.Tracing.Endpoint)

	fmt.Printf("\nQuestions: %s\n", cfg.QuestionsPath)
	dir, _ := config.Dir()
	fmt.Printf("Config path: %s\n", filepath.Join(dir, "config.yaml"))
	return nil
}

// cmdProvider manages judge provider API keys
func cmdProvider(args []string) error {
	if len(args) < 1 {
		fmt.Println(`Provider management commands:

  onenglish provider list              List configured providers
  onenglish provider set-key <name>    Set API key for a provider`)
		return nil
	}

	switch args[0] {
	case "list":
		return cmdProviderList()
	case "set-key":
		if len(args) < 2 {
			return fmt.Errorf("provider name required")
		}
		return cmdProviderSetKey(args[1])
	default:
		return fmt.Errorf("unknown provider command: %s", args[0])
	}
}

func cmdProviderList() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Configured Judge Providers:")
	for name, p := range cfg.LLM.Providers {
		status := "disabled"
		if p.Enabled {
			if p.APIKey != "" || name == "ollama" {
				status = "ready"
			} else {
				status = "needs API key"
			}
		}

		role := ""
		switch name {
		case cfg.Judge.Provider:
			role = " (judge)"
		case cfg.Judge.MediaProvider:
			role = " (media judge)"
		}

		fmt.Printf("  %s%s\n", name, role)
		fmt.Printf("    status: %s\n", status)
		fmt.Printf("    model:  %s\n", p.Model)
		if p.URL != "" {
			fmt.Printf("    url:    %s\n", p.URL)
		}
		fmt.Println()
	}
	return nil
}

func cmdProviderSetKey(provider string) error {
	dir, err := config.EnsureDir()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, ok := cfg.LLM.Providers[provider]; !ok {
		return fmt.Errorf("unknown provider: %s (valid: claude, openai, gemini, ollama)", provider)
	}
	if provider == "ollama" {
		fmt.Println("Ollama doesn't require an API key.")
		return nil
	}

	fmt.Printf("Enter %s API key: ", provider)
	key, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if key = strings.TrimSpace(key); key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	keys := existingKeys(cfg)
	keys[provider] = key
	if err := config.SaveSecrets(dir, keys); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}

	fmt.Printf("✓ API key saved for %s\n", provider)
	fmt.Println("Restart the daemon for changes to take effect.")
	return nil
}

// cmdSeed loads question packs into the configured storage
func cmdSeed() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver == config.DriverMemory {
		fmt.Println("⚠ memory storage: the daemon seeds its own copy on start")
		return nil
	}

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	n, err := app.Seed(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Seeded %d questions from %s\n", n, cfg.QuestionsPath)
	return nil
}
