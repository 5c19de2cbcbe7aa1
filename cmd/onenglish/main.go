package main

import (
	"fmt"
	"os"

	"github.com/eriker75/onenglish-sub004/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFile = "onenglishd.pid"
	logFile = "onenglishd.log"
)

// daemonAddr is the daemon's base URL, taken from the config when it loads
var daemonAddr = "http://127.0.0.1:7432"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if cfg, err := config.Load(); err == nil {
		daemonAddr = fmt.Sprintf("http://%s:%d", cfg.Daemon.Bind, cfg.Daemon.Port)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "doctor":
		err = cmdDoctor()
	case "config":
		err = cmdConfig()
	case "provider":
		err = cmdProvider(os.Args[2:])
	case "seed":
		err = cmdSeed()
	case "questions":
		err = cmdQuestions(os.Args[2:])
	case "answer":
		err = cmdAnswer(os.Args[2:])
	case "recalc":
		err = cmdRecalc(os.Args[2:])
	case "events":
		err = cmdEvents(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("onenglish %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`OnEnglish - Answer validation and scoring

Usage:
  onenglish <command> [arguments]

Setup Commands:
  init            Initialize ~/.onenglish (first-time setup)
  doctor          Check configuration and backing services
  config          Show current configuration
  provider        Manage LLM judge providers
  seed            Load question packs into storage

Daemon Commands:
  start           Start the grading daemon
  stop            Stop the grading daemon
  status          Show daemon status
  logs            View daemon logs

Grading Commands:
  questions              List questions
  questions <id>         Show one question
  answer <id> <student> <answer-json> [media-file...]
                         Submit an answer and print the score
  answer history <id> <student>
                         List a student's scored answers
  recalc <id> [--async]  Recalculate a composite question's points

Integration Commands:
  events [type]          Follow scored-answer events from RabbitMQ
  events recent [type]   Show the latest events from the daemon's event log
  mcp                    Start MCP server on stdio

Other:
  help            Show this help message
  version         Show version information

Examples:
  onenglish start
  onenglish answer week1/pets ana '"cat"'
  onenglish answer week1/order ana '["I","like","apples"]'
  onenglish answer week1/hometown ana '""' hometown.mp3
  onenglish recalc week1/story`)
}
