package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/popup-gpt/popup-gpt/internal/ui"
	"github.com/popup-gpt/popup-gpt/pkg/chatgpt"
	"github.com/popup-gpt/popup-gpt/pkg/config"
	"github.com/popup-gpt/popup-gpt/pkg/logger"
	"github.com/popup-gpt/popup-gpt/pkg/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "popup-gpt:", err)
		os.Exit(1)
	}
}

func run() error {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		return err
	}

	configPath := flag.String("config", defaultPath, "path to the settings file")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if settings.OpenAIToken == "" {
		return fmt.Errorf("no API token configured: set openai_token in %s or POPUPGPT_OPENAI_TOKEN", *configPath)
	}

	logPath := settings.LogFile
	if logPath == "" {
		logPath = filepath.Join(filepath.Dir(*configPath), "popup-gpt.log")
	}
	log, err := logger.NewFile(settings.LogLevel, logPath)
	if err != nil {
		return err
	}

	client := chatgpt.New(settings.OpenAIToken, chatgpt.Options{
		Endpoint:      settings.Endpoint,
		Model:         settings.Model,
		SystemMessage: settings.SystemMessage,
		Temperature:   settings.Temperature,
		TopP:          settings.TopP,
		MaxTokens:     settings.MaxTokens,
	}, log.With("component", "chatgpt"))

	coord := stream.New(client, log.With("component", "stream"))

	log.Info("starting", "config", *configPath, "model", settings.Model)

	program := tea.NewProgram(ui.New(coord, log.With("component", "ui")), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("UI terminated: %w", err)
	}

	return nil
}
