package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pizzachat/config"
	"pizzachat/conversation"
	"pizzachat/core"
	"pizzachat/server"
	"pizzachat/services/elevenlabs"
	"pizzachat/services/openai"
)

func main() {
	logger := core.GetLogger()

	cfg := config.Load(logger)
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	completionCfg := openai.DefaultConfig()
	completionCfg.APIKey = cfg.OpenAIAPIKey
	completionCfg.BaseURL = cfg.OpenAIBaseURL
	completionCfg.MaxTokens = cfg.MaxTokens
	completionCfg.Preamble = conversation.SYSTEM_PREAMBLE
	if cfg.Model != "" {
		completionCfg.Model = cfg.Model
	}
	completion, err := openai.NewCompletionService(completionCfg, logger)
	if err != nil {
		logger.Fatalf("completion service: %v", err)
	}

	var speech conversation.SpeechGateway
	if cfg.SpeechEnabled {
		speechCfg := elevenlabs.DefaultConfig()
		speechCfg.APIKey = cfg.ElevenLabsAPIKey
		if cfg.VoiceID != "" {
			speechCfg.VoiceID = cfg.VoiceID
		}
		if cfg.SpeechFormat != "" {
			speechCfg.OutputFormat = cfg.SpeechFormat
		}
		svc, err := elevenlabs.NewSpeechService(speechCfg, logger)
		if err != nil {
			logger.Fatalf("speech service: %v", err)
		}
		speech = svc
	} else {
		logger.Info("speech synthesis disabled")
	}

	srv := server.New(completion, speech, server.Config{
		Addr:             ":" + cfg.Port,
		SpeechEnabled:    cfg.SpeechEnabled,
		GreetingClipPath: cfg.GreetingClipPath,
		TurnTimeout:      cfg.TurnTimeout,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.With(map[string]interface{}{"signal": sig.String()}).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("shutdown: %v", err)
		}
	}
}
