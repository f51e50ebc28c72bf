package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"pizzachat/conversation"
	"pizzachat/core"
	"pizzachat/utils/audio"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the web server.
type Config struct {
	Addr string
	// SpeechEnabled is the initial per-session speech setting; the UI
	// toggle can flip it per conversation.
	SpeechEnabled    bool
	GreetingClipPath string
	TurnTimeout      time.Duration
}

// Server hosts the chat page, the JSON forwarding API, and the per-session
// WebSocket endpoint that drives a server-side conversation.
type Server struct {
	config     Config
	logger     *core.Logger
	completion conversation.CompletionGateway
	speech     conversation.SpeechGateway // nil when speech is disabled
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New creates a Server. speech may be nil; the speech endpoint then reports
// the feature as unavailable and conversations run text-only.
func New(
	completion conversation.CompletionGateway,
	speech conversation.SpeechGateway,
	config Config,
	logger *core.Logger,
) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.TurnTimeout <= 0 {
		config.TurnTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	if fr, ok := speech.(interface{ OutputFormat() string }); ok && fr.OutputFormat() == "ulaw_8000" {
		speech = &playableSpeechGateway{inner: speech}
	}

	s := &Server{
		config:     config,
		logger:     logger,
		completion: completion,
		speech:     speech,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/speech", s.handleSpeech)
	mux.HandleFunc("/api/audio/greeting", s.handleGreetingAudio)
	mux.HandleFunc("/ws", s.handleSession)

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.With(map[string]interface{}{"addr": s.config.Addr}).Info("server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// greetingClip loads the fixed local greeting clip, or nil when the asset
// is missing (the greeting then falls back to synthesis or text only).
func (s *Server) greetingClip() []byte {
	if s.config.GreetingClipPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.config.GreetingClipPath)
	if err != nil {
		s.logger.With(map[string]interface{}{
			"path":  s.config.GreetingClipPath,
			"error": err,
		}).Debug("greeting clip not available")
		return nil
	}
	return data
}

// playableSpeechGateway transcodes µ-law telephony output into WAV so the
// payload stays directly playable in a browser.
type playableSpeechGateway struct {
	inner conversation.SpeechGateway
}

func (g *playableSpeechGateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	raw, err := g.inner.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	wav, err := audio.ULawToWAV(raw)
	if err != nil {
		return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Err: err}
	}
	return wav, nil
}
