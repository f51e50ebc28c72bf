package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pizzachat/core"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the ElevenLabs speech service.
type Config struct {
	APIKey  string
	BaseURL string // ws(s) base, without voice path
	VoiceID string
	ModelID string
	// OutputFormat selects the encoding of the returned payload, e.g.
	// "mp3_44100_128" for direct browser playback or "ulaw_8000" for
	// telephony pipelines (see utils/audio for transcoding).
	OutputFormat string

	// Voice settings
	Stability       float64
	SimilarityBoost float64

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:          "wss://api.elevenlabs.io/v1/text-to-speech",
		VoiceID:          "21m00Tcm4TlvDq8ikWAM", // Rachel
		ModelID:          "eleven_turbo_v2_5",
		OutputFormat:     "mp3_44100_128",
		Stability:        0.5,
		SimilarityBoost:  0.75,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
	}
}

// Client messages
type (
	bosMessage struct {
		Text          string        `json:"text"`
		VoiceSettings voiceSettings `json:"voice_settings"`
	}

	voiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	}

	textMessage struct {
		Text                 string `json:"text"`
		TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
	}
)

// Server message: audio arrives base64-encoded in JSON text frames.
type audioMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SpeechService implements conversation.SpeechGateway against the
// ElevenLabs stream-input WebSocket API. Each call dials a fresh
// connection, sends the full text, and aggregates every audio chunk into
// one opaque payload. One attempt per call, no retries.
type SpeechService struct {
	config Config
	logger *core.Logger
	dialer *websocket.Dialer
}

// NewSpeechService creates the service, failing fast when the API key is
// missing.
func NewSpeechService(config Config, logger *core.Logger) (*SpeechService, error) {
	if config.APIKey == "" {
		return nil, &core.ConfigurationError{Key: "ELEVENLABS_API_KEY"}
	}
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.VoiceID == "" {
		config.VoiceID = defaults.VoiceID
	}
	if config.ModelID == "" {
		config.ModelID = defaults.ModelID
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaults.OutputFormat
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &SpeechService{
		config: config,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
	}, nil
}

// OutputFormat reports the configured payload encoding.
func (s *SpeechService) OutputFormat() string {
	return s.config.OutputFormat
}

// Synthesize converts text into one audio payload.
func (s *SpeechService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewValidationError("speech text must not be empty")
	}

	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		s.config.BaseURL, s.config.VoiceID, s.config.ModelID, s.config.OutputFormat)

	header := http.Header{}
	header.Set("xi-api-key", s.config.APIKey)

	conn, resp, err := s.dialer.DialContext(ctx, url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Status: status, Err: err}
	}
	defer conn.Close()

	// Abort the read loop if the caller's deadline fires first.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	bos := bosMessage{
		Text: " ",
		VoiceSettings: voiceSettings{
			Stability:       s.config.Stability,
			SimilarityBoost: s.config.SimilarityBoost,
		},
	}
	if err := conn.WriteJSON(bos); err != nil {
		return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Err: err}
	}
	if err := conn.WriteJSON(textMessage{Text: text + " ", TryTriggerGeneration: true}); err != nil {
		return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Err: err}
	}
	// EOS: empty text tells ElevenLabs to generate the remaining audio.
	if err := conn.WriteJSON(textMessage{Text: ""}); err != nil {
		return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Err: err}
	}

	var audio bytes.Buffer
	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		var msg audioMessage
		if err := conn.ReadJSON(&msg); err != nil {
			// The server closes the connection once generation finishes;
			// a close after audio has arrived is a normal end of stream.
			if audio.Len() > 0 && websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Err: err}
		}
		if msg.Error != "" {
			detail := msg.Message
			if detail == "" {
				detail = msg.Error
			}
			return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Err: errors.New(detail)}
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Err: fmt.Errorf("decode audio chunk: %w", err)}
			}
			audio.Write(chunk)
		}
		if msg.IsFinal {
			break
		}
	}

	if audio.Len() == 0 {
		return nil, &core.UpstreamError{Gateway: core.GatewaySpeech, Err: errors.New("no audio in response")}
	}
	s.logger.With(map[string]interface{}{
		"bytes":  audio.Len(),
		"format": s.config.OutputFormat,
	}).Debug("speech synthesized")
	return audio.Bytes(), nil
}
