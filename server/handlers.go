package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"pizzachat/core"
	"pizzachat/protocol"

	"github.com/bytedance/sonic"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleChat implements the stateless forwarding contract: the caller sends
// its full transcript, the preamble is prepended upstream, and exactly one
// assistant message comes back in the {message: {role, content}} envelope.
// Audio rides alongside when speech is on.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorResponse{Error: "method not allowed"})
		return
	}

	var req protocol.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: "invalid request body"})
		return
	}
	transcript, err := toTranscript(req.Messages)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.TurnTimeout)
	defer cancel()

	reply, err := s.completion.Complete(ctx, transcript)
	if err != nil {
		s.logger.With(map[string]interface{}{
			"gateway": core.GatewayCompletion,
			"error":   err,
		}).Error("chat request failed")
		writeJSON(w, upstreamStatus(err), protocol.ErrorResponse{Error: "completion provider failed"})
		return
	}

	resp := protocol.ChatResponse{
		Message: protocol.ChatMessage{Role: string(reply.Role), Content: reply.Content},
	}
	if s.speech != nil && s.config.SpeechEnabled {
		audio, serr := s.speech.Synthesize(ctx, reply.Content)
		if serr != nil {
			// Text still goes out; audio is best effort.
			s.logger.With(map[string]interface{}{
				"gateway": core.GatewaySpeech,
				"error":   serr,
			}).Warn("speech synthesis failed for chat response")
		} else {
			resp.Audio = base64.StdEncoding.EncodeToString(audio)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorResponse{Error: "method not allowed"})
		return
	}
	if s.speech == nil {
		writeJSON(w, http.StatusServiceUnavailable, protocol.ErrorResponse{Error: "speech synthesis is disabled"})
		return
	}

	var req protocol.SpeechRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: "text must not be empty"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.TurnTimeout)
	defer cancel()

	audio, err := s.speech.Synthesize(ctx, req.Text)
	if err != nil {
		s.logger.With(map[string]interface{}{
			"gateway": core.GatewaySpeech,
			"error":   err,
		}).Error("speech request failed")
		writeJSON(w, upstreamStatus(err), protocol.ErrorResponse{Error: "speech provider failed"})
		return
	}
	writeJSON(w, http.StatusOK, protocol.SpeechResponse{
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
}

// handleGreetingAudio serves the fixed local greeting clip as base64.
func (s *Server) handleGreetingAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.AssetErrorResponse{Message: "method not allowed"})
		return
	}
	data, err := os.ReadFile(s.config.GreetingClipPath)
	if err != nil {
		s.logger.With(map[string]interface{}{
			"path":  s.config.GreetingClipPath,
			"error": err,
		}).Error("greeting clip read failed")
		writeJSON(w, http.StatusInternalServerError, protocol.AssetErrorResponse{Message: "Error processing request."})
		return
	}
	writeJSON(w, http.StatusOK, protocol.SpeechResponse{
		Audio: base64.StdEncoding.EncodeToString(data),
	})
}

// toTranscript validates the wire messages and converts them for the
// gateway. System messages are rejected: the preamble is a server concern.
func toTranscript(messages []protocol.ChatMessage) ([]core.Message, error) {
	if len(messages) == 0 {
		return nil, core.NewValidationError("messages must not be empty")
	}
	out := make([]core.Message, 0, len(messages))
	for _, m := range messages {
		msg := m.ToCore()
		if !msg.Role.Valid() || msg.Role == core.RoleSystem {
			return nil, core.NewValidationError("unsupported role %q", m.Role)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return nil, core.NewValidationError("message content must not be empty")
		}
		out = append(out, msg)
	}
	return out, nil
}

// upstreamStatus maps a gateway failure to the status returned to the
// browser: bad gateway by default, gateway timeout when the deadline fired.
func upstreamStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err != nil {
		return err
	}
	return sonic.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
