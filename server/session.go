package server

import (
	"errors"
	"net/http"
	"sync"

	"pizzachat/conversation"
	"pizzachat/core"
	"pizzachat/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// handleSession upgrades the connection and runs one conversation for its
// lifetime: greet, then dispatch client envelopes until the socket closes.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	sessionLog := s.logger.With(map[string]interface{}{"session": sessionID})
	sessionLog.Info("session started")

	sink := &wsSink{conn: conn, logger: sessionLog}

	cfg := conversation.DefaultConfig()
	cfg.SpeechEnabled = s.config.SpeechEnabled && s.speech != nil
	cfg.GreetingAudio = s.greetingClip()
	cfg.TurnTimeout = s.config.TurnTimeout

	ctrl := conversation.NewController(s.completion, s.speech, sink, cfg, sessionLog)
	if err := ctrl.Greet(r.Context()); err != nil {
		sessionLog.With(map[string]interface{}{"error": err}).Error("greeting failed")
	}

	// One ordered channel, one worker: submissions run in arrival order
	// while the read loop stays responsive mid-turn.
	submissions := make(chan string, cfg.MaxQueuedTurns)
	defer close(submissions)
	go func() {
		for content := range submissions {
			if err := ctrl.SubmitUserMessage(r.Context(), content); err != nil {
				var validationErr *core.ValidationError
				if errors.As(err, &validationErr) {
					// Empty input is dropped as a no-op.
					sessionLog.With(map[string]interface{}{"reason": validationErr.Reason}).Debug("submission ignored")
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sessionLog.With(map[string]interface{}{"error": err}).Warn("session read failed")
			}
			break
		}
		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			sessionLog.With(map[string]interface{}{"error": err}).Warn("bad envelope from client")
			continue
		}

		switch msgType {
		case protocol.MsgUserMessage:
			p, err := protocol.UnmarshalPayload[protocol.UserMessagePayload](payload)
			if err != nil {
				sessionLog.With(map[string]interface{}{"error": err}).Warn("bad user_message payload")
				continue
			}
			select {
			case submissions <- p.Content:
			default:
				sessionLog.Debug("submission dropped, backlog full")
			}

		case protocol.MsgSetSpeech:
			p, err := protocol.UnmarshalPayload[protocol.SetSpeechPayload](payload)
			if err != nil {
				sessionLog.With(map[string]interface{}{"error": err}).Warn("bad set_speech payload")
				continue
			}
			ctrl.SetSpeechEnabled(p.Enabled && s.speech != nil)

		default:
			sessionLog.With(map[string]interface{}{"type": msgType}).Warn("unknown message type from client")
		}
	}

	sessionLog.Info("session ended")
}

// wsSink delivers controller output to the browser as protocol envelopes.
// A mutex serializes writes: the controller goroutine and the greeting path
// both write to the same connection.
type wsSink struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *core.Logger
}

func (s *wsSink) send(msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		s.logger.With(map[string]interface{}{"type": msgType, "error": err}).Error("marshal envelope failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.With(map[string]interface{}{"type": msgType, "error": err}).Warn("session write failed")
	}
}

func (s *wsSink) MessageAppended(msg core.Message) {
	s.send(protocol.MsgAppend, protocol.AppendPayload{Message: protocol.FromCore(msg)})
}

func (s *wsSink) PlayAudio(messageID string) {
	s.send(protocol.MsgPlay, protocol.PlayPayload{MessageID: messageID})
}

func (s *wsSink) TurnFailed(gateway string, err error) {
	s.send(protocol.MsgError, protocol.ErrorPayload{Gateway: gateway, Detail: err.Error()})
}

func (s *wsSink) StateChanged(state conversation.State) {
	s.send(protocol.MsgState, protocol.StatePayload{State: string(state)})
}
