package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pizzachat/conversation"
	"pizzachat/core"
	"pizzachat/protocol"

	"github.com/gorilla/websocket"
)

func dialSession(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (protocol.MessageType, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	msgType, payload, err := protocol.Unmarshal(data)
	if err != nil {
		t.Fatalf("decode envelope %s: %v", data, err)
	}
	return msgType, payload
}

// readUntil consumes envelopes until it sees the wanted type, failing the
// test if anything but interleaved state updates arrives in between.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) json.RawMessage {
	t.Helper()
	for {
		msgType, payload := readEnvelope(t, conn)
		if msgType == want {
			return payload
		}
		if msgType != protocol.MsgState {
			t.Fatalf("envelope type = %q, want %q or state", msgType, want)
		}
	}
}

func sendUserMessage(t *testing.T, conn *websocket.Conn, content string) {
	t.Helper()
	data, err := protocol.Marshal(protocol.MsgUserMessage, protocol.UserMessagePayload{Content: content})
	if err != nil {
		t.Fatalf("marshal user_message: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write user_message: %v", err)
	}
}

func appendedMessage(t *testing.T, payload json.RawMessage) protocol.ChatMessage {
	t.Helper()
	p, err := protocol.UnmarshalPayload[protocol.AppendPayload](payload)
	if err != nil {
		t.Fatalf("decode append payload: %v", err)
	}
	return p.Message
}

func TestSessionGreetsThenExchangesTurn(t *testing.T) {
	completion := &stubCompletion{reply: "We have a two-for-one special on large pies today."}
	srv := New(completion, nil, Config{}, core.NewLogger(nil))
	conn := dialSession(t, srv)

	greeting := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if greeting.Role != "assistant" {
		t.Fatalf("greeting role = %q", greeting.Role)
	}
	if greeting.Content != conversation.GREETING_TEXT {
		t.Errorf("greeting content = %q", greeting.Content)
	}

	sendUserMessage(t, conn, "I'd like a large pepperoni")

	user := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if user.Role != "user" || user.Content != "I'd like a large pepperoni" {
		t.Errorf("user echo = %+v", user)
	}

	reply := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if reply.Role != "assistant" || reply.Content != completion.reply {
		t.Errorf("assistant reply = %+v", reply)
	}
	if reply.Audio != "" {
		t.Errorf("audio = %q, want none with speech off", reply.Audio)
	}
}

func TestSessionSpeechTurnCarriesAudioAndPlay(t *testing.T) {
	completion := &stubCompletion{reply: "Great choice! Would you like to add garlic knots?"}
	speech := &stubSpeech{audio: []byte("ABC")}
	srv := New(completion, speech, Config{SpeechEnabled: true}, core.NewLogger(nil))
	conn := dialSession(t, srv)

	// Greeting is synthesized too when speech is on and no clip exists.
	greeting := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if greeting.Audio != base64.StdEncoding.EncodeToString([]byte("ABC")) {
		t.Errorf("greeting audio = %q", greeting.Audio)
	}
	playPayload, err := protocol.UnmarshalPayload[protocol.PlayPayload](readUntil(t, conn, protocol.MsgPlay))
	if err != nil {
		t.Fatalf("decode play payload: %v", err)
	}
	if playPayload.MessageID != greeting.ID {
		t.Errorf("play message_id = %q, want greeting %q", playPayload.MessageID, greeting.ID)
	}

	sendUserMessage(t, conn, "I'd like a large pepperoni")

	user := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if user.Role != "user" {
		t.Fatalf("user echo role = %q", user.Role)
	}
	reply := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if reply.Audio == "" {
		t.Errorf("assistant reply missing audio")
	}
	playPayload, err = protocol.UnmarshalPayload[protocol.PlayPayload](readUntil(t, conn, protocol.MsgPlay))
	if err != nil {
		t.Fatalf("decode play payload: %v", err)
	}
	if playPayload.MessageID != reply.ID {
		t.Errorf("play message_id = %q, want reply %q", playPayload.MessageID, reply.ID)
	}
}

func TestSessionBackToBackSubmissionsKeepOrder(t *testing.T) {
	completion := &stubCompletion{reply: "noted", delay: 10 * time.Millisecond}
	srv := New(completion, nil, Config{}, core.NewLogger(nil))
	conn := dialSession(t, srv)

	greeting := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if greeting.Role != "assistant" {
		t.Fatalf("greeting role = %q", greeting.Role)
	}

	// Pairs sent with no delay must come back in transcript order: the
	// first submission's exchange completes before the second one starts.
	for round := 0; round < 5; round++ {
		first := fmt.Sprintf("first %d", round)
		second := fmt.Sprintf("second %d", round)
		sendUserMessage(t, conn, first)
		sendUserMessage(t, conn, second)

		for _, want := range []string{first, "noted", second, "noted"} {
			msg := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
			if msg.Content != want {
				t.Fatalf("round %d: append content = %q, want %q", round, msg.Content, want)
			}
		}
	}
}

func TestSessionCompletionFailureSendsError(t *testing.T) {
	completion := &stubCompletion{err: &core.UpstreamError{Gateway: core.GatewayCompletion, Status: 500}}
	srv := New(completion, nil, Config{}, core.NewLogger(nil))
	conn := dialSession(t, srv)

	// Greeting never touches the completion gateway, so it still arrives.
	greeting := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if greeting.Role != "assistant" {
		t.Fatalf("greeting role = %q", greeting.Role)
	}

	sendUserMessage(t, conn, "hello")

	user := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if user.Role != "user" {
		t.Fatalf("user echo role = %q", user.Role)
	}
	errPayload, err := protocol.UnmarshalPayload[protocol.ErrorPayload](readUntil(t, conn, protocol.MsgError))
	if err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errPayload.Gateway != core.GatewayCompletion {
		t.Errorf("error gateway = %q", errPayload.Gateway)
	}
}

func TestSessionSetSpeechToggle(t *testing.T) {
	completion := &stubCompletion{reply: "ok"}
	speech := &stubSpeech{audio: []byte("ABC")}
	srv := New(completion, speech, Config{SpeechEnabled: false}, core.NewLogger(nil))
	conn := dialSession(t, srv)

	greeting := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if greeting.Audio != "" {
		t.Fatalf("greeting audio = %q, want none with speech off", greeting.Audio)
	}

	data, err := protocol.Marshal(protocol.MsgSetSpeech, protocol.SetSpeechPayload{Enabled: true})
	if err != nil {
		t.Fatalf("marshal set_speech: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write set_speech: %v", err)
	}
	sendUserMessage(t, conn, "I'd like a large pepperoni")

	user := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if user.Role != "user" {
		t.Fatalf("user echo role = %q", user.Role)
	}
	reply := appendedMessage(t, readUntil(t, conn, protocol.MsgAppend))
	if reply.Audio == "" {
		t.Errorf("assistant reply missing audio after enabling speech")
	}
}
