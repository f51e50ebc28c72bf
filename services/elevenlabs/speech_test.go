package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pizzachat/core"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// fakeProvider runs a stream-input endpoint that consumes the BOS, text,
// and EOS messages, then plays back the scripted responses.
func fakeProvider(t *testing.T, respond func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q, want test-key", got)
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// BOS, text chunk, EOS
		for i := 0; i < 3; i++ {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				t.Errorf("read client message %d: %v", i, err)
				return
			}
		}
		respond(conn)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestService(t *testing.T, ts *httptest.Server) *SpeechService {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = "ws" + strings.TrimPrefix(ts.URL, "http")
	svc, err := NewSpeechService(cfg, core.NewLogger(nil))
	if err != nil {
		t.Fatalf("NewSpeechService() failed: %v", err)
	}
	return svc
}

func TestNewSpeechServiceRequiresAPIKey(t *testing.T) {
	_, err := NewSpeechService(DefaultConfig(), core.NewLogger(nil))
	var cfgErr *core.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
	if cfgErr.Key != "ELEVENLABS_API_KEY" {
		t.Errorf("ConfigurationError.Key = %q", cfgErr.Key)
	}
}

func TestSynthesizeAggregatesChunks(t *testing.T) {
	ts := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{"audio": base64.StdEncoding.EncodeToString([]byte("AB")), "isFinal": false})
		conn.WriteJSON(map[string]interface{}{"audio": base64.StdEncoding.EncodeToString([]byte("C")), "isFinal": true})
	})
	svc := newTestService(t, ts)

	audio, err := svc.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}
	if string(audio) != "ABC" {
		t.Errorf("audio = %q, want %q", audio, "ABC")
	}
}

func TestSynthesizeHandlesCloseAfterAudio(t *testing.T) {
	ts := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{"audio": base64.StdEncoding.EncodeToString([]byte("XYZ")), "isFinal": false})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	svc := newTestService(t, ts)

	audio, err := svc.Synthesize(context.Background(), "short one")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}
	if string(audio) != "XYZ" {
		t.Errorf("audio = %q, want %q", audio, "XYZ")
	}
}

func TestSynthesizeProviderError(t *testing.T) {
	ts := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{"error": "quota_exceeded", "message": "quota exceeded"})
	})
	svc := newTestService(t, ts)

	_, err := svc.Synthesize(context.Background(), "hello")
	var upstreamErr *core.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if upstreamErr.Gateway != core.GatewaySpeech {
		t.Errorf("gateway = %q, want speech", upstreamErr.Gateway)
	}
	if !strings.Contains(upstreamErr.Error(), "quota exceeded") {
		t.Errorf("error detail = %q, want provider message", upstreamErr.Error())
	}
}

func TestSynthesizeEmptyStream(t *testing.T) {
	ts := fakeProvider(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]interface{}{"isFinal": true})
	})
	svc := newTestService(t, ts)

	_, err := svc.Synthesize(context.Background(), "hello")
	var upstreamErr *core.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	svc, err := NewSpeechService(cfg, core.NewLogger(nil))
	if err != nil {
		t.Fatalf("NewSpeechService() failed: %v", err)
	}

	_, err = svc.Synthesize(context.Background(), "   ")
	var validationErr *core.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestSynthesizeDialFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(ts.Close)
	svc := newTestService(t, ts)

	_, err := svc.Synthesize(context.Background(), "hello")
	var upstreamErr *core.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if upstreamErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", upstreamErr.Status, http.StatusUnauthorized)
	}
}
