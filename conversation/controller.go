package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pizzachat/core"
)

// State tracks where the controller is within a turn. At most one turn is
// in flight per conversation; submissions that arrive mid-turn are queued.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingCompletion State = "awaiting_completion"
	StateAwaitingSpeech     State = "awaiting_speech"
)

// CompletionGateway forwards a transcript (roles and text only) to the
// remote completion provider and returns one assistant message. The gateway
// is responsible for prepending the system preamble; it is never part of
// the transcript passed in.
type CompletionGateway interface {
	Complete(ctx context.Context, transcript []core.Message) (core.Message, error)
}

// SpeechGateway synthesizes text into an opaque audio payload. Best-effort:
// callers must treat failure as "no audio", not as a failed turn.
type SpeechGateway interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Sink receives controller output destined for the presentation layer.
type Sink interface {
	MessageAppended(msg core.Message)
	PlayAudio(messageID string)
	TurnFailed(gateway string, err error)
	StateChanged(state State)
}

// Config holds per-conversation settings. SpeechEnabled is an explicit
// field here rather than ambient state; the UI toggle flips it through
// SetSpeechEnabled.
type Config struct {
	SpeechEnabled bool
	GreetingText  string
	// GreetingAudio is an optional canned clip for the greeting. When nil
	// and speech is enabled, the greeting is synthesized once instead.
	GreetingAudio  []byte
	TurnTimeout    time.Duration
	MaxQueuedTurns int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SpeechEnabled:  true,
		GreetingText:   GREETING_TEXT,
		TurnTimeout:    30 * time.Second,
		MaxQueuedTurns: 8,
	}
}

// Controller orchestrates one request/response cycle per submitted message
// and the one-time greeting at session start.
type Controller struct {
	config     Config
	transcript *Transcript
	completion CompletionGateway
	speech     SpeechGateway
	sink       Sink
	logger     *core.Logger

	mu            sync.Mutex
	state         State
	speechEnabled bool
	busy          bool
	queue         []string
	greeted       bool
}

func NewController(
	completion CompletionGateway,
	speech SpeechGateway,
	sink Sink,
	config Config,
	logger *core.Logger,
) *Controller {
	if config.GreetingText == "" {
		config.GreetingText = GREETING_TEXT
	}
	if config.TurnTimeout <= 0 {
		config.TurnTimeout = 30 * time.Second
	}
	if config.MaxQueuedTurns <= 0 {
		config.MaxQueuedTurns = 8
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Controller{
		config:        config,
		transcript:    NewTranscript(),
		completion:    completion,
		speech:        speech,
		sink:          sink,
		logger:        logger,
		state:         StateIdle,
		speechEnabled: config.SpeechEnabled,
	}
}

// Transcript exposes the conversation's transcript for rendering.
func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SpeechEnabled reports whether speech synthesis is currently on.
func (c *Controller) SpeechEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speechEnabled
}

// SetSpeechEnabled flips the speech toggle. Takes effect from the next
// gateway call; a synthesis already in flight is unaffected.
func (c *Controller) SetSpeechEnabled(enabled bool) {
	c.mu.Lock()
	c.speechEnabled = enabled
	c.mu.Unlock()
	c.logger.With(map[string]interface{}{"enabled": enabled}).Info("speech toggled")
}

// Greet appends the fixed assistant greeting and plays its audio when
// available. It runs at most once per conversation and does not count as a
// user turn. Call before accepting submissions.
func (c *Controller) Greet(ctx context.Context) error {
	c.mu.Lock()
	if c.greeted {
		c.mu.Unlock()
		return nil
	}
	c.greeted = true
	c.mu.Unlock()

	msg := core.NewMessage(core.RoleAssistant, c.config.GreetingText)
	audio := c.config.GreetingAudio
	if audio == nil && c.speech != nil && c.SpeechEnabled() {
		callCtx, cancel := context.WithTimeout(ctx, c.config.TurnTimeout)
		synthesized, err := c.speech.Synthesize(callCtx, c.config.GreetingText)
		cancel()
		if err != nil {
			c.logger.With(map[string]interface{}{
				"gateway": core.GatewaySpeech,
				"error":   err,
			}).Warn("greeting audio unavailable, delivering text only")
		} else {
			audio = synthesized
		}
	}
	if len(audio) > 0 {
		msg = msg.WithAudio(audio)
	}

	if err := c.transcript.Append(msg); err != nil {
		return err
	}
	c.sink.MessageAppended(msg)
	if len(msg.Audio) > 0 {
		c.sink.PlayAudio(msg.ID)
	}
	return nil
}

// SubmitUserMessage runs one turn: append the user message, fetch the
// assistant reply, optionally synthesize its audio, append, and trigger
// playback. Empty input after trimming is rejected with a ValidationError
// and leaves the transcript untouched. If a turn is already in flight the
// submission is queued and processed in order; the returned error covers
// only the directly-run turn (queued turns surface failures via the Sink).
func (c *Controller) SubmitUserMessage(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return core.NewValidationError("empty submission")
	}

	c.mu.Lock()
	if c.busy {
		if len(c.queue) >= c.config.MaxQueuedTurns {
			c.mu.Unlock()
			return core.NewValidationError("too many queued submissions")
		}
		c.queue = append(c.queue, trimmed)
		c.mu.Unlock()
		return nil
	}
	c.busy = true
	c.mu.Unlock()

	firstErr := c.runTurn(ctx, trimmed)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.busy = false
			c.mu.Unlock()
			return firstErr
		}
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := c.runTurn(ctx, next); err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("queued turn failed")
		}
	}
}

func (c *Controller) runTurn(ctx context.Context, text string) error {
	c.setState(StateAwaitingCompletion)

	userMsg := core.NewMessage(core.RoleUser, text)
	if err := c.transcript.Append(userMsg); err != nil {
		c.setState(StateIdle)
		return err
	}
	c.sink.MessageAppended(userMsg)

	turnLog := c.logger.With(map[string]interface{}{"turn": userMsg.ID})

	callCtx, cancel := context.WithTimeout(ctx, c.config.TurnTimeout)
	reply, err := c.completion.Complete(callCtx, stripAudio(c.transcript.Snapshot()))
	cancel()
	if err == nil && strings.TrimSpace(reply.Content) == "" {
		err = &core.UpstreamError{Gateway: core.GatewayCompletion, Err: errors.New("empty completion content")}
	}
	if err != nil {
		// The user message stays; the turn simply has no answer. The sink
		// renders a visible error state instead of dropping the turn silently.
		turnLog.With(map[string]interface{}{
			"gateway": core.GatewayCompletion,
			"error":   err,
		}).Error("turn aborted")
		c.sink.TurnFailed(core.GatewayCompletion, err)
		c.setState(StateIdle)
		return err
	}
	reply.Role = core.RoleAssistant

	if c.speech != nil && c.SpeechEnabled() {
		c.setState(StateAwaitingSpeech)
		speechCtx, cancelSpeech := context.WithTimeout(ctx, c.config.TurnTimeout)
		audio, serr := c.speech.Synthesize(speechCtx, reply.Content)
		cancelSpeech()
		if serr != nil {
			// Speech failure must not block text delivery.
			turnLog.With(map[string]interface{}{
				"gateway": core.GatewaySpeech,
				"error":   serr,
			}).Warn("speech synthesis failed, delivering text only")
		} else {
			reply = reply.WithAudio(audio)
		}
	}

	if err := c.transcript.Append(reply); err != nil {
		c.setState(StateIdle)
		return err
	}
	c.sink.MessageAppended(reply)
	if len(reply.Audio) > 0 {
		c.sink.PlayAudio(reply.ID)
	}
	c.setState(StateIdle)
	return nil
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed {
		c.sink.StateChanged(state)
	}
}

// stripAudio returns a copy of the transcript with audio removed; audio is
// never part of completion input.
func stripAudio(messages []core.Message) []core.Message {
	out := make([]core.Message, len(messages))
	for i, m := range messages {
		m.Audio = nil
		out[i] = m
	}
	return out
}
