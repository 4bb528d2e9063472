package aisession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultConnectTimeout = 15 * time.Second

	// Upstream audio contract: we send 16kHz PCM in, synthesized speech
	// comes back at 24kHz.
	inputMimeType = "audio/pcm;rate=16000"
)

// State is the session lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	// StateExtending means the server announced it will drop the connection
	// soon (goAway); the captured resumption handle lets a new session pick
	// the conversation back up.
	StateExtending State = "extending"
	StateClosing   State = "closing"
	StateClosed    State = "closed"
	StateError     State = "error"
)

// SessionConfig is immutable per-session setup. Zero values fall back to the
// defaults below, so a RoutingDecision can override only what it carries.
type SessionConfig struct {
	APIKey            string
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []FunctionDeclaration

	InputTranscription  bool
	OutputTranscription bool

	ConnectTimeout   time.Duration
	ResumptionHandle string

	// Endpoint overrides the live API URL; tests point it at a local server.
	Endpoint string
}

// ToolCall is one function invocation requested by the model mid-turn.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the executed outcome sent back via SendToolResponse.
type ToolResult struct {
	ID     string
	Name   string
	Result map[string]any
}

// AgentResponse is one demultiplexed upstream event. A response carries
// either a tool-call batch (nothing else set) or any mix of content fields
// from a single server frame. Never persisted.
type AgentResponse struct {
	Audio            []byte
	Text             string
	InputTranscript  string
	OutputTranscript string
	ToolCalls        []ToolCall
	TurnComplete     bool
	Interrupted      bool
}

// Session wraps one duplex streaming connection to the live conversational
// AI service.
//
// Concurrency: one goroutine drives Receive while another may call the Send
// methods; writes are serialized internally (the websocket allows a single
// concurrent writer). Connect/Close may race with either and are guarded by
// the state lock.
type Session struct {
	cfg SessionConfig
	log *slog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	writeMu sync.Mutex

	resumeMu         sync.Mutex
	resumptionHandle string
}

func NewSession(cfg SessionConfig, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{cfg: cfg, log: log, state: StateIdle}
}

// Connect dials the live endpoint and performs the setup handshake. Calling
// it on an already-connected session logs a warning and is a no-op.
// A non-empty resumption handle (from config) asks the server to restore the
// prior conversation context.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateActive || s.state == StateConnecting || s.state == StateExtending {
		s.mu.Unlock()
		s.log.Warn("session already connected, ignoring connect", "state", s.state)
		return nil
	}
	if s.cfg.APIKey == "" {
		s.state = StateError
		s.mu.Unlock()
		return &ConfigurationError{Reason: "missing API key"}
	}
	if s.cfg.Model == "" {
		s.state = StateError
		s.mu.Unlock()
		return &ConfigurationError{Reason: "missing model id"}
	}
	s.state = StateConnecting
	s.mu.Unlock()

	endpoint := s.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := s.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, endpoint+"?key="+s.cfg.APIKey, nil)
	if err != nil {
		s.setState(StateError)
		return &ClientError{Op: "dial", Err: err}
	}

	if err := conn.WriteJSON(s.setupMessage()); err != nil {
		conn.Close()
		s.setState(StateError)
		return &ClientError{Op: "setup write", Err: err}
	}

	// The first frame back must be setupComplete.
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		s.setState(StateError)
		return &ClientError{Op: "setup read", Err: err}
	}
	var resp serverMessage
	if err := json.Unmarshal(raw, &resp); err != nil {
		conn.Close()
		s.setState(StateError)
		return &ClientError{Op: "setup parse", Err: err}
	}
	if resp.SetupComplete == nil {
		conn.Close()
		s.setState(StateError)
		return &ClientError{Op: "setup", Err: fmt.Errorf("expected setupComplete, got %s", raw)}
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateActive
	s.mu.Unlock()

	s.log.Debug("live session established", "model", s.cfg.Model, "resumed", s.cfg.ResumptionHandle != "")
	return nil
}

func (s *Session) setupMessage() setupMessage {
	var msg setupMessage
	msg.Setup.Model = s.cfg.Model
	msg.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	if s.cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: s.cfg.Voice}},
		}
	}
	if s.cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: s.cfg.SystemInstruction}}}
	}
	if len(s.cfg.Tools) > 0 {
		msg.Setup.Tools = []toolDeclarations{{FunctionDeclarations: s.cfg.Tools}}
	}
	if s.cfg.InputTranscription {
		msg.Setup.InputAudioTranscription = &struct{}{}
	}
	if s.cfg.OutputTranscription {
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	// Always request resumption updates; the handle is what lets a dropped
	// connection reconnect with context preserved.
	msg.Setup.SessionResumption = &sessionResumption{Handle: s.cfg.ResumptionHandle}
	return msg
}

// SendAudio forwards one chunk of 16kHz little-endian PCM to the model.
func (s *Session) SendAudio(pcm []byte) error {
	msg := realtimeInputMessage{}
	msg.RealtimeInput.MediaChunks = []blob{{
		MimeType: inputMimeType,
		Data:     base64.StdEncoding.EncodeToString(pcm),
	}}
	return s.writeJSON("send audio", msg)
}

// SendAudioEnd marks the end of the caller's audio stream.
func (s *Session) SendAudioEnd() error {
	end := true
	msg := realtimeInputMessage{}
	msg.RealtimeInput.AudioStreamEnd = &end
	return s.writeJSON("send audio end", msg)
}

// SendText submits a complete user text turn.
func (s *Session) SendText(text string) error {
	msg := clientContentMessage{}
	msg.ClientContent.Turns = []content{{Role: "user", Parts: []part{{Text: text}}}}
	msg.ClientContent.TurnComplete = true
	return s.writeJSON("send text", msg)
}

// SendToolResponse returns executed tool results to the model as one batch.
func (s *Session) SendToolResponse(results []ToolResult) error {
	msg := toolResponseMessage{}
	for _, r := range results {
		msg.ToolResponse.FunctionResponses = append(msg.ToolResponse.FunctionResponses, functionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Result,
		})
	}
	return s.writeJSON("send tool response", msg)
}

func (s *Session) writeJSON(op string, v any) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()
	if conn == nil || (state != StateActive && state != StateExtending) {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return &ClientError{Op: op, Err: err}
	}
	return nil
}

// Receive blocks for the next upstream event. It returns io.EOF when the
// stream ends cleanly (server close or local Close), a ClientError on
// transport failure, and ErrNotConnected before Connect.
//
// Demultiplexing: each server frame becomes exactly one AgentResponse. A
// tool-call batch is yielded on its own; resumption-handle updates and
// goAway notices are absorbed here and never surface to the caller. After a
// tool-call response the caller must execute the tools and SendToolResponse
// before iterating further; the server enforces that ordering, the session
// holds no state for it.
func (s *Session) Receive(ctx context.Context) (*AgentResponse, error) {
	for {
		s.mu.Lock()
		conn := s.conn
		state := s.state
		s.mu.Unlock()
		if state == StateClosing || state == StateClosed {
			return nil, io.EOF
		}
		if conn == nil || state == StateIdle || state == StateError {
			return nil, ErrNotConnected
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.state == StateClosing || s.state == StateClosed
			s.mu.Unlock()
			if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, &ClientError{Op: "receive", Err: err}
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Warn("unparseable live frame, skipping", "err", err)
			continue
		}

		switch {
		case msg.ToolCall != nil:
			resp := &AgentResponse{}
			for _, fc := range msg.ToolCall.FunctionCalls {
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
			}
			if len(resp.ToolCalls) == 0 {
				continue
			}
			return resp, nil

		case msg.ServerContent != nil:
			resp := s.demuxContent(msg.ServerContent)
			if resp == nil {
				continue
			}
			return resp, nil

		case msg.SessionResumptionUpdate != nil:
			if msg.SessionResumptionUpdate.Resumable && msg.SessionResumptionUpdate.NewHandle != "" {
				s.resumeMu.Lock()
				s.resumptionHandle = msg.SessionResumptionUpdate.NewHandle
				s.resumeMu.Unlock()
			}
			continue

		case msg.GoAway != nil:
			s.log.Info("live server announced disconnect", "time_left", msg.GoAway.TimeLeft)
			s.mu.Lock()
			if s.state == StateActive {
				s.state = StateExtending
			}
			s.mu.Unlock()
			continue

		default:
			continue
		}
	}
}

func (s *Session) demuxContent(sc *serverContent) *AgentResponse {
	resp := &AgentResponse{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.InputTranscription != nil {
		resp.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		resp.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil {
				audio, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					s.log.Warn("undecodable audio part, skipping", "err", err)
					continue
				}
				resp.Audio = append(resp.Audio, audio...)
			}
			if p.Text != "" {
				resp.Text += p.Text
			}
		}
	}
	if len(resp.Audio) == 0 && resp.Text == "" && resp.InputTranscript == "" &&
		resp.OutputTranscript == "" && !resp.TurnComplete && !resp.Interrupted {
		return nil
	}
	return resp
}

// Close tears the connection down. Safe to call multiple times and from any
// state; a concurrent Receive unblocks with io.EOF.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResumptionHandle returns the latest handle captured from the stream, or
// empty if the server never issued one.
func (s *Session) ResumptionHandle() string {
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()
	return s.resumptionHandle
}

// Config returns the session's immutable configuration.
func (s *Session) Config() SessionConfig { return s.cfg }

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
