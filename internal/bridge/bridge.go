package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/krantiutils/ring-ai-sub000/internal/aisession"
	"github.com/krantiutils/ring-ai-sub000/internal/calls"
	"github.com/krantiutils/ring-ai-sub000/internal/protocol"
	"github.com/krantiutils/ring-ai-sub000/internal/routing"

	"github.com/gorilla/websocket"
)

// GatewayConn is the slice of *websocket.Conn the bridge uses. Injectable
// so tests can script a gateway without a network socket.
type GatewayConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// CallRouter decides what to do with an incoming call. *routing.Router
// satisfies it; a nil router answers everything.
type CallRouter interface {
	Route(ctx context.Context, gatewayID, callID, callerNumber string) routing.Decision
	LogInteraction(ctx context.Context, d routing.Decision, gatewayID, callerNumber string)
}

// ToolExecutor resolves one mid-call function invocation to a result map.
type ToolExecutor interface {
	Execute(ctx context.Context, call aisession.ToolCall) map[string]any
}

// liveStream is the slice of *aisession.Session the relay loop drives.
type liveStream interface {
	Receive(ctx context.Context) (*aisession.AgentResponse, error)
	SendAudio(pcm []byte) error
	SendToolResponse(results []aisession.ToolResult) error
	Close() error
}

// Bridge owns one gateway connection end to end: it runs the read loop,
// dispatches protocol messages, forwards caller audio upstream and relays
// AI output back down.
//
// Invariants:
// - At most one active call per bridge; a second CALL_CONNECTED tears the
//   stale call down first.
// - pending and the active-call fields are touched only by the Run loop,
//   so they need no lock. Gateway writes are serialized by writeMu because
//   the relay goroutine shares the socket.
type Bridge struct {
	conn      GatewayConn
	gatewayID string
	router    CallRouter
	manager   *calls.Manager
	executor  ToolExecutor
	log       *slog.Logger

	writeMu sync.Mutex

	// pending holds routing decisions between INCOMING_CALL and
	// CALL_CONNECTED, keyed by call id.
	pending map[string]routing.Decision

	activeCallID string
	activeStream liveStream
	relayCancel  context.CancelFunc
	relayDone    chan struct{}
}

func New(conn GatewayConn, gatewayID string, router CallRouter, manager *calls.Manager, executor ToolExecutor, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		conn:      conn,
		gatewayID: gatewayID,
		router:    router,
		manager:   manager,
		executor:  executor,
		log:       log.With("gateway_id", gatewayID),
		pending:   make(map[string]routing.Decision),
	}
}

// Run drives the connection until the gateway disconnects. It always tears
// the active call down before returning, so no session outlives its bridge.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.teardownActive("bridge closed")

	for {
		msgType, data, err := b.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				b.log.Info("gateway disconnected", "error", err)
			}
			return err
		}

		switch msgType {
		case websocket.BinaryMessage:
			b.forwardAudio(data)
		case websocket.TextMessage:
			b.dispatch(ctx, data)
		}
	}
}

// forwardAudio pushes caller PCM to the active session. Audio with no
// active call is dropped silently; early frames around call setup are
// normal, not an error.
func (b *Bridge) forwardAudio(pcm []byte) {
	if b.activeStream == nil {
		return
	}
	if err := b.activeStream.SendAudio(pcm); err != nil {
		b.log.Debug("audio forward failed", "call_id", b.activeCallID, "error", err)
	}
}

func (b *Bridge) dispatch(ctx context.Context, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		b.log.Warn("unhandled gateway message", "error", err)
		return
	}

	switch m := msg.(type) {
	case *protocol.IncomingCall:
		b.handleIncoming(ctx, m)
	case *protocol.CallConnected:
		b.handleConnected(ctx, m)
	case *protocol.CallEnded:
		b.handleEnded(m)
	default:
		b.log.Warn("ignoring server-to-gateway message from gateway", "payload", string(data))
	}
}

func (b *Bridge) handleIncoming(ctx context.Context, m *protocol.IncomingCall) {
	gatewayID := m.GatewayID
	if gatewayID == "" {
		gatewayID = b.gatewayID
	}

	d := routing.Decision{Action: routing.ActionAnswer, CallID: m.CallID}
	if b.router != nil {
		d = b.router.Route(ctx, gatewayID, m.CallID, m.FromNumber)
		// Logging must never delay the decision reaching the gateway.
		go b.router.LogInteraction(context.WithoutCancel(ctx), d, gatewayID, m.FromNumber)
	}

	switch d.Action {
	case routing.ActionReject:
		b.send(protocol.NewRejectCall(m.CallID, d.RejectReason))
	case routing.ActionForward:
		if d.ForwardTo == "" {
			b.log.Error("forward rule without target, answering instead", "call_id", m.CallID)
			b.pending[m.CallID] = d
			b.send(protocol.NewAnswerCall(m.CallID))
			return
		}
		b.send(protocol.NewForwardCall(m.CallID, d.ForwardTo))
	default:
		b.pending[m.CallID] = d
		b.send(protocol.NewAnswerCall(m.CallID))
	}
}

func (b *Bridge) handleConnected(ctx context.Context, m *protocol.CallConnected) {
	if b.activeCallID != "" {
		b.teardownActive("replaced by new call")
	}

	// Gateways that answer locally send CALL_CONNECTED with no preceding
	// INCOMING_CALL; the pending decision is optional.
	d, routed := b.pending[m.CallID]
	delete(b.pending, m.CallID)

	orgID := m.OrgID
	if routed && d.OrgID != "" {
		orgID = d.OrgID
	}

	var cfg aisession.SessionConfig
	if routed {
		cfg.SystemInstruction = d.SystemInstruction
		cfg.Voice = d.VoiceName
	}

	rec, err := b.manager.CreateSession(ctx, calls.CreateParams{
		CallID:          m.CallID,
		GatewayID:       b.gatewayID,
		CallerNumber:    m.CallerNumber,
		OrgID:           orgID,
		Config:          cfg,
		KnowledgeBaseID: m.KnowledgeBaseID,
	})
	if err != nil {
		b.log.Error("session creation failed", "call_id", m.CallID, "error", err)
		b.send(protocol.NewSessionError(m.CallID, "failed to start AI session"))
		return
	}

	b.activeCallID = m.CallID
	b.activeStream = rec.Session
	b.send(protocol.NewSessionReady(m.CallID, rec.SessionID))

	relayCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.relayCancel = cancel
	b.relayDone = done
	go b.relay(relayCtx, m.CallID, rec.Session, done)
}

func (b *Bridge) handleEnded(m *protocol.CallEnded) {
	delete(b.pending, m.CallID)

	if m.CallID == b.activeCallID {
		b.teardownActive(m.Reason)
		return
	}
	// Late or duplicate event for a call that is no longer active here.
	b.manager.EndSession(m.CallID)
}

// teardownActive stops the relay and releases the call. Cancelling the
// relay context is not enough on its own: the relay is usually parked in a
// websocket read that only notices cancellation between frames, so the
// session is closed first to fail that read. The relay is awaited before
// the session goes back to the pool so a recycled slot can never receive
// writes from a dead call.
func (b *Bridge) teardownActive(reason string) {
	if b.activeCallID == "" {
		return
	}

	if b.relayCancel != nil {
		b.relayCancel()
		if b.activeStream != nil {
			_ = b.activeStream.Close()
		}
		<-b.relayDone
	}
	b.manager.EndSession(b.activeCallID)

	b.log.Info("call torn down", "call_id", b.activeCallID, "reason", reason)
	b.activeCallID = ""
	b.activeStream = nil
	b.relayCancel = nil
	b.relayDone = nil
}

func (b *Bridge) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Bridge) sendBinary(pcm []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteMessage(websocket.BinaryMessage, pcm)
}
