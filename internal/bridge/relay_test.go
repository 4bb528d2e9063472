package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/krantiutils/ring-ai-sub000/internal/aisession"
	"github.com/krantiutils/ring-ai-sub000/internal/protocol"

	"github.com/gorilla/websocket"
)

// scriptedStream replays a fixed sequence of upstream responses, then EOF.
type scriptedStream struct {
	mu            sync.Mutex
	script        []*aisession.AgentResponse
	toolResponses [][]aisession.ToolResult
}

func (s *scriptedStream) Receive(ctx context.Context) (*aisession.AgentResponse, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return nil, io.EOF
	}
	resp := s.script[0]
	s.script = s.script[1:]
	return resp, nil
}

func (s *scriptedStream) SendAudio(pcm []byte) error { return nil }

func (s *scriptedStream) Close() error { return nil }

func (s *scriptedStream) SendToolResponse(results []aisession.ToolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolResponses = append(s.toolResponses, results)
	return nil
}

func runRelay(t *testing.T, b *Bridge, stream liveStream) {
	t.Helper()
	done := make(chan struct{})
	go b.relay(context.Background(), "c1", stream, done)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not finish")
	}
}

func TestRelayToolBatch(t *testing.T) {
	exec := &stubExecutor{}
	conn := newFakeConn()
	b := New(conn, "g1", nil, nil, exec, discardLog())

	stream := &scriptedStream{script: []*aisession.AgentResponse{
		{ToolCalls: []aisession.ToolCall{{ID: "fc-1", Name: "transfer_to_human", Args: map[string]any{}}}},
	}}
	runRelay(t, b, stream)

	w := conn.snapshot()
	if len(w) != 2 {
		t.Fatalf("expected 2 gateway frames, got %d", len(w))
	}
	first := decodeFrame(t, w[0]).(*protocol.ToolExecution)
	second := decodeFrame(t, w[1]).(*protocol.ToolExecution)
	if first.Status != protocol.ToolStatusExecuting || second.Status != protocol.ToolStatusCompleted {
		t.Fatalf("expected executing then completed, got %s then %s", first.Status, second.Status)
	}
	if first.ToolName != "transfer_to_human" || first.ToolCallID != "fc-1" {
		t.Fatalf("unexpected tool frame %+v", first)
	}

	if len(stream.toolResponses) != 1 || len(stream.toolResponses[0]) != 1 {
		t.Fatalf("expected one batch of one result, got %v", stream.toolResponses)
	}
	res := stream.toolResponses[0][0]
	if res.Name != "transfer_to_human" || res.ID != "fc-1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRelayNoExecutorSynthesizesError(t *testing.T) {
	conn := newFakeConn()
	b := New(conn, "g1", nil, nil, nil, discardLog())

	stream := &scriptedStream{script: []*aisession.AgentResponse{
		{ToolCalls: []aisession.ToolCall{{ID: "fc-1", Name: "lookup_account"}}},
	}}
	runRelay(t, b, stream)

	if len(stream.toolResponses) != 1 {
		t.Fatalf("expected a tool response batch, got %v", stream.toolResponses)
	}
	res := stream.toolResponses[0][0]
	if res.Result["error"] == nil {
		t.Fatalf("expected synthesized error result, got %v", res.Result)
	}
}

func TestRelayResamplesAudio(t *testing.T) {
	conn := newFakeConn()
	b := New(conn, "g1", nil, nil, nil, discardLog())

	// Six constant samples at 24kHz downsample to four at 16kHz.
	pcm := make([]byte, 12)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0x10
	}
	stream := &scriptedStream{script: []*aisession.AgentResponse{{Audio: pcm}}}
	runRelay(t, b, stream)

	w := conn.snapshot()
	if len(w) != 1 || w[0].msgType != websocket.BinaryMessage {
		t.Fatalf("expected one binary frame, got %+v", w)
	}
	if len(w[0].data) != 8 {
		t.Fatalf("expected 8 bytes after resampling, got %d", len(w[0].data))
	}
	for i := 0; i < len(w[0].data); i += 2 {
		if w[0].data[i] != 0x10 || w[0].data[i+1] != 0x00 {
			t.Fatalf("constant signal not preserved: % x", w[0].data)
		}
	}
}

func TestRelayTranscriptsAndTurnComplete(t *testing.T) {
	conn := newFakeConn()
	b := New(conn, "g1", nil, nil, nil, discardLog())

	stream := &scriptedStream{script: []*aisession.AgentResponse{
		{InputTranscript: "hello "},
		{InputTranscript: "there"},
		{OutputTranscript: "hi, how can I help"},
		{TurnComplete: true},
		{OutputTranscript: "second turn"},
		{Interrupted: true},
	}}
	runRelay(t, b, stream)

	w := conn.snapshot()
	if len(w) != 6 {
		t.Fatalf("expected 6 frames, got %d", len(w))
	}

	tx := decodeFrame(t, w[0]).(*protocol.CallTranscript)
	if tx.Speaker != protocol.SpeakerUser || tx.Text != "hello " {
		t.Fatalf("unexpected first transcript %+v", tx)
	}
	tx = decodeFrame(t, w[2]).(*protocol.CallTranscript)
	if tx.Speaker != protocol.SpeakerAssistant {
		t.Fatalf("expected assistant transcript, got %+v", tx)
	}

	turn := decodeFrame(t, w[3]).(*protocol.TurnComplete)
	if turn.InputTranscript != "hello there" || turn.OutputTranscript != "hi, how can I help" {
		t.Fatalf("transcripts not accumulated: %+v", turn)
	}
	if turn.WasInterrupted {
		t.Fatalf("first turn was not interrupted")
	}

	// Accumulators reset at the turn boundary.
	turn = decodeFrame(t, w[5]).(*protocol.TurnComplete)
	if turn.OutputTranscript != "second turn" || turn.InputTranscript != "" {
		t.Fatalf("accumulators not reset: %+v", turn)
	}
	if !turn.WasInterrupted {
		t.Fatalf("second turn should be interrupted")
	}
}

func TestRelayStopsOnAudioSendFailure(t *testing.T) {
	conn := newFakeConn()
	conn.failBinary(errors.New("gateway gone"))
	b := New(conn, "g1", nil, nil, nil, discardLog())

	stream := &scriptedStream{script: []*aisession.AgentResponse{
		{Audio: make([]byte, 12)},
		{OutputTranscript: "never sent"},
	}}
	runRelay(t, b, stream)

	if w := conn.snapshot(); len(w) != 0 {
		t.Fatalf("expected no frames after send failure, got %d", len(w))
	}
}

func TestRelayMalformedAudioSkipped(t *testing.T) {
	conn := newFakeConn()
	b := New(conn, "g1", nil, nil, nil, discardLog())

	stream := &scriptedStream{script: []*aisession.AgentResponse{
		{Audio: []byte{0x01, 0x02, 0x03}},
		{TurnComplete: true},
	}}
	runRelay(t, b, stream)

	w := conn.snapshot()
	if len(w) != 1 {
		t.Fatalf("expected only the turn frame, got %d frames", len(w))
	}
	if _, ok := decodeFrame(t, w[0]).(*protocol.TurnComplete); !ok {
		t.Fatalf("expected TURN_COMPLETE after skipping bad audio")
	}
}

// blockingStream never yields until cancelled.
type blockingStream struct{}

func (blockingStream) Receive(ctx context.Context) (*aisession.AgentResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStream) SendAudio(pcm []byte) error                      { return nil }
func (blockingStream) SendToolResponse(r []aisession.ToolResult) error { return nil }
func (blockingStream) Close() error                                    { return nil }

func TestRelayCancellationSendsNothing(t *testing.T) {
	conn := newFakeConn()
	b := New(conn, "g1", nil, nil, nil, discardLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go b.relay(ctx, "c1", blockingStream{}, done)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop on cancellation")
	}
	if w := conn.snapshot(); len(w) != 0 {
		t.Fatalf("cancelled relay wrote %d frames", len(w))
	}
}
