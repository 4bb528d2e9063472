package bridge

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/krantiutils/ring-ai-sub000/internal/aisession"
	"github.com/krantiutils/ring-ai-sub000/internal/audio"
	"github.com/krantiutils/ring-ai-sub000/internal/protocol"
)

// Sample rates on either side of the relay. The live API synthesizes at
// 24kHz; the gateway plays back telephony audio at 16kHz.
const (
	upstreamRate = 24000
	gatewayRate  = 16000
)

// relay drains one session's response stream and pushes it to the gateway.
// It exits on stream end, cancellation, or a failed gateway send; it never
// tears the call down itself, that stays with the Run loop.
func (b *Bridge) relay(ctx context.Context, callID string, stream liveStream, done chan struct{}) {
	defer close(done)

	var inputTx, outputTx strings.Builder

	for {
		resp, err := stream.Receive(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				b.log.Error("relay receive failed", "call_id", callID, "error", err)
			}
			return
		}

		// A tool batch suspends the relay until every result is back
		// upstream; the server sends nothing further for this call until
		// it has the responses.
		if len(resp.ToolCalls) > 0 {
			b.runTools(ctx, callID, stream, resp.ToolCalls)
			continue
		}

		if len(resp.Audio) > 0 {
			if !b.relayAudio(callID, resp.Audio) {
				return
			}
		}

		if resp.InputTranscript != "" {
			inputTx.WriteString(resp.InputTranscript)
			b.send(protocol.NewCallTranscript(callID, protocol.SpeakerUser, resp.InputTranscript))
		}
		if resp.OutputTranscript != "" {
			outputTx.WriteString(resp.OutputTranscript)
			b.send(protocol.NewCallTranscript(callID, protocol.SpeakerAssistant, resp.OutputTranscript))
		}

		if resp.TurnComplete || resp.Interrupted {
			b.send(protocol.NewTurnComplete(callID, outputTx.String(), inputTx.String(), resp.Interrupted))
			inputTx.Reset()
			outputTx.Reset()
		}
	}
}

// relayAudio downsamples one synthesized chunk and writes it as a binary
// frame. Returns false when the gateway write fails and the relay should
// stop.
func (b *Bridge) relayAudio(callID string, pcm []byte) bool {
	out, err := audio.Resample(pcm, upstreamRate, gatewayRate)
	if err != nil {
		b.log.Warn("dropping malformed audio chunk", "call_id", callID, "error", err)
		return true
	}
	if err := b.sendBinary(out); err != nil {
		b.log.Error("gateway audio send failed", "call_id", callID, "error", err)
		return false
	}
	return true
}

// runTools executes a tool batch, narrating progress to the gateway, and
// returns the whole batch upstream in one response.
func (b *Bridge) runTools(ctx context.Context, callID string, stream liveStream, toolCalls []aisession.ToolCall) {
	results := make([]aisession.ToolResult, 0, len(toolCalls))

	for _, tc := range toolCalls {
		b.send(protocol.NewToolExecution(callID, tc.Name, tc.ID, protocol.ToolStatusExecuting))

		var result map[string]any
		if b.executor != nil {
			result = b.executor.Execute(ctx, tc)
		} else {
			result = map[string]any{"error": "no tool executor configured"}
		}

		b.send(protocol.NewToolExecution(callID, tc.Name, tc.ID, protocol.ToolStatusCompleted))
		results = append(results, aisession.ToolResult{ID: tc.ID, Name: tc.Name, Result: result})
	}

	if err := stream.SendToolResponse(results); err != nil {
		b.log.Error("tool response send failed", "call_id", callID, "error", err)
	}
}
