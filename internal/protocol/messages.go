package protocol

import (
	"encoding/json"
	"fmt"
)

// The gateway control protocol is a closed set of JSON text frames exchanged
// over the persistent websocket connection to an Android GSM gateway. Binary
// frames on the same connection carry raw little-endian 16-bit mono PCM and
// never pass through this package.
//
// Every text frame carries a "type" discriminant. Unknown discriminants are
// reported as ErrUnknownType so the caller can log and ignore them; a gateway
// firmware update must not be able to kill the bridge loop.

type MessageType string

const (
	// Gateway -> bridge.
	TypeIncomingCall  MessageType = "INCOMING_CALL"
	TypeCallConnected MessageType = "CALL_CONNECTED"
	TypeCallEnded     MessageType = "CALL_ENDED"

	// Bridge -> gateway.
	TypeAnswerCall     MessageType = "ANSWER_CALL"
	TypeRejectCall     MessageType = "REJECT_CALL"
	TypeForwardCall    MessageType = "FORWARD_CALL"
	TypeSessionReady   MessageType = "SESSION_READY"
	TypeSessionError   MessageType = "SESSION_ERROR"
	TypeTurnComplete   MessageType = "TURN_COMPLETE"
	TypeToolExecution  MessageType = "TOOL_EXECUTION"
	TypeCallTranscript MessageType = "CALL_TRANSCRIPT"
)

// IncomingCall announces a ringing call before it is answered.
type IncomingCall struct {
	Type         MessageType `json:"type"`
	CallID       string      `json:"call_id"`
	FromNumber   string      `json:"from_number"`
	ToNumber     string      `json:"to_number"`
	Carrier      string      `json:"carrier,omitempty"`
	SimSlot      int         `json:"sim_slot,omitempty"`
	GatewayID    string      `json:"gateway_id"`
}

// CallConnected signals that audio is flowing for a call. Gateways that
// auto-answer locally may send this without a preceding INCOMING_CALL.
type CallConnected struct {
	Type            MessageType `json:"type"`
	CallID          string      `json:"call_id"`
	CallerNumber    string      `json:"caller_number"`
	GatewayID       string      `json:"gateway_id"`
	KnowledgeBaseID string      `json:"knowledge_base_id,omitempty"`
	OrgID           string      `json:"org_id,omitempty"`
}

// CallEnded signals hangup from either side.
type CallEnded struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Reason string      `json:"reason,omitempty"`
}

type AnswerCall struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
}

type RejectCall struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Reason string      `json:"reason,omitempty"`
}

type ForwardCall struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	ForwardTo string      `json:"forward_to"`
}

type SessionReady struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	SessionID string      `json:"session_id"`
}

type SessionError struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Error  string      `json:"error"`
}

// TurnComplete closes one AI speaking turn, carrying the transcripts
// accumulated since the previous turn boundary.
type TurnComplete struct {
	Type             MessageType `json:"type"`
	CallID           string      `json:"call_id"`
	OutputTranscript string      `json:"output_transcript,omitempty"`
	InputTranscript  string      `json:"input_transcript,omitempty"`
	WasInterrupted   bool        `json:"was_interrupted"`
}

type ToolStatus string

const (
	ToolStatusExecuting ToolStatus = "executing"
	ToolStatusCompleted ToolStatus = "completed"
)

type ToolExecution struct {
	Type       MessageType `json:"type"`
	CallID     string      `json:"call_id"`
	ToolName   string      `json:"tool_name"`
	ToolCallID string      `json:"tool_call_id"`
	Status     ToolStatus  `json:"status"`
}

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// CallTranscript is an incremental transcript fragment, emitted as the
// upstream transcription arrives rather than at turn boundaries.
type CallTranscript struct {
	Type    MessageType `json:"type"`
	CallID  string      `json:"call_id"`
	Speaker Speaker     `json:"speaker"`
	Text    string      `json:"text"`
}

// UnknownTypeError reports a discriminant outside the closed catalog.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("protocol: unknown message type %q", e.Type)
}

type envelope struct {
	Type MessageType `json:"type"`
}

// Decode parses one text frame into its typed message. Both directions of
// the catalog are covered so gateway clients and tests can share the
// decoder; the bridge itself only ever sees the gateway->bridge types.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}

	var m any
	switch env.Type {
	case TypeIncomingCall:
		m = &IncomingCall{}
	case TypeCallConnected:
		m = &CallConnected{}
	case TypeCallEnded:
		m = &CallEnded{}
	case TypeAnswerCall:
		m = &AnswerCall{}
	case TypeRejectCall:
		m = &RejectCall{}
	case TypeForwardCall:
		m = &ForwardCall{}
	case TypeSessionReady:
		m = &SessionReady{}
	case TypeSessionError:
		m = &SessionError{}
	case TypeTurnComplete:
		m = &TurnComplete{}
	case TypeToolExecution:
		m = &ToolExecution{}
	case TypeCallTranscript:
		m = &CallTranscript{}
	default:
		return nil, &UnknownTypeError{Type: string(env.Type)}
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("protocol: bad %s frame: %w", env.Type, err)
	}
	return m, nil
}

// Outbound constructors keep the discriminant in one place.

func NewAnswerCall(callID string) AnswerCall {
	return AnswerCall{Type: TypeAnswerCall, CallID: callID}
}

func NewRejectCall(callID, reason string) RejectCall {
	return RejectCall{Type: TypeRejectCall, CallID: callID, Reason: reason}
}

func NewForwardCall(callID, forwardTo string) ForwardCall {
	return ForwardCall{Type: TypeForwardCall, CallID: callID, ForwardTo: forwardTo}
}

func NewSessionReady(callID, sessionID string) SessionReady {
	return SessionReady{Type: TypeSessionReady, CallID: callID, SessionID: sessionID}
}

func NewSessionError(callID, msg string) SessionError {
	return SessionError{Type: TypeSessionError, CallID: callID, Error: msg}
}

func NewTurnComplete(callID, outputTranscript, inputTranscript string, interrupted bool) TurnComplete {
	return TurnComplete{
		Type:             TypeTurnComplete,
		CallID:           callID,
		OutputTranscript: outputTranscript,
		InputTranscript:  inputTranscript,
		WasInterrupted:   interrupted,
	}
}

func NewToolExecution(callID, toolName, toolCallID string, status ToolStatus) ToolExecution {
	return ToolExecution{
		Type:       TypeToolExecution,
		CallID:     callID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Status:     status,
	}
}

func NewCallTranscript(callID string, speaker Speaker, text string) CallTranscript {
	return CallTranscript{Type: TypeCallTranscript, CallID: callID, Speaker: speaker, Text: text}
}
