package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Client → server.
	TypeStart MessageType = "voice:start"
	TypeAudio MessageType = "voice:audio"
	TypeStop  MessageType = "voice:stop"
	TypeText  MessageType = "voice:text"

	// Server → client.
	TypeReady          MessageType = "voice:ready"
	TypeTranscript     MessageType = "voice:transcript"
	TypeResponse       MessageType = "voice:response"
	TypeFunctionCall   MessageType = "voice:function_call"
	TypeFunctionResult MessageType = "voice:function_result"
	TypeStatus         MessageType = "voice:status"
	TypeError          MessageType = "voice:error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// SessionConfig carries the client's voice preferences on session start.
type SessionConfig struct {
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

type Start struct {
	Type   MessageType   `json:"type"`
	Config SessionConfig `json:"config"`
}

type Audio struct {
	Type        MessageType `json:"type"`
	ChunkBase64 string      `json:"chunk"`
}

type Stop struct {
	Type MessageType `json:"type"`
}

// Text injects a transcript directly, bypassing audio capture.
type Text struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type Ready struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Mode      string      `json:"mode"`
	Message   string      `json:"message,omitempty"`
}

type Transcript struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text"`
	IsFinal bool        `json:"isFinal"`
}

type Response struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	Function string      `json:"function,omitempty"`
	Success  *bool       `json:"success,omitempty"`
}

type FunctionCall struct {
	Type      MessageType       `json:"type"`
	Function  string            `json:"function"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

type FunctionResult struct {
	Type     MessageType `json:"type"`
	Function string      `json:"function"`
	Success  bool        `json:"success"`
	Result   any         `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

type Status struct {
	Type   MessageType `json:"type"`
	Status string      `json:"status"`
}

type ErrorEvent struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// ParseClientMessage decodes and validates an inbound client payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeStart:
		var msg Start
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAudio:
		var msg Audio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ChunkBase64 == "" {
			return nil, errors.New("invalid voice:audio: empty chunk")
		}
		return msg, nil
	case TypeStop:
		var msg Stop
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeText:
		var msg Text
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid voice:text: empty text")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf extracts the message type from any protocol struct.
func TypeOf(msg any) (MessageType, bool) {
	switch m := msg.(type) {
	case Start:
		return m.Type, true
	case Audio:
		return m.Type, true
	case Stop:
		return m.Type, true
	case Text:
		return m.Type, true
	case Ready:
		return m.Type, true
	case Transcript:
		return m.Type, true
	case Response:
		return m.Type, true
	case FunctionCall:
		return m.Type, true
	case FunctionResult:
		return m.Type, true
	case Status:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
