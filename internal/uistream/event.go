// Package uistream implements the UI Message Stream Protocol side of the relay: the event
// vocabulary, the per-request translation state machine and the SSE frame encoder.
package uistream

import "encoding/json"

// EventType discriminates UI Message Stream events. It is serialised as the "type" field.
type EventType string

const (
	TypeStart               EventType = "start"
	TypeTextStart           EventType = "text-start"
	TypeTextDelta           EventType = "text-delta"
	TypeTextEnd             EventType = "text-end"
	TypeDataArtifact        EventType = "data-artifact"
	TypeDataConversation    EventType = "data-conversation"
	TypeError               EventType = "error"
	TypeToolInputStart      EventType = "tool-input-start"
	TypeToolInputDelta      EventType = "tool-input-delta"
	TypeToolInputAvailable  EventType = "tool-input-available"
	TypeToolOutputAvailable EventType = "tool-output-available"
	TypeFinish              EventType = "finish"
	TypeFinishStep          EventType = "finish-step"
	TypeStartStep           EventType = "start-step"
)

// Event is one outgoing UI Message Stream event. Only the fields relevant to Type are encoded.
type Event struct {
	Type EventType

	MessageID string
	// ID identifies a text block (text-*) or an artifact (data-artifact).
	ID    string
	Delta string

	ErrorText string

	ToolCallID     string
	ToolName       string
	InputTextDelta string

	// Data, Input and Output hold raw JSON values forwarded from the upstream payload.
	Data   json.RawMessage
	Input  json.RawMessage
	Output json.RawMessage
}
