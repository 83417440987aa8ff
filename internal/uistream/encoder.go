package uistream

import "github.com/tidwall/sjson"

var (
	sseDataPrefix = []byte("data: ")
	sseSuffix     = []byte("\n\n")
	sseDone       = []byte("data: [DONE]\n\n")
	sseKeepAlive  = []byte(": keep-alive\n\n")
)

// DoneFrame returns the terminal marker frame. The returned slice is a fresh copy.
func DoneFrame() []byte {
	return append([]byte(nil), sseDone...)
}

// KeepAliveFrame returns an SSE comment frame that clients ignore.
func KeepAliveFrame() []byte {
	return append([]byte(nil), sseKeepAlive...)
}

// IsDoneFrame reports whether frame is the terminal marker.
func IsDoneFrame(frame []byte) bool {
	return string(frame) == string(sseDone)
}

// Encode serialises an event as a JSON object. Every field required by the event's shape is
// always present, even when empty.
func Encode(ev Event) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "type", string(ev.Type))

	switch ev.Type {
	case TypeStart:
		out, _ = sjson.SetBytes(out, "messageId", ev.MessageID)
	case TypeTextStart, TypeTextEnd:
		out, _ = sjson.SetBytes(out, "id", ev.ID)
	case TypeTextDelta:
		out, _ = sjson.SetBytes(out, "id", ev.ID)
		out, _ = sjson.SetBytes(out, "delta", ev.Delta)
	case TypeDataArtifact:
		out, _ = sjson.SetBytes(out, "id", ev.ID)
		out, _ = sjson.SetRawBytes(out, "data", rawOr(ev.Data, "null"))
	case TypeDataConversation:
		out, _ = sjson.SetRawBytes(out, "data", rawOr(ev.Data, "null"))
	case TypeError:
		out, _ = sjson.SetBytes(out, "errorText", ev.ErrorText)
	case TypeToolInputStart:
		out, _ = sjson.SetBytes(out, "toolCallId", ev.ToolCallID)
		out, _ = sjson.SetBytes(out, "toolName", ev.ToolName)
	case TypeToolInputDelta:
		out, _ = sjson.SetBytes(out, "toolCallId", ev.ToolCallID)
		out, _ = sjson.SetBytes(out, "inputTextDelta", ev.InputTextDelta)
	case TypeToolInputAvailable:
		out, _ = sjson.SetBytes(out, "toolCallId", ev.ToolCallID)
		out, _ = sjson.SetBytes(out, "toolName", ev.ToolName)
		out, _ = sjson.SetRawBytes(out, "input", rawOr(ev.Input, "{}"))
	case TypeToolOutputAvailable:
		out, _ = sjson.SetBytes(out, "toolCallId", ev.ToolCallID)
		out, _ = sjson.SetRawBytes(out, "output", rawOr(ev.Output, "null"))
	}
	return out
}

// Frame encodes ev as a complete SSE data frame: "data: <json>\n\n".
func Frame(ev Event) []byte {
	data := Encode(ev)
	frame := make([]byte, 0, len(sseDataPrefix)+len(data)+len(sseSuffix))
	frame = append(frame, sseDataPrefix...)
	frame = append(frame, data...)
	frame = append(frame, sseSuffix...)
	return frame
}

func rawOr(raw []byte, fallback string) []byte {
	if len(raw) == 0 {
		return []byte(fallback)
	}
	return raw
}
