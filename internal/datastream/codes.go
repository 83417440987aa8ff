// Package datastream decodes the line-delimited Data Stream Protocol produced by the backend
// chat service. Each logical line has the shape `<code>:<json>` where code is a single ASCII
// character. The package is transport agnostic: Reassembler turns arbitrary byte chunks into
// complete lines and Decode turns a line into an Event.
package datastream

// Code is the single-character type tag that prefixes every Data Stream Protocol line.
type Code byte

const (
	CodeText          Code = '0'
	CodeData          Code = '2'
	CodeError         Code = '3'
	CodeToolCallStart Code = '7'
	CodeToolCallDelta Code = '8'
	CodeToolCall      Code = '9'
	CodeToolResult    Code = 'a'
	CodeFinishMessage Code = 'd'
	CodeFinishStep    Code = 'e'
	CodeStartStep     Code = 'f'
)

var codeNames = map[Code]string{
	CodeText:          "text",
	CodeData:          "data",
	CodeError:         "error",
	CodeToolCallStart: "tool_call_streaming_start",
	CodeToolCallDelta: "tool_call_delta",
	CodeToolCall:      "tool_call",
	CodeToolResult:    "tool_result",
	CodeFinishMessage: "finish_message",
	CodeFinishStep:    "finish_step",
	CodeStartStep:     "start_step",
}

// Known reports whether c is one of the type codes this relay translates.
func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

// String returns a readable name for the code, or the raw character for unknown codes.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown(" + string(rune(c)) + ")"
}
