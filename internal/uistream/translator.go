package uistream

import (
	"encoding/json"

	"github.com/finesssee/streambridge/internal/datastream"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// UnknownErrorText is sent when an upstream error carries neither a string nor a message.
const UnknownErrorText = "An unknown error occurred"

// Translator maps decoded Data Stream events onto UI Message Stream events, synthesising the
// text block boundaries the upstream protocol does not carry.
type Translator struct {
	s *Session

	unknown int
	dropped int
}

// NewTranslator returns a translator bound to session.
func NewTranslator(session *Session) *Translator {
	return &Translator{s: session}
}

// Session returns the session the translator mutates.
func (t *Translator) Session() *Session { return t.s }

// Unknown returns the number of events dropped because of an unrecognised type code.
func (t *Translator) Unknown() int { return t.unknown }

// Dropped returns the number of payload items or tool events dropped for lack of required fields.
func (t *Translator) Dropped() int { return t.dropped }

// Start returns the opening event of the session.
func (t *Translator) Start() []Event {
	return []Event{{Type: TypeStart, MessageID: t.s.MessageID}}
}

// Translate processes one decoded event and returns the events to emit, in order.
func (t *Translator) Translate(ev datastream.Event) []Event {
	switch ev.Code {
	case datastream.CodeText:
		return t.text(ev)
	case datastream.CodeData:
		return t.data(ev)
	case datastream.CodeError:
		return []Event{{Type: TypeError, ErrorText: errorText(ev.Payload)}}
	case datastream.CodeToolCallStart:
		return t.toolCallStart(ev)
	case datastream.CodeToolCallDelta:
		return t.toolCallDelta(ev)
	case datastream.CodeToolCall:
		return t.toolCall(ev)
	case datastream.CodeToolResult:
		return t.toolResult(ev)
	case datastream.CodeFinishMessage:
		return t.finish(t.closeText(nil))
	case datastream.CodeFinishStep:
		return []Event{{Type: TypeFinishStep}}
	case datastream.CodeStartStep:
		return []Event{{Type: TypeStartStep}}
	default:
		t.unknown++
		log.Debugf("uistream: dropping event with unknown type code %s", ev.Code)
		return nil
	}
}

// End closes the session after the upstream finished normally.
func (t *Translator) End() []Event {
	return t.finish(t.closeText(nil))
}

// Fail closes the session after an upstream failure, reporting errText to the client. A finish
// always follows the error, even when the upstream already sent one.
func (t *Translator) Fail(errText string) []Event {
	if errText == "" {
		errText = UnknownErrorText
	}
	out := t.closeText(nil)
	out = append(out, Event{Type: TypeError, ErrorText: errText})
	t.s.finished = true
	return append(out, Event{Type: TypeFinish})
}

// TextBlock emits text as one complete text block, closing any block already open.
func (t *Translator) TextBlock(text string) []Event {
	out := t.closeText(nil)
	id := t.s.textID
	out = append(out,
		Event{Type: TypeTextStart, ID: id},
		Event{Type: TypeTextDelta, ID: id, Delta: text},
		Event{Type: TypeTextEnd, ID: id},
	)
	t.s.textID = t.s.ids.NewID(KindText)
	return out
}

func (t *Translator) text(ev datastream.Event) []Event {
	delta := ev.Text()
	if delta == "" {
		return nil
	}
	var out []Event
	if !t.s.textOpen {
		t.s.textOpen = true
		out = append(out, Event{Type: TypeTextStart, ID: t.s.textID})
	}
	return append(out, Event{Type: TypeTextDelta, ID: t.s.textID, Delta: delta})
}

func (t *Translator) data(ev datastream.Event) []Event {
	out := t.closeText(nil)
	for _, item := range ev.Items() {
		switch {
		case item.Get("type").String() == "artifact":
			id := item.Get("id").String()
			if id == "" {
				id = t.s.ids.NewID(KindArtifact)
			}
			out = append(out, Event{Type: TypeDataArtifact, ID: id, Data: json.RawMessage(item.Raw)})
		case item.Get("conversation_id").Exists():
			out = append(out, Event{Type: TypeDataConversation, Data: json.RawMessage(item.Raw)})
		default:
			t.dropped++
			log.Debugf("uistream: dropping data item without a recognised shape")
		}
	}
	return out
}

func (t *Translator) toolCallStart(ev datastream.Event) []Event {
	out := t.closeText(nil)
	id := ev.Payload.Get("toolCallId").String()
	if id == "" {
		t.dropped++
		log.Debugf("uistream: dropping tool call start without toolCallId")
		return out
	}
	return t.announce(out, id, ev.Payload.Get("toolName").String())
}

func (t *Translator) toolCallDelta(ev datastream.Event) []Event {
	id := ev.Payload.Get("toolCallId")
	delta := ev.Payload.Get("argsTextDelta")
	if id.String() == "" || !delta.Exists() {
		t.dropped++
		log.Debugf("uistream: dropping tool argument delta with missing fields")
		return nil
	}
	return []Event{{Type: TypeToolInputDelta, ToolCallID: id.String(), InputTextDelta: delta.String()}}
}

func (t *Translator) toolCall(ev datastream.Event) []Event {
	out := t.closeText(nil)
	id := ev.Payload.Get("toolCallId").String()
	if id == "" {
		t.dropped++
		log.Debugf("uistream: dropping tool call without toolCallId")
		return out
	}
	name := ev.Payload.Get("toolName").String()
	out = t.announce(out, id, name)

	input := json.RawMessage(`{}`)
	if args := ev.Payload.Get("args"); args.Exists() && args.Type != gjson.Null {
		input = json.RawMessage(args.Raw)
	}
	return append(out, Event{Type: TypeToolInputAvailable, ToolCallID: id, ToolName: name, Input: input})
}

func (t *Translator) toolResult(ev datastream.Event) []Event {
	id := ev.Payload.Get("toolCallId").String()
	if id == "" {
		t.dropped++
		log.Debugf("uistream: dropping tool result without toolCallId")
		return nil
	}
	return []Event{{Type: TypeToolOutputAvailable, ToolCallID: id, Output: toolOutput(ev.Payload.Get("result"))}}
}

func (t *Translator) announce(out []Event, id, name string) []Event {
	if !t.s.announce(id) {
		return out
	}
	return append(out, Event{Type: TypeToolInputStart, ToolCallID: id, ToolName: name})
}

// closeText appends a text-end for the open block, if any, and rotates the text id.
func (t *Translator) closeText(out []Event) []Event {
	if !t.s.textOpen {
		return out
	}
	out = append(out, Event{Type: TypeTextEnd, ID: t.s.textID})
	t.s.textOpen = false
	t.s.textID = t.s.ids.NewID(KindText)
	return out
}

func (t *Translator) finish(out []Event) []Event {
	if t.s.finished {
		return out
	}
	t.s.finished = true
	return append(out, Event{Type: TypeFinish})
}

func errorText(payload gjson.Result) string {
	if payload.Type == gjson.String {
		return payload.String()
	}
	if msg := payload.Get("message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return UnknownErrorText
}

// toolOutput forwards result untouched unless it is a string that itself holds JSON, in which
// case the string is decoded one level.
func toolOutput(result gjson.Result) json.RawMessage {
	if !result.Exists() {
		return json.RawMessage(`null`)
	}
	if result.Type == gjson.String {
		if inner := result.String(); gjson.Valid(inner) {
			return json.RawMessage(inner)
		}
	}
	return json.RawMessage(result.Raw)
}
