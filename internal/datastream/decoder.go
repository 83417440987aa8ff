package datastream

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Event is one decoded Data Stream Protocol line.
type Event struct {
	Code    Code
	Payload gjson.Result
}

// Decode parses a logical line into its type code and JSON payload.
//
// ok is false for empty lines, lines without the `<code>:` prefix and lines whose payload is
// not valid JSON. Such lines are noise or partial frames and callers drop them.
func Decode(line string) (Event, bool) {
	if strings.TrimSpace(line) == "" {
		return Event{}, false
	}
	if len(line) < 2 || line[1] != ':' {
		return Event{}, false
	}
	raw := line[2:]
	if !gjson.Valid(raw) {
		return Event{}, false
	}
	return Event{Code: Code(line[0]), Payload: gjson.Parse(raw)}, true
}

// Text extracts the text delta carried by a code 0 payload, which is either a bare JSON string
// or an object with a text field.
func (e Event) Text() string {
	switch {
	case e.Payload.Type == gjson.String:
		return e.Payload.String()
	case e.Payload.IsObject():
		if v := e.Payload.Get("text"); v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// Items returns the entries of a code 2 payload: the elements of an array, or the payload
// itself when it is a single object.
func (e Event) Items() []gjson.Result {
	switch {
	case e.Payload.IsArray():
		return e.Payload.Array()
	case e.Payload.IsObject():
		return []gjson.Result{e.Payload}
	default:
		return nil
	}
}
