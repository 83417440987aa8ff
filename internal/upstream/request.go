package upstream

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FlattenParts rewrites UI-style messages, whose text lives in parts[] entries of type "text",
// into messages carrying a plain content string. Messages that already have string content and
// every other field of the body are left untouched. Invalid JSON is returned as is.
func FlattenParts(body []byte) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return body
	}

	out := body
	for i, msg := range messages.Array() {
		parts := msg.Get("parts")
		if !parts.IsArray() || msg.Get("content").Type == gjson.String {
			continue
		}
		var texts []string
		for _, part := range parts.Array() {
			if part.Get("type").String() == "text" {
				texts = append(texts, part.Get("text").String())
			}
		}
		prefix := "messages." + strconv.Itoa(i)
		out, _ = sjson.SetBytes(out, prefix+".content", strings.Join(texts, "\n"))
		out, _ = sjson.DeleteBytes(out, prefix+".parts")
	}
	return out
}
