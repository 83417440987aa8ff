package uistream

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// ID kinds requested from an IDGenerator.
const (
	KindMessage  = "msg"
	KindText     = "text"
	KindArtifact = "artifact"
)

// IDGenerator hands out identifiers for messages, text blocks and artifacts.
type IDGenerator interface {
	NewID(kind string) string
}

// UUIDGenerator produces ids of the form "<kind>_<uuid>".
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID(kind string) string {
	return kind + "_" + uuid.NewString()
}

// CounterGenerator produces deterministic ids of the form "<kind>-<n>" from a single
// monotonic counter shared by all kinds.
type CounterGenerator struct {
	n atomic.Int64
}

// NewID implements IDGenerator.
func (g *CounterGenerator) NewID(kind string) string {
	return kind + "-" + strconv.FormatInt(g.n.Add(1), 10)
}

// Session is the state of one translated response. It is owned by a single goroutine and is
// never shared between requests.
type Session struct {
	// MessageID is assigned once and stays stable for the whole session.
	MessageID string

	ids      IDGenerator
	textID   string
	textOpen bool
	finished bool

	// announced holds tool call ids that already received a tool-input-start.
	announced map[string]struct{}
}

// NewSession creates a session. A nil generator falls back to UUIDGenerator.
func NewSession(ids IDGenerator) *Session {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Session{
		MessageID: ids.NewID(KindMessage),
		ids:       ids,
		textID:    ids.NewID(KindText),
		announced: make(map[string]struct{}),
	}
}

// TextOpen reports whether a text-start was emitted without its text-end.
func (s *Session) TextOpen() bool { return s.textOpen }

// TextID returns the id of the current (or next) text block.
func (s *Session) TextID() string { return s.textID }

// Finished reports whether a finish event was emitted.
func (s *Session) Finished() bool { return s.finished }

// Announced reports whether tool-input-start was emitted for toolCallID.
func (s *Session) Announced(toolCallID string) bool {
	_, ok := s.announced[toolCallID]
	return ok
}

func (s *Session) announce(toolCallID string) bool {
	if _, ok := s.announced[toolCallID]; ok {
		return false
	}
	s.announced[toolCallID] = struct{}{}
	return true
}
