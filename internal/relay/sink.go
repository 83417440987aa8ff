// Package relay runs the per-request pipeline that reads a Data Stream Protocol body, translates it
// and hands UI Message Stream frames to the HTTP response writer.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/finesssee/streambridge/internal/uistream"
)

// ErrConsumerGone is returned by Send once the consumer stopped reading.
var ErrConsumerGone = errors.New("relay: consumer gone")

// Sink is the writable half of the frame channel. The HTTP handler reads Frames and the pipeline
// goroutine writes to the Sink. A Send blocks until the consumer takes the frame, which keeps the
// upstream reader from running ahead of the client.
type Sink struct {
	ctx    context.Context
	frames chan []byte

	failed    bool
	doneSent  bool
	closeOnce sync.Once
}

// NewSink returns a sink whose sends give up when ctx is done.
func NewSink(ctx context.Context) *Sink {
	return &Sink{ctx: ctx, frames: make(chan []byte)}
}

// Frames is the readable half. It is closed exactly once, after the last frame.
func (s *Sink) Frames() <-chan []byte { return s.frames }

// Send delivers one frame. After the first failure every later call fails immediately.
func (s *Sink) Send(frame []byte) error {
	if s.failed {
		return ErrConsumerGone
	}
	if s.ctx.Err() != nil {
		s.failed = true
		return ErrConsumerGone
	}
	select {
	case s.frames <- frame:
		return nil
	case <-s.ctx.Done():
		s.failed = true
		return ErrConsumerGone
	}
}

// Done sends the terminal marker. Calls after the first are no-ops.
func (s *Sink) Done() error {
	if s.doneSent {
		return nil
	}
	s.doneSent = true
	return s.Send(uistream.DoneFrame())
}

// Gone reports whether the consumer stopped reading.
func (s *Sink) Gone() bool { return s.failed || s.ctx.Err() != nil }

// Close closes the frame channel. Safe to call more than once.
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.frames) })
}
