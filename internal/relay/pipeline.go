package relay

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/finesssee/streambridge/internal/datastream"
	"github.com/finesssee/streambridge/internal/uistream"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultReadBufferBytes is the size of a single upstream read.
	DefaultReadBufferBytes = 32 * 1024

	// MissingBodyText is streamed as a text block when the upstream answered without a body.
	MissingBodyText = "Error: No response stream from backend"

	// TimeoutText is reported when the upstream context deadline expired mid-stream.
	TimeoutText = "Upstream response timed out"
	// InterruptedText is reported when reading the upstream body failed mid-stream.
	InterruptedText = "Upstream response stream was interrupted"
)

// Outcome is how a pipeline run ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeNoBody        Outcome = "no_body"
)

// Options tunes a pipeline run. Zero values select defaults.
type Options struct {
	ReadBufferBytes int
	MaxLineBytes    int
	// IDs generates message, text and artifact ids. Defaults to uistream.UUIDGenerator.
	IDs uistream.IDGenerator
}

func (o Options) readBufferBytes() int {
	if o.ReadBufferBytes <= 0 {
		return DefaultReadBufferBytes
	}
	return o.ReadBufferBytes
}

func (o Options) maxLineBytes() int {
	if o.MaxLineBytes <= 0 {
		return datastream.DefaultMaxLineBytes
	}
	return o.MaxLineBytes
}

// Result summarises one pipeline run.
type Result struct {
	Outcome   Outcome
	MessageID string
	// Lines counts non-blank upstream lines handed to the decoder.
	Lines int
	// Dropped counts malformed lines plus payload items the translator could not place.
	Dropped   int
	Unknown   int
	Oversized int
	// Events counts emitted frames by event type.
	Events map[string]int
	// Err is the upstream read error for OutcomeUpstreamError.
	Err error
}

type pipeline struct {
	sink *Sink
	tr   *uistream.Translator
	res  *Result
}

// emit sends events in order and reports whether the consumer is still reading.
func (p *pipeline) emit(events []uistream.Event) bool {
	for _, ev := range events {
		if err := p.sink.Send(uistream.Frame(ev)); err != nil {
			return false
		}
		p.res.Events[string(ev.Type)]++
	}
	return true
}

func (p *pipeline) line(line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}
	p.res.Lines++
	ev, ok := datastream.Decode(line)
	if !ok {
		p.res.Dropped++
		log.Debugf("relay: skipping malformed line (%d bytes)", len(line))
		return true
	}
	return p.emit(p.tr.Translate(ev))
}

// terminate emits the closing events and the done marker.
func (p *pipeline) terminate(events []uistream.Event) bool {
	if !p.emit(events) {
		return false
	}
	return p.sink.Done() == nil
}

// Run reads src until EOF, an error or consumer cancellation, writing translated frames to sink.
// ctx is the upstream request context and only classifies read failures. The sink is closed when
// Run returns, and unless the consumer went away the last frame is always the done marker.
func Run(ctx context.Context, src io.Reader, sink *Sink, opts Options) Result {
	defer sink.Close()

	session := uistream.NewSession(opts.IDs)
	tr := uistream.NewTranslator(session)
	re := datastream.NewReassembler(opts.maxLineBytes())
	res := Result{MessageID: session.MessageID, Events: make(map[string]int)}
	p := &pipeline{sink: sink, tr: tr, res: &res}

	res.Outcome = p.loop(ctx, src, re, opts.readBufferBytes())
	res.Unknown = tr.Unknown()
	res.Dropped += tr.Dropped()
	res.Oversized = re.Oversized()
	return res
}

func (p *pipeline) loop(ctx context.Context, src io.Reader, re *datastream.Reassembler, bufSize int) Outcome {
	if !p.emit(p.tr.Start()) {
		return OutcomeCancelled
	}

	buf := make([]byte, bufSize)
	for {
		if p.sink.Gone() {
			return OutcomeCancelled
		}
		n, err := src.Read(buf)
		if n > 0 {
			for _, line := range re.Feed(buf[:n]) {
				if !p.line(line) {
					return OutcomeCancelled
				}
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			if tail, ok := re.Flush(); ok {
				if !p.line(tail) {
					return OutcomeCancelled
				}
			}
			if !p.terminate(p.tr.End()) {
				return OutcomeCancelled
			}
			return OutcomeCompleted
		}

		// A disconnected client cancels the upstream request, which surfaces here as a read error.
		if p.sink.Gone() {
			return OutcomeCancelled
		}
		p.res.Err = err
		log.Warnf("relay: upstream read failed: %v", err)
		if !p.terminate(p.tr.Fail(failureText(ctx, err))) {
			return OutcomeCancelled
		}
		return OutcomeUpstreamError
	}
}

// RunMissingBody answers a bodiless upstream response with a one-shot error text block.
func RunMissingBody(sink *Sink, opts Options) Result {
	defer sink.Close()

	session := uistream.NewSession(opts.IDs)
	tr := uistream.NewTranslator(session)
	res := Result{MessageID: session.MessageID, Events: make(map[string]int)}
	p := &pipeline{sink: sink, tr: tr, res: &res}

	events := tr.Start()
	events = append(events, tr.TextBlock(MissingBodyText)...)
	res.Outcome = OutcomeNoBody
	if !p.terminate(append(events, tr.End()...)) {
		res.Outcome = OutcomeCancelled
	}
	return res
}

func failureText(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimeoutText
	}
	return InterruptedText
}
