// Package chat serves the translation route. It opens the upstream Data Stream Protocol response,
// runs the relay pipeline and streams UI Message Stream frames to the client as SSE.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/finesssee/streambridge/internal/api/middleware"
	"github.com/finesssee/streambridge/internal/config"
	apperrors "github.com/finesssee/streambridge/internal/errors"
	"github.com/finesssee/streambridge/internal/logging"
	"github.com/finesssee/streambridge/internal/relay"
	"github.com/finesssee/streambridge/internal/uistream"
	"github.com/finesssee/streambridge/internal/upstream"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// UIMessageStreamHeader marks a response as a UI Message Stream for the client SDK.
const UIMessageStreamHeader = "x-vercel-ai-ui-message-stream"

// Handler serves POST /api/chat. It is safe for concurrent use; UpdateConfig swaps the
// configuration for requests that start afterwards.
type Handler struct {
	state atomic.Pointer[handlerState]
	ids   uistream.IDGenerator
}

type handlerState struct {
	cfg    *config.Config
	client *upstream.Client
}

// Option customises a Handler.
type Option func(*Handler)

// WithIDGenerator sets the id generator used for new sessions.
func WithIDGenerator(ids uistream.IDGenerator) Option {
	return func(h *Handler) { h.ids = ids }
}

// NewHandler builds a handler for cfg.
func NewHandler(cfg *config.Config, opts ...Option) *Handler {
	h := &Handler{}
	for _, opt := range opts {
		opt(h)
	}
	h.UpdateConfig(cfg)
	return h
}

// UpdateConfig replaces the configuration and the upstream client. In-flight streams keep the
// client they started with.
func (h *Handler) UpdateConfig(cfg *config.Config) {
	h.state.Store(&handlerState{cfg: cfg, client: upstream.NewClient(cfg)})
}

// Config returns the active configuration.
func (h *Handler) Config() *config.Config {
	return h.state.Load().cfg
}

// Chat translates one upstream chat response into a UI Message Stream.
func (h *Handler) Chat(c *gin.Context) {
	start := time.Now()
	st := h.state.Load()
	cfg := st.cfg

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, apperrors.BadRequest("Failed to read request body", err))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(c, apperrors.BadRequest("Request body is empty", nil))
		return
	}
	if !gjson.ValidBytes(body) {
		writeError(c, apperrors.BadRequest("Request body is not valid JSON", nil))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, apperrors.New(http.StatusInternalServerError, apperrors.CodeInternal, "Streaming not supported", nil))
		return
	}

	// consumerCtx ends when the client goes away or forwarding stops. The upstream request is
	// derived from it so a disconnect aborts the backend call, while the max-duration timer only
	// cancels the upstream side and the client still receives the terminal events.
	consumerCtx, stopConsumer := context.WithCancel(c.Request.Context())
	defer stopConsumer()
	upstreamCtx, cancelUpstream := context.WithCancel(consumerCtx)
	if d := cfg.Streaming.MaxDuration(); d > 0 {
		cancelUpstream()
		upstreamCtx, cancelUpstream = context.WithTimeout(consumerCtx, d)
	}
	defer cancelUpstream()

	stream, err := st.client.Open(upstreamCtx, c.Request, body)
	if err != nil {
		upstreamFailure(c, err)
		return
	}
	defer stream.Close()

	setStreamHeaders(c, stream.Header, cfg.Upstream.GetPassthroughHeaders())
	c.Status(http.StatusOK)

	streamDone := middleware.StreamStarted()
	defer streamDone()

	sink := relay.NewSink(consumerCtx)
	opts := relay.Options{
		ReadBufferBytes: cfg.Streaming.GetReadBufferBytes(),
		MaxLineBytes:    cfg.Streaming.GetMaxLineBytes(),
		IDs:             h.ids,
	}
	results := make(chan relay.Result, 1)
	go func() {
		if stream.HasBody() {
			results <- relay.Run(upstreamCtx, stream.Body, sink, opts)
			return
		}
		log.Warnf("chat: upstream answered %d without a response stream", stream.StatusCode)
		results <- relay.RunMissingBody(sink, opts)
	}()

	errWrite := forward(consumerCtx, c.Writer, flusher, sink.Frames(), cfg.Streaming.KeepAliveInterval(), start)
	stopConsumer()
	res := <-results

	middleware.RecordStream(middleware.StreamStats{
		Outcome:   string(res.Outcome),
		Events:    res.Events,
		Malformed: res.Dropped,
		Unknown:   res.Unknown,
		Oversized: res.Oversized,
	})

	record := middleware.StreamRecord{
		MessageID:  res.MessageID,
		RequestID:  c.GetString(logging.RequestIDKey),
		Timestamp:  start,
		Path:       c.Request.URL.Path,
		Outcome:    string(res.Outcome),
		Lines:      res.Lines,
		Dropped:    res.Dropped,
		Unknown:    res.Unknown,
		Oversized:  res.Oversized,
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, n := range res.Events {
		record.Events += n
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
	}
	middleware.GetStreamHistory().AddEntry(record)

	entry := log.WithFields(log.Fields{
		"request_id": record.RequestID,
		"message_id": res.MessageID,
		"outcome":    res.Outcome,
		"lines":      res.Lines,
		"dropped":    res.Dropped,
		"unknown":    res.Unknown,
		"oversized":  res.Oversized,
		"duration":   time.Since(start).Truncate(time.Millisecond).String(),
	})
	switch {
	case errWrite != nil:
		entry.WithError(errWrite).Debug("chat: client write failed")
	case res.Err != nil:
		entry.WithError(res.Err).Warn("chat: stream ended with upstream error")
	default:
		entry.Info("chat: stream finished")
	}
}

// forward copies frames to w until the channel closes or ctx ends. Keep-alive comments are sent
// at the given interval until the done marker has been written.
func forward(ctx context.Context, w io.Writer, flusher http.Flusher, frames <-chan []byte, keepAlive time.Duration, start time.Time) error {
	var tick <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	first := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if _, err := w.Write(frame); err != nil {
				return err
			}
			flusher.Flush()
			if first {
				first = false
				middleware.RecordTimeToFirstFrame(time.Since(start))
			}
			if uistream.IsDoneFrame(frame) {
				tick = nil
			}
		case <-tick:
			if _, err := w.Write(uistream.KeepAliveFrame()); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func setStreamHeaders(c *gin.Context, upstreamHeader http.Header, passthrough []string) {
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header(UIMessageStreamHeader, "v1")
	for _, name := range passthrough {
		if v := upstreamHeader.Get(name); v != "" {
			c.Header(name, v)
		}
	}
}

func upstreamFailure(c *gin.Context, err error) {
	if errors.Is(c.Request.Context().Err(), context.Canceled) {
		log.Debugf("chat: client left before upstream answered: %v", err)
		c.Abort()
		return
	}

	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		middleware.RecordUpstreamError(fmt.Sprintf("status_%d", statusErr.StatusCode()))
		log.Warnf("chat: upstream returned status %d", statusErr.StatusCode())
		writeError(c, apperrors.UpstreamStatus(statusErr.StatusCode(), err))
		return
	}

	middleware.RecordUpstreamError("unreachable")
	log.Errorf("chat: upstream request failed: %v", err)
	writeError(c, apperrors.UpstreamUnavailable(err))
}

func writeError(c *gin.Context, appErr *apperrors.AppError) {
	_ = c.Error(appErr)
	c.Data(appErr.HTTPStatusCode, "application/json", appErr.ToJSON())
	c.Abort()
}
