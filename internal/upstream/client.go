// Package upstream opens streaming chat requests against the backend service that speaks the
// Data Stream Protocol.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/finesssee/streambridge/internal/config"
	"github.com/finesssee/streambridge/internal/util"
	log "github.com/sirupsen/logrus"
)

// DefaultForwardHeaders are always copied from the inbound request when present.
var DefaultForwardHeaders = []string{"Authorization", "Cookie", "X-Request-Id"}

// Client sends chat requests upstream. It is safe for concurrent use.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewClient builds a client for cfg, honoring upstream.timeout-seconds and proxy-url.
func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{Transport: util.NewStreamingTransport(cfg.Upstream.Timeout())}
	httpClient = util.SetProxy(cfg.ProxyURL, httpClient)
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Stream is an open upstream response.
type Stream struct {
	Body       io.ReadCloser
	Header     http.Header
	StatusCode int

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// HasBody reports whether the upstream supplied a response stream.
func (s *Stream) HasBody() bool {
	if s == nil || s.Body == nil || s.Body == http.NoBody {
		return false
	}
	return s.StatusCode != http.StatusNoContent
}

// Close releases the response body and aborts the upstream request. Safe to call more than once.
func (s *Stream) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.Body != nil {
			if errClose := s.Body.Close(); errClose != nil {
				log.Errorf("upstream: close response body error: %v", errClose)
			}
		}
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Open posts body to the configured chat route and returns the streaming response. Selected
// headers of in are forwarded. A non-2xx answer is returned as *StatusError with the body
// already closed. Cancelling ctx aborts the request at any point.
func (c *Client) Open(ctx context.Context, in *http.Request, body []byte) (*Stream, error) {
	if c.cfg.Upstream.ShouldFlattenParts() {
		body = FlattenParts(body)
	}

	ctx, cancel := context.WithCancel(ctx)
	url := c.cfg.Upstream.ChatURL()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")
	for k, v := range c.cfg.Upstream.Headers {
		httpReq.Header.Set(k, v)
	}
	if in != nil {
		forwardHeaders(httpReq.Header, in.Header, DefaultForwardHeaders)
		forwardHeaders(httpReq.Header, in.Header, c.cfg.Upstream.ForwardHeaders)
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("upstream request: POST %s headers=%v body=%s", url, util.RedactHeaders(httpReq.Header), util.RedactSensitiveJSON(body))
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("upstream: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		log.Debugf("upstream error status: %d, body: %s", httpResp.StatusCode, b)
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("upstream: close response body error: %v", errClose)
		}
		cancel()
		return nil, &StatusError{Code: httpResp.StatusCode, Header: httpResp.Header.Clone(), Body: b}
	}

	return &Stream{
		Body:       httpResp.Body,
		Header:     httpResp.Header,
		StatusCode: httpResp.StatusCode,
		cancel:     cancel,
	}, nil
}

func forwardHeaders(dst, src http.Header, names []string) {
	for _, name := range names {
		values := src.Values(name)
		if len(values) == 0 {
			continue
		}
		dst.Del(name)
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
