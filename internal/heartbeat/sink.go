package heartbeat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// HTTPSink POSTs snapshots to the telemetry endpoint
type HTTPSink struct {
	endpoint string
	client   *http.Client
	retries  uint64
	backoff  time.Duration
	gzip     bool
	logger   *zap.Logger
}

// HTTPSinkOption configures an HTTPSink
type HTTPSinkOption func(*HTTPSink)

// WithBackoff sets the base delay of the exponential retry backoff
func WithBackoff(d time.Duration) HTTPSinkOption {
	return func(s *HTTPSink) { s.backoff = d }
}

// WithClient replaces the HTTP client
func WithClient(c *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) { s.client = c }
}

// NewHTTPSink creates a sink. timeout bounds each attempt; retries is the
// number of extra attempts after a transport failure or 5xx response.
func NewHTTPSink(endpoint string, timeout time.Duration, retries int, compress bool, logger *zap.Logger, opts ...HTTPSinkOption) *HTTPSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 0 {
		retries = 0
	}
	s := &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		retries:  uint64(retries),
		backoff:  time.Second,
		gzip:     compress,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the sink in logs
func (s *HTTPSink) Name() string { return "http" }

// Send uploads payload, retrying transient failures
func (s *HTTPSink) Send(ctx context.Context, payload []byte) error {
	body := payload
	if s.gzip {
		var err error
		if body, err = compress(payload); err != nil {
			return err
		}
	}

	attempt := 0
	backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(s.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return err
		}
		s.logger.Debug("Snapshot upload failed, will retry",
			zap.Int("attempt", attempt),
			zap.Error(err))
		return retry.RetryableError(err)
	})
}

func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return &permanentError{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error: %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return &permanentError{fmt.Errorf("endpoint rejected snapshot: %d", resp.StatusCode)}
	}
	return nil
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// permanentError marks failures that a retry cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
