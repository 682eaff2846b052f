package trackstream

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zachfi/zkit/pkg/util"
	"go.uber.org/atomic"
)

const defaultUserAgent = "showgo/1.0"

// Config holds connection tuning for the HTTP source. Zero values fall
// back to defaults suitable for long-lived audio streams.
type Config struct {
	ConnectTimeout time.Duration `yaml:"connect-timeout,omitempty"`
	HeaderTimeout  time.Duration `yaml:"header-timeout,omitempty"`
	UserAgent      string        `yaml:"user-agent,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.ConnectTimeout, util.PrefixConfig(prefix, "connect-timeout"), 5*time.Second,
		"Timeout for establishing a connection to a track host.")
	f.DurationVar(&cfg.HeaderTimeout, util.PrefixConfig(prefix, "header-timeout"), 10*time.Second,
		"Timeout for the response headers of a stream request.")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), defaultUserAgent,
		"User-Agent header sent to track hosts.")
}

// StatusError reports a non-success HTTP status from the track host.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream %s returned status %d: %s", e.URL, e.Code, e.Status)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.Code }

// HTTPSource opens track URLs as byte streams, optionally starting at a
// byte offset via a Range request.
type HTTPSource struct {
	client    *http.Client
	userAgent string

	// BytesRead counts audio bytes delivered across all streams.
	BytesRead atomic.Int64
}

// New creates an HTTPSource.
func New(cfg Config) *HTTPSource {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.HeaderTimeout == 0 {
		cfg.HeaderTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	// Timeout for establishing the connection only. The stream itself is
	// read for the length of a track, so the client carries no total timeout.
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		DisableCompression:    true,
	}

	return &HTTPSource{
		client:    &http.Client{Transport: transport},
		userAgent: cfg.UserAgent,
	}
}

// Open fetches url starting at offset bytes. It returns the body, the
// total size of the resource in bytes (-1 when unknown), or an error.
// A *StatusError is returned for non-2xx responses.
func (s *HTTPSource) Open(ctx context.Context, url string, offset int64) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", s.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch stream: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		size := resp.ContentLength
		if offset > 0 {
			// Server ignored the Range header; discard up to the offset so
			// the caller still resumes at the requested position.
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
				resp.Body.Close()
				return nil, 0, fmt.Errorf("failed to skip to offset %d: %w", offset, err)
			}
		}
		return s.countingBody(resp.Body), size, nil
	case http.StatusPartialContent:
		size := totalFromContentRange(resp.Header.Get("Content-Range"))
		return s.countingBody(resp.Body), size, nil
	default:
		resp.Body.Close()
		return nil, 0, &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: url}
	}
}

func (s *HTTPSource) countingBody(rc io.ReadCloser) io.ReadCloser {
	return &countingReadCloser{rc: rc, n: &s.BytesRead}
}

type countingReadCloser struct {
	rc io.ReadCloser
	n  *atomic.Int64
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReadCloser) Close() error { return c.rc.Close() }

// totalFromContentRange parses the total length out of a header like
// "bytes 1000-4999/5000". Returns -1 when the total is absent or "*".
func totalFromContentRange(v string) int64 {
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return -1
	}
	total, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil {
		return -1
	}
	return total
}
