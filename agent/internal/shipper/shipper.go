package shipper

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pilotwatch/pilotwatch/agent/internal/config"
	"github.com/pilotwatch/pilotwatch/agent/internal/source"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// Shipper buffers samples and posts them to pilotwatch-server.
// Ship() is non-blocking; when the buffer is full the oldest sample is evicted.
// Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg    config.AgentConfig
	base   string
	buf    chan source.Sample
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) bool // injectable for tests

	inflight atomic.Int32
}

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) (*Shipper, error) {
	client, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("shipper: build http client: %w", err)
	}
	return &Shipper{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.ServerURL, "/"),
		buf:    make(chan source.Sample, cfg.BufferSize),
		client: client,
		sleep:  sleepCtx,
	}, nil
}

// Ship enqueues a sample. If the buffer is full the oldest entry is evicted
// to make room.
func (s *Shipper) Ship(smp source.Sample) {
	select {
	case s.buf <- smp:
	default:
		// Buffer full: drop the oldest sample, keep the newest.
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest sample",
				"pilot", old.PilotID, "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- smp:
		default:
		}
	}
}

// Pending returns the number of samples not yet delivered or discarded.
func (s *Shipper) Pending() int { return len(s.buf) + int(s.inflight.Load()) }

// Run drains the buffer in order, posting each sample to the server. A
// sample that fails transiently is retried with exponential backoff before
// the next one is sent, so per-pilot ordering is preserved.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()
	for {
		select {
		case <-ctx.Done():
			return
		case smp := <-s.buf:
			s.inflight.Add(1)
			s.deliver(ctx, smp, bo)
			s.inflight.Add(-1)
		}
	}
}

// deliver sends one sample, retrying transient failures until it succeeds,
// is rejected, or ctx is cancelled.
func (s *Shipper) deliver(ctx context.Context, smp source.Sample, bo *backoff) {
	for {
		err := s.send(ctx, smp)
		if err == nil {
			bo.reset()
			slog.Debug("shipper: sample delivered", "source", smp.SourceID, "pilot", smp.PilotID)
			return
		}
		if ctx.Err() != nil {
			return
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			slog.Error("shipper: server rejected sample, discarding",
				"source", smp.SourceID, "pilot", smp.PilotID, "status", pe.status, "err", err)
			return
		}
		wait := bo.next()
		slog.Warn("shipper: send failed, will retry",
			"endpoint", s.base, "pilot", smp.PilotID, "err", err, "retry_in", wait)
		if !s.sleep(ctx, wait) {
			return
		}
	}
}

// permanentError marks a response that will not succeed on retry.
type permanentError struct {
	status int
	msg    string
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.msg)
}

// send posts one sample. 429 and 5xx are transient; other 4xx responses
// mean the sample itself is unacceptable.
func (s *Shipper) send(ctx context.Context, smp source.Sample) error {
	endpoint := s.base + "/api/v1/pilots/" + url.PathEscape(smp.PilotID) + "/vitals"
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, endpoint, bytes.NewReader(smp.Body))
	if err != nil {
		return &permanentError{msg: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return &permanentError{status: resp.StatusCode, msg: strings.TrimSpace(string(body))}
	}
}

// authRoundTripper injects the API key header into every outgoing request.
type authRoundTripper struct {
	base   http.RoundTripper
	header string
	key    string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(t.header, t.key)
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the server auth and TLS settings.
func buildHTTPClient(cfg config.AgentConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	auth := cfg.ServerAuth
	if auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	var transport http.RoundTripper = &http.Transport{TLSClientConfig: tlsCfg}
	if auth.Mode == "apikey" && auth.Key() != "" {
		transport = &authRoundTripper{base: transport, header: auth.EffectiveHeader(), key: auth.Key()}
	}
	return &http.Client{Transport: transport}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
