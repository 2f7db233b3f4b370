// Package artwork downloads companion and scene images for inclusion in tool
// responses.
//
// Fetching is best-effort: every failure (bad URL, network error, timeout,
// non-2xx status, oversized body, open circuit) is logged and reported as a
// miss so that callers fall back to text-only responses.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/companionhub/internal/observe"
	"github.com/MrWong99/companionhub/internal/resilience"
)

// ErrFetch wraps every download failure.
var ErrFetch = errors.New("artwork: fetch failed")

// DefaultMIMEType is assumed when the server omits Content-Type.
const DefaultMIMEType = "image/png"

const (
	defaultTimeout  = 15 * time.Second
	defaultMaxBytes = 8 << 20
)

// Image is a downloaded image.
type Image struct {
	Data     []byte
	MIMEType string
}

// Config configures a [Fetcher].
type Config struct {
	// Timeout bounds a single download. Default: 15s.
	Timeout time.Duration

	// MaxBytes caps the body size. Default: 8 MiB.
	MaxBytes int64

	// Breaker tunes the per-host circuit breakers.
	Breaker resilience.BreakerConfig

	// Client performs the requests. Default: a client with Timeout.
	Client *http.Client

	// Metrics records fetch outcomes. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Fetcher downloads images over HTTP. Concurrent requests for the same URL
// share one download. Fetcher is safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	breakers *resilience.BreakerSet
	metrics  *observe.Metrics
	group    singleflight.Group
}

// New returns a [Fetcher].
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "artwork"
	}
	return &Fetcher{
		client:   cfg.Client,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBytes,
		breakers: resilience.NewBreakerSet(cfg.Breaker),
		metrics:  cfg.Metrics,
	}
}

// Check reports an error while any artwork host is short-circuited. It is
// meant for readiness probes; tool responses still degrade to text.
func (f *Fetcher) Check(context.Context) error {
	if open := f.breakers.Open(); len(open) > 0 {
		return fmt.Errorf("artwork: circuit open for %s", strings.Join(open, ", "))
	}
	return nil
}

// Fetch downloads rawURL. It reports false on any failure; the failure is
// logged at WARN. An empty URL is a silent miss.
//
// The download is detached from ctx cancellation so that a shared
// in-flight download is not aborted by one impatient caller, but it is
// always bounded by the fetch timeout.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Image, bool) {
	if rawURL == "" {
		return Image{}, false
	}

	v, err, _ := f.group.Do(rawURL, func() (any, error) {
		return f.download(context.WithoutCancel(ctx), rawURL)
	})
	if err != nil {
		observe.Logger(ctx).Warn("artwork fetch failed", "url", rawURL, "err", err)
		return Image{}, false
	}
	img := v.(Image)
	// Callers own their copy; singleflight hands the same value to everyone.
	img.Data = append([]byte(nil), img.Data...)
	return img, true
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (img Image, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			status = "circuit_open"
		case err != nil:
			status = "error"
		}
		f.metrics.RecordArtworkFetch(ctx, status, time.Since(start).Seconds())
	}()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Image{}, fmt.Errorf("%w: invalid url %q", ErrFetch, rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	err = f.breakers.Execute(ctx, u.Host, func(ctx context.Context) error {
		var derr error
		img, derr = f.get(ctx, u.String())
		return derr
	})
	if err != nil && !errors.Is(err, ErrFetch) {
		err = fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return img, err
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Image{}, fmt.Errorf("%w: build request: %w", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Image{}, fmt.Errorf("%w: status %s", ErrFetch, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return Image{}, fmt.Errorf("%w: body exceeds %d bytes", ErrFetch, f.maxBytes)
	}

	return Image{Data: data, MIMEType: mimeType(resp.Header.Get("Content-Type"))}, nil
}

func mimeType(header string) string {
	if header == "" {
		return DefaultMIMEType
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil || mt == "" {
		return DefaultMIMEType
	}
	return mt
}
