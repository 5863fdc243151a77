package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/resilience"
)

// LoaderConfig configures external script fetching
type LoaderConfig struct {
	BaseURL    string        // resolves relative src values
	Timeout    time.Duration // per request
	MaxRetries int
	RateLimit  float64 // requests per second, 0 for unlimited
	MaxBytes   int64
	UserAgent  string
	Breaker    resilience.Settings // per host
}

// DefaultLoaderConfig returns sensible loader defaults
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		RateLimit:  5,
		MaxBytes:   8 << 20,
		UserAgent:  "PenEditor/1.0",
		Breaker:    resilience.DefaultSettings(),
	}
}

// HTTPLoader fetches library sources over HTTP and caches them by URL
type HTTPLoader struct {
	config   LoaderConfig
	client   *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	base     *url.URL
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu    sync.RWMutex
	cache map[string]string
}

// NewHTTPLoader creates a loader
func NewHTTPLoader(config LoaderConfig, logger *zap.Logger) (*HTTPLoader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultLoaderConfig().Timeout
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultLoaderConfig().MaxBytes
	}

	var base *url.URL
	if config.BaseURL != "" {
		parsed, err := url.Parse(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		base = parsed
	}

	// Retries live in the transport: 5xx and connection errors are retried
	// with backoff, and the last response is passed through once they run out.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.MaxRetries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(config.Timeout).
		SetResponseBodyLimit(int(config.MaxBytes)).
		SetHeader("Accept", "application/javascript, text/javascript, */*").
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient})
	if config.UserAgent != "" {
		client.SetHeader("User-Agent", config.UserAgent)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		burst := int(config.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	breakerSettings := config.Breaker
	breakerSettings.OnStateChange = func(host string, from, to resilience.State) {
		logger.Warn("Library host circuit changed",
			zap.String("host", host),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	return &HTTPLoader{
		config:   config,
		client:   client,
		limiter:  limiter,
		breakers: resilience.NewGroup(breakerSettings),
		base:     base,
		logger:   logger,
		cache:    make(map[string]string),
	}, nil
}

// WithMetrics attaches a metrics collector
func (l *HTTPLoader) WithMetrics(metrics *monitoring.Metrics) *HTTPLoader {
	l.metrics = metrics
	return l
}

// Load returns the script at src decoded to UTF-8
func (l *HTTPLoader) Load(ctx context.Context, src string) (string, error) {
	target, err := l.resolve(src)
	if err != nil {
		return "", err
	}

	l.mu.RLock()
	cached, ok := l.cache[target]
	l.mu.RUnlock()
	if ok {
		l.record("cached")
		return cached, nil
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	var (
		body        []byte
		contentType string
		status      int
		tooLarge    bool
	)
	err = l.breakers.Do(host(target), func() error {
		resp, err := l.client.R().SetContext(ctx).Get(target)
		if errors.Is(err, resty.ErrResponseBodyTooLarge) {
			tooLarge = true
			return nil
		}
		if err != nil {
			return err
		}
		status = resp.StatusCode()
		if status >= 500 {
			return fmt.Errorf("status %d", status)
		}
		body = resp.Body()
		contentType = resp.Header().Get("Content-Type")
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		l.record("rejected")
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	if err != nil {
		l.record("error")
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	if status >= 400 {
		l.record("error")
		return "", fmt.Errorf("fetch %s: status %d", target, status)
	}

	if tooLarge || int64(len(body)) > l.config.MaxBytes {
		l.record("error")
		return "", fmt.Errorf("fetch %s: body exceeds %d bytes", target, l.config.MaxBytes)
	}

	source, err := decode(body, contentType)
	if err != nil {
		l.record("error")
		return "", fmt.Errorf("decode %s: %w", target, err)
	}

	l.mu.Lock()
	l.cache[target] = source
	l.mu.Unlock()

	l.record("ok")
	l.logger.Debug("Library fetched", zap.String("url", target), zap.Int("bytes", len(source)))
	return source, nil
}

func (l *HTTPLoader) resolve(src string) (string, error) {
	ref, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("invalid script url %q: %w", src, err)
	}
	if !ref.IsAbs() {
		if l.base == nil {
			return "", fmt.Errorf("relative script url %q without base url", src)
		}
		ref = l.base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", ref.Scheme)
	}
	return ref.String(), nil
}

// Circuits reports the breaker state of every host fetched so far
func (l *HTTPLoader) Circuits() map[string]resilience.State {
	return l.breakers.States()
}

func host(target string) string {
	if u, err := url.Parse(target); err == nil {
		return u.Host
	}
	return target
}

func (l *HTTPLoader) record(status string) {
	if l.metrics != nil {
		l.metrics.RecordLibraryFetch(status)
	}
}

// decode converts body to UTF-8, trusting the Content-Type charset first
// and falling back to detection
func decode(body []byte, contentType string) (string, error) {
	label := ""
	if _, name, certain := charset.DetermineEncoding(body, contentType); certain {
		label = name
	} else if result, err := chardet.NewTextDetector().DetectBest(body); err == nil {
		label = result.Charset
	}

	if label == "" {
		return string(body), nil
	}

	reader, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return string(body), nil
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
