// Package prober executes single HTTP checks against monitored endpoints.
// The Prober is stateless; it shares one pooled HTTP client with a
// per-host and a total concurrency cap across every worker.
package prober

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lookout/monitor/internal/domain"
)

const defaultUserAgent = "LookOut-Monitor/1.0"

// permanentErrorSubstrings classifies an error as unretryable
// misconfiguration rather than a transient network failure.
var permanentErrorSubstrings = []string{
	"name or service not known",
	"no address associated with hostname",
	"invalid url",
	"unsupported protocol",
}

// Config controls the shared client pool.
type Config struct {
	DefaultTimeout    time.Duration
	PerHostLimit      int64 // e.g. 10
	TotalConcurrency  int64 // e.g. 2 * worker_count
}

// Prober performs one HTTP request per call and reports a structured
// Outcome. It holds no endpoint-owned state.
type Prober struct {
	client     *http.Client
	cfg        Config
	total      *semaphore.Weighted
	hostMu     sync.Mutex
	hostLimits map[string]*semaphore.Weighted
}

// New builds a Prober with a shared, connection-reusing HTTP client.
func New(cfg Config) *Prober {
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Prober{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.DefaultTimeout,
		},
		cfg:        cfg,
		total:      semaphore.NewWeighted(cfg.TotalConcurrency),
		hostLimits: make(map[string]*semaphore.Weighted),
	}
}

// Close idles out pooled connections.
func (p *Prober) Close() {
	p.client.CloseIdleConnections()
}

// Do performs attempt number attemptNum against e and returns the
// structured outcome. It never panics or returns a Go error directly;
// failures are encoded in the returned Outcome.
func (p *Prober) Do(ctx context.Context, e *domain.Endpoint, attemptNum int, workerID int) domain.Outcome {
	start := time.Now()

	timeout := p.cfg.DefaultTimeout
	if e.TimeoutSeconds > 0 {
		timeout = time.Duration(e.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.total.Acquire(reqCtx, 1); err != nil {
		return errorOutcome(start, attemptNum, err)
	}
	defer p.total.Release(1)

	hostSem := p.hostSemaphore(e.URL)
	if hostSem != nil {
		if err := hostSem.Acquire(reqCtx, 1); err != nil {
			return errorOutcome(start, attemptNum, err)
		}
		defer hostSem.Release(1)
	}

	method := e.Method
	if method == "" {
		method = http.MethodGet
	}

	var body *bytes.Reader
	if e.Body != "" {
		body = bytes.NewReader([]byte(e.Body))
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, e.URL, body)
	if err != nil {
		outcome := errorOutcome(start, attemptNum, err)
		outcome.Retryable = isRetryable(err)
		return outcome
	}

	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", fmt.Sprintf("%s (Worker-%d)", defaultUserAgent, workerID))
	}

	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return domain.Outcome{
			Success:   false,
			Retryable: isRetryable(err),
			ElapsedMS: elapsed.Milliseconds(),
			Error:     err.Error(),
			Attempt:   attemptNum,
			CheckedAt: time.Now(),
		}
	}
	defer resp.Body.Close()

	expected := e.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}

	return domain.Outcome{
		Success:    resp.StatusCode == expected,
		Retryable:  true,
		StatusCode: resp.StatusCode,
		ElapsedMS:  elapsed.Milliseconds(),
		Attempt:    attemptNum,
		CheckedAt:  time.Now(),
	}
}

func errorOutcome(start time.Time, attempt int, err error) domain.Outcome {
	return domain.Outcome{
		Success:   false,
		Retryable: true,
		ElapsedMS: time.Since(start).Milliseconds(),
		Error:     err.Error(),
		Attempt:   attempt,
		CheckedAt: time.Now(),
	}
}

func (p *Prober) hostSemaphore(rawURL string) *semaphore.Weighted {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	p.hostMu.Lock()
	defer p.hostMu.Unlock()
	sem, ok := p.hostLimits[u.Host]
	if !ok {
		sem = semaphore.NewWeighted(p.cfg.PerHostLimit)
		p.hostLimits[u.Host] = sem
	}
	return sem
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, substr := range permanentErrorSubstrings {
		if strings.Contains(msg, substr) {
			return false
		}
	}
	var dnsErr *net.DNSError
	if asDNSError(err, &dnsErr) && dnsErr.IsNotFound {
		return false
	}
	return true
}

func asDNSError(err error, target **net.DNSError) bool {
	for err != nil {
		if de, ok := err.(*net.DNSError); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
