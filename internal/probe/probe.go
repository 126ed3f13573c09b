// Package probe checks whether links are alive and reads their pages.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nikbrunner/gmark/internal/logger"
)

const (
	DefaultTimeout = 5 * time.Second
	userAgent      = "Mozilla/5.0 (compatible; gmark/1.0)"
	maxBodyBytes   = 2 << 20
	maxRedirects   = 10
)

// Status is the health of a URL.
type Status int

const (
	Healthy     Status = iota // 2xx or 3xx response
	Dead                      // 404 or 410 Gone
	Restricted                // the server answered with 401, 403, 429 or 5xx
	Unreachable               // timeout, DNS failure, connection refused, etc.
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Dead:
		return "dead"
	case Restricted:
		return "restricted"
	default:
		return "unreachable"
	}
}

// Result holds the outcome of checking one URL.
type Result struct {
	URL        string
	Status     Status
	StatusCode int    // 0 if the connection failed
	Error      string // readable reason for non-healthy results
}

// Reachable reports whether a server answered for the URL at all. Any HTTP
// response counts, including 404 and 5xx; only failed connections do not.
func (r Result) Reachable() bool {
	return r.StatusCode != 0
}

// HTTP probes links over the network. Every call issues fresh requests.
type HTTP struct {
	client  *http.Client
	timeout time.Duration
	log     logger.Logger
}

// NewHTTP returns a prober whose page loads are bounded by timeout.
func NewHTTP(timeout time.Duration, log logger.Logger) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTP{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		timeout: timeout,
		log:     log,
	}
}

// Head reports whether rawURL answers within timeout.
func (p *HTTP) Head(ctx context.Context, rawURL string, timeout time.Duration) bool {
	return p.Check(ctx, rawURL, timeout).Reachable()
}

// Check probes rawURL with HEAD and falls back to GET when HEAD fails or is
// not supported by the server.
func (p *HTTP) Check(ctx context.Context, rawURL string, timeout time.Duration) Result {
	result := Result{URL: rawURL}
	if !isWebURL(rawURL) {
		result.Status = Unreachable
		result.Error = "Unsupported URL"
		return result
	}
	if timeout <= 0 {
		timeout = p.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.do(ctx, http.MethodHead, rawURL)
	if err != nil || resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = p.do(ctx, http.MethodGet, rawURL)
		if err != nil {
			result.Status = Unreachable
			result.Error = normalizeError(err.Error())
			p.log.Debug("probe failed", logger.String("url", rawURL), logger.String("reason", result.Error))
			return result
		}
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		result.Status = Healthy
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		result.Status = Dead
		result.Error = http.StatusText(resp.StatusCode)
	default:
		// 401, 403, 429 and 5xx: the host is up but refused or failed the request
		result.Status = Restricted
		result.Error = http.StatusText(resp.StatusCode)
	}
	return result
}

// LoadTitle fetches rawURL and returns its document title.
func (p *HTTP) LoadTitle(ctx context.Context, rawURL string) (string, bool) {
	doc, err := p.fetchDocument(ctx, rawURL)
	if err != nil {
		p.log.Debug("title load failed", logger.String("url", rawURL), logger.Error(err))
		return "", false
	}
	title := extractTitle(doc)
	return title, title != ""
}

// LoadText fetches rawURL and returns its visible text, capped at maxRunes.
func (p *HTTP) LoadText(ctx context.Context, rawURL string, maxRunes int) string {
	doc, err := p.fetchDocument(ctx, rawURL)
	if err != nil {
		p.log.Debug("text load failed", logger.String("url", rawURL), logger.Error(err))
		return ""
	}
	return capRunes(extractText(doc), maxRunes)
}

func (p *HTTP) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return p.client.Do(req)
}

func (p *HTTP) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if !isWebURL(rawURL) {
		return nil, fmt.Errorf("URL must be http or https: %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %s", rawURL, normalizeError(err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func isWebURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// normalizeError simplifies verbose error messages into readable categories.
func normalizeError(errStr string) string {
	lower := strings.ToLower(errStr)

	switch {
	case strings.Contains(lower, "no such host"):
		return "DNS failure"
	case strings.Contains(lower, "context deadline exceeded"),
		strings.Contains(lower, "timeout"):
		return "Timeout"
	case strings.Contains(lower, "connection refused"):
		return "Connection refused"
	case strings.Contains(lower, "certificate"):
		return "TLS/certificate error"
	case strings.Contains(lower, "network is unreachable"):
		return "Network unreachable"
	case strings.Contains(lower, "tls:"):
		return "TLS error"
	default:
		return errStr
	}
}
