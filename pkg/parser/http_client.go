package parser

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"covid-parser/pkg/logger"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// StatusError is returned for any non-200 upstream response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// TransportError wraps every failure to obtain a body from upstream:
// dial and timeout errors, non-200 statuses and undecodable bodies.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClientConfig configures HTTPClient. Zero values fall back to defaults.
type ClientConfig struct {
	Timeout   time.Duration
	UserAgent string
	// Dial overrides the network dialer, used by tests.
	Dial fasthttp.DialFunc
}

// HTTPClient is a single-attempt fasthttp downloader with a fixed timeout.
type HTTPClient struct {
	client    *fasthttp.Client
	timeout   time.Duration
	userAgent string
	log       *logger.Logger
}

// NewHTTPClient creates the upstream transport.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &HTTPClient{
		client: &fasthttp.Client{
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			Dial:         cfg.Dial,
		},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		log:       logger.GetLogger().WithField("component", "http_client"),
	}
}

// Download fetches targetURL and returns the body decoded to UTF-8.
func (h *HTTPClient) Download(ctx context.Context, targetURL string) (string, error) {
	timeout := h.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", &TransportError{URL: targetURL, Err: context.DeadlineExceeded}
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return "", &TransportError{URL: targetURL, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(targetURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	h.setRequestHeaders(req, targetURL)

	start := time.Now()
	if err := h.client.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			err = fmt.Errorf("request timed out after %s: %w", timeout, err)
		}
		return "", &TransportError{URL: targetURL, Err: err}
	}

	h.log.WithFields(map[string]interface{}{
		"url":      targetURL,
		"status":   resp.StatusCode(),
		"duration": time.Since(start).String(),
	}).Debug("Upstream response")

	if resp.StatusCode() != fasthttp.StatusOK {
		return "", &TransportError{URL: targetURL, Err: &StatusError{StatusCode: resp.StatusCode()}}
	}

	body, err := uncompressedBody(resp)
	if err != nil {
		return "", &TransportError{URL: targetURL, Err: fmt.Errorf("decompress body: %w", err)}
	}

	text, err := decodeBody(body, string(resp.Header.ContentType()))
	if err != nil {
		return "", &TransportError{URL: targetURL, Err: fmt.Errorf("decode body: %w", err)}
	}
	return text, nil
}

func (h *HTTPClient) setRequestHeaders(req *fasthttp.Request, targetURL string) {
	req.Header.SetUserAgent(h.userAgent)
	req.Header.Set("Accept", "text/html,application/json,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-AU,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	parsedURL, err := url.Parse(targetURL)
	if err == nil && parsedURL.Host != "" {
		req.Header.Set("Referer", fmt.Sprintf("%s://%s/", parsedURL.Scheme, parsedURL.Host))
	}
	req.Header.Set("Cache-Control", "max-age=0")
}

// uncompressedBody returns a copy of the response body with any
// Content-Encoding removed. The copy outlives the pooled response.
func uncompressedBody(resp *fasthttp.Response) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	switch strings.ToLower(string(resp.Header.ContentEncoding())) {
	case "gzip":
		body, err = resp.BodyGunzip()
	case "br":
		body, err = resp.BodyUnbrotli()
	case "deflate":
		body, err = resp.BodyInflate()
	default:
		body = resp.Body()
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// decodeBody converts a body to UTF-8 using the declared charset or a
// UTF-16 byte order mark. Unknown charsets are passed through unchanged.
func decodeBody(body []byte, contentType string) (string, error) {
	enc := charsetEncoding(contentType)
	if enc == nil {
		if len(body) >= 2 && ((body[0] == 0xFF && body[1] == 0xFE) || (body[0] == 0xFE && body[1] == 0xFF)) {
			enc = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
		}
	}
	if enc == nil {
		return string(body), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func charsetEncoding(contentType string) encoding.Encoding {
	if contentType == "" {
		return nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	switch strings.ToLower(params["charset"]) {
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "utf-16":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return nil
}
