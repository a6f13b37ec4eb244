package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("merchant-price-scraper/httpclient")

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 10
	DefaultAccept       = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

type Options struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	MaxRedirects   int
	// Transport replaces the default round tripper, mostly for tests.
	Transport http.RoundTripper
}

// Client fetches HTML pages from a single merchant.
type Client struct {
	http    *resty.Client
	baseURL string
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(0)
	client.SetHeader("Accept", DefaultAccept)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.AcceptLanguage != "" {
		client.SetHeader("Accept-Language", opts.AcceptLanguage)
	}
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}

	maxRedirects := opts.MaxRedirects
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return ErrTooManyRedirects
		}
		return nil
	}))

	client.OnBeforeRequest(startSpan)
	client.OnAfterResponse(endSpan)
	client.OnError(recordSpanError)

	return &Client{http: client, baseURL: opts.BaseURL}
}

// Get fetches path relative to the base URL and returns the raw body. Any
// transport failure or non-2xx status is returned as a *NetworkError.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(path)

	target := c.baseURL + path
	if resp != nil && resp.Request != nil && resp.Request.RawRequest != nil {
		target = resp.Request.RawRequest.URL.String()
	}

	status := 0
	if err == nil {
		status = resp.StatusCode()
	}
	if classified := classifyError(target, err, status); classified != nil {
		return nil, classified
	}

	return resp.Body(), nil
}

func startSpan(_ *resty.Client, req *resty.Request) error {
	ctx, _ := tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))
	req.SetContext(ctx)
	return nil
}

func endSpan(_ *resty.Client, resp *resty.Response) error {
	span := trace.SpanFromContext(resp.Request.Context())
	defer span.End()

	span.SetAttributes(
		attribute.String("http.url", resp.Request.URL),
		attribute.Int("http.status_code", resp.StatusCode()),
	)
	if resp.IsError() {
		span.SetStatus(codes.Error, resp.Status())
	}
	return nil
}

func recordSpanError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.SetAttributes(attribute.String("http.url", req.URL))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
