// Package razorpay implements payment.Gateway over the Razorpay Orders API.
package razorpay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/voltcart-checkout/internal/domain/payment"
)

// DefaultBaseURL is the public Razorpay API endpoint.
const DefaultBaseURL = "https://api.razorpay.com"

const maxResponseBody = 1 << 20

// Compile-time check ensuring Client satisfies payment.Gateway.
var _ payment.Gateway = (*Client)(nil)

// Options configures a Client.
type Options struct {
	Credentials payment.Credentials
	BaseURL     string
	Timeout     time.Duration

	// Transport overrides the underlying round tripper. It is wrapped with
	// otelhttp instrumentation either way.
	Transport      http.RoundTripper
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Client talks to the Razorpay REST API using HTTP basic auth.
type Client struct {
	http    *http.Client
	baseURL string
	creds   payment.Credentials
}

// New creates a Razorpay client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}

	var otelOpts []otelhttp.Option
	if opts.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
	}
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}

	return &Client{
		http: &http.Client{
			Transport: otelhttp.NewTransport(opts.Transport, otelOpts...),
			Timeout:   opts.Timeout,
		},
		baseURL: strings.TrimRight(u.String(), "/"),
		creds:   opts.Credentials,
	}, nil
}

// APIError is a non-2xx response from Razorpay.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("razorpay: http %d", e.StatusCode)
	}
	return fmt.Sprintf("razorpay: http %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// CreateOrder opens a gateway order.
func (c *Client) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.GatewayOrder, error) {
	body, err := c.do(ctx, http.MethodPost, "/v1/orders", encodeOrderRequest(req))
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	o, err := decodeOrder(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if o.ID == "" {
		return nil, errors.New("create order: response has no id")
	}
	return o, nil
}

// FetchOrder returns a previously created gateway order.
func (c *Client) FetchOrder(ctx context.Context, id string) (*payment.GatewayOrder, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch order %q", id)
	}
	o, err := decodeOrder(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return o, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(c.creds.KeyID, c.creds.KeySecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}
