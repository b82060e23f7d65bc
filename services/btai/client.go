package btai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"payments-playground-api/utils"
)

const (
	DefaultTimeout = 30 * time.Second

	TextCodeUpstreamStatus  = "UPSTREAM_STATUS"
	TextCodeUpstreamFailure = "UPSTREAM_UNAVAILABLE"

	maxResponseBytes = 4 << 20
)

// Client calls the payments API on behalf of the browser. Every call carries
// the caller's JWT; the client holds no credentials of its own.
type Client struct {
	baseURL   string
	projectID string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func NewClient(baseURL, projectID string, opts ...Option) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		timeout:   DefaultTimeout,
		client:    &http.Client{Transport: transport},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) CreatePaymentMethod(ctx context.Context, jwt string, req PaymentMethodRequest) (json.RawMessage, error) {
	body, _, err := c.do(ctx, http.MethodPost, c.path("payment-methods"), nil, jwt, req, "Failed to create payment method")
	return body, err
}

func (c *Client) ListPaymentMethods(ctx context.Context, jwt string, page utils.Page) (*ListResult, error) {
	body, header, err := c.do(ctx, http.MethodGet, c.path("payment-methods"), page.Values(), jwt, nil, "Failed to fetch payment methods")
	if err != nil {
		return nil, err
	}
	return &ListResult{Data: body, Pagination: utils.PaginationFromHeader(header, page)}, nil
}

func (c *Client) GetPaymentMethod(ctx context.Context, jwt, id string) (json.RawMessage, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.path("payment-methods", id), nil, jwt, nil, "Failed to fetch payment method")
	return body, err
}

// PaymentMethodBrand fetches a payment method and returns its card brand, if any.
func (c *Client) PaymentMethodBrand(ctx context.Context, jwt, id string) (string, error) {
	body, err := c.GetPaymentMethod(ctx, jwt, id)
	if err != nil {
		return "", err
	}

	var pm PaymentMethod
	if err := json.Unmarshal(body, &pm); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "Failed to decode payment method").
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeUpstreamFailure)
	}
	if pm.Card == nil {
		return "", nil
	}
	return pm.Card.Brand, nil
}

func (c *Client) CreatePurchaseIntent(ctx context.Context, jwt string, req PurchaseIntentRequest) (json.RawMessage, error) {
	body, _, err := c.do(ctx, http.MethodPost, c.path("purchase-intents"), nil, jwt, req, "Failed to create purchase intent")
	return body, err
}

func (c *Client) ListPurchaseIntents(ctx context.Context, jwt string, page utils.Page) (*ListResult, error) {
	body, header, err := c.do(ctx, http.MethodGet, c.path("purchase-intents"), page.Values(), jwt, nil, "Failed to fetch purchase intents")
	if err != nil {
		return nil, err
	}
	return &ListResult{Data: body, Pagination: utils.PaginationFromHeader(header, page)}, nil
}

func (c *Client) GetPurchaseIntent(ctx context.Context, jwt, id string) (json.RawMessage, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.path("purchase-intents", id), nil, jwt, nil, "Failed to fetch purchase intent details")
	return body, err
}

func (c *Client) VerifyPurchaseIntent(ctx context.Context, jwt, id string, req map[string]any) (json.RawMessage, error) {
	body, _, err := c.do(ctx, http.MethodPost, c.path("purchase-intents", id, "verify"), nil, jwt, req, "Verification failed")
	return body, err
}

func (c *Client) path(segments ...string) string {
	escaped := make([]string, 0, len(segments)+2)
	escaped = append(escaped, "projects", url.PathEscape(c.projectID))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, jwt string, payload any, fallback string) (json.RawMessage, http.Header, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "error marshaling request").
				WithCode(http.StatusInternalServerError)
		}
		reader = bytes.NewReader(data)
	}

	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "error creating request").
			WithCode(http.StatusInternalServerError)
	}
	req.Header.Set("Authorization", "Bearer "+jwt)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryExternal, fallback).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeUpstreamFailure)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryExternal, fallback).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeUpstreamFailure)
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))

	c.logger.Debug("payments api call",
		"method", method,
		"url", endpoint,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, upstreamError(resp.StatusCode, raw, fallback)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("null")
	} else if !json.Valid(raw) {
		return nil, resp.Header, goerrors.New(fallback, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeUpstreamFailure).
			WithMetadata(map[string]any{"body": truncate(string(raw), 512)})
	}

	return json.RawMessage(raw), resp.Header, nil
}

// upstreamError keeps the upstream status and its "error" message when present.
func upstreamError(status int, body []byte, fallback string) *goerrors.Error {
	message := fallback
	meta := map[string]any{"status": status}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		meta["body"] = parsed
		if msg := errorMessage(parsed["error"]); msg != "" {
			message = msg
		}
	} else if len(body) > 0 {
		meta["body"] = truncate(string(body), 512)
	}

	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(status).
		WithTextCode(TextCodeUpstreamStatus + "_" + strconv.Itoa(status)).
		WithMetadata(meta)
}

func errorMessage(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsUpstreamStatus reports whether err carries a status returned by the payments API.
func IsUpstreamStatus(err error) (*goerrors.Error, bool) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return nil, false
	}
	return rich, strings.HasPrefix(rich.TextCode, TextCodeUpstreamStatus)
}
