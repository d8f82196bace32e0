package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/infrastructure/auth"
	"github.com/hilthontt/bookingsync/internal/infrastructure/configs"
	jsonutil "github.com/hilthontt/bookingsync/internal/infrastructure/json"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
)

// HTTPDoer is primarily an [*http.Client], but tests may swap it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the booking REST API. It is used for initial loads and as
// the fallback path while the realtime connection is down.
type Client struct {
	baseURL *url.URL
	doer    HTTPDoer
	tokens  auth.TokenSource
	logger  logging.Logger
}

func NewClient(cfg configs.RestConfig, tokens auth.TokenSource, logger logging.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid rest base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: base,
		doer: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens: tokens,
		logger: logger,
	}, nil
}

func (c *Client) Get(ctx context.Context, path string, res any) error {
	return c.Execute(ctx, http.MethodGet, path, nil, res)
}

func (c *Client) Post(ctx context.Context, path string, params, res any) error {
	return c.Execute(ctx, http.MethodPost, path, params, res)
}

func (c *Client) Put(ctx context.Context, path string, params, res any) error {
	return c.Execute(ctx, http.MethodPut, path, params, res)
}

// Execute sends a JSON request and decodes a JSON response into res (if
// non-nil). Every failure comes back as an *apperr.Error.
func (c *Client) Execute(ctx context.Context, method, path string, params, res any) error {
	var body io.Reader
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return apperr.Wrap(apperr.Generic, err, "")
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, res)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, apperr.Wrap(apperr.Generic, err, "")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Generic, err, "")
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, apperr.Classify(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, res any) error {
	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Warn(logging.Rest, logging.ExternalService, "request failed", map[logging.ExtraKey]any{
			logging.Method:       req.Method,
			logging.Path:         req.URL.Path,
			logging.ErrorMessage: err.Error(),
		})
		return apperr.Wrap(apperr.Network, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, apperr.ErrTransport, err), "")
	}
	defer resp.Body.Close()

	c.logger.Debug(logging.Rest, logging.ExternalService, "request completed", map[logging.ExtraKey]any{
		logging.Method:     req.Method,
		logging.Path:       req.URL.Path,
		logging.StatusCode: resp.StatusCode,
		logging.Latency:    time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return jsonutil.DecodeError(resp)
	}

	if res == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := jsonutil.DecodeBody(resp.Body, res); err != nil {
		return apperr.Wrap(apperr.Generic, err, "")
	}
	return nil
}
