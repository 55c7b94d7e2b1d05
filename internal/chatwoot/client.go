// Package chatwoot is a small client for the Chatwoot contacts API.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("chatwoot: CHATWOOT_URL_BASE and CHATWOOT_API_TOKEN are required")

// HTTPError is any non-2xx reply.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("chatwoot: %s %s: HTTP %d: %s", e.Method, e.URL, e.Status, bytes.TrimSpace(e.Body))
}

// IsNotFound reports whether err is a 404 from Chatwoot.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

type Client struct {
	baseURL   string
	token     string
	accountID string
	http      *http.Client
	log       *zap.SugaredLogger
}

type Config struct {
	BaseURL   string
	Token     string
	AccountID string
	Timeout   time.Duration
}

func New(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Token == "" {
		return nil, ErrNotConfigured
	}
	if cfg.AccountID == "" {
		cfg.AccountID = "1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		accountID: cfg.AccountID,
		http:      &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:       log,
	}, nil
}

func (c *Client) contactsPath(suffix ...string) string {
	p := "/api/v1/accounts/" + url.PathEscape(c.accountID) + "/contacts"
	for _, s := range suffix {
		p += "/" + url.PathEscape(s)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chatwoot: encode body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, full, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("api_access_token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.log.Debugw("chatwoot request", "method", method, "path", path)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chatwoot: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("chatwoot: read %s %s: %w", method, path, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &HTTPError{Method: method, URL: path, Status: res.StatusCode, Body: data}
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("chatwoot: decode %s %s: %w", method, path, err)
		}
	}
	return nil
}
