package fspiop

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

	"github.com/yungbote/bulkflow/internal/domain/bulk"
	"github.com/yungbote/bulkflow/internal/platform/httpx"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// Requester sends the outbound FSPIOP requests. Replies arrive asynchronously
// as PUT callbacks, so a nil error only means the switch accepted the request.
type Requester interface {
	GetParties(ctx context.Context, info bulk.PartyIDInfo) error
	PostBulkQuotes(ctx context.Context, destination string, req bulk.BulkQuoteRequest) error
	PostBulkTransfers(ctx context.Context, destination string, req bulk.BulkTransferRequest) error
}

type HTTPRequesterConfig struct {
	BaseURL    string
	DfspID     string
	Timeout    time.Duration
	MaxRetries int
}

type HTTPRequester struct {
	log        *logger.Logger
	baseURL    string
	dfspID     string
	httpClient *http.Client
	maxRetries int
}

func NewHTTPRequester(log *logger.Logger, cfg HTTPRequesterConfig) (*HTTPRequester, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("switch base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("switch base url: %w", err)
	}
	if strings.TrimSpace(cfg.DfspID) == "" {
		return nil, fmt.Errorf("dfsp id required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &HTTPRequester{
		log:        log.With("client", "FSPIOP"),
		baseURL:    base,
		dfspID:     strings.TrimSpace(cfg.DfspID),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}, nil
}

func contentType(resource string) string {
	return "application/vnd.interoperability." + resource + "+json;version=1.1"
}

func (c *HTTPRequester) GetParties(ctx context.Context, info bulk.PartyIDInfo) error {
	path := "/parties/" + url.PathEscape(info.PartyIDType) + "/" + url.PathEscape(info.PartyIdentifier)
	if sub := strings.TrimSpace(info.PartySubIDOrType); sub != "" {
		path += "/" + url.PathEscape(sub)
	}
	return c.do(ctx, http.MethodGet, path, "parties", info.FspID, nil)
}

func (c *HTTPRequester) PostBulkQuotes(ctx context.Context, destination string, req bulk.BulkQuoteRequest) error {
	return c.do(ctx, http.MethodPost, "/bulkQuotes", "bulkQuotes", destination, req)
}

func (c *HTTPRequester) PostBulkTransfers(ctx context.Context, destination string, req bulk.BulkTransferRequest) error {
	return c.do(ctx, http.MethodPost, "/bulkTransfers", "bulkTransfers", destination, req)
}

func (c *HTTPRequester) doOnce(ctx context.Context, method, path, resource, destination string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", contentType(resource))
	req.Header.Set("Content-Type", contentType(resource))
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("FSPIOP-Source", c.dfspID)
	if d := strings.TrimSpace(destination); d != "" {
		req.Header.Set("FSPIOP-Destination", d)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &httpx.StatusError{Method: method, URL: path, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

func (c *HTTPRequester) do(ctx context.Context, method, path, resource, destination string, body any) error {
	backoff := 250 * time.Millisecond
	for attempt := 0; ; attempt++ {
		resp, err := c.doOnce(ctx, method, path, resource, destination, body)
		if err == nil {
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt >= c.maxRetries {
			return err
		}
		sleepFor := httpx.Jitter(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("FSPIOP request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
}
