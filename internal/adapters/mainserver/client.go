package mainserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
	"seoul-housing-ingest/internal/infra/retry"
)

const maxErrorBody = 2000

// Client отправляет новые объявления на эндпоинт загрузки основного сервера.
type Client struct {
	baseURL    *url.URL
	ingestPath string
	httpClient *http.Client
	retry      retry.Policy
	logger     zerolog.Logger
}

var _ domain.Deliverer = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

func WithRetry(p retry.Policy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

func New(baseURL, ingestPath string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: main server base url is required", domain.ErrInvalidArgument)
	}
	normalized, err := NormalizePath(ingestPath)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		baseURL:    parsed,
		ingestPath: normalized,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      retry.Default(logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NormalizePath обрезает p и добавляет "/" в начало при необходимости.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: main server ingest path is blank", domain.ErrInvalidArgument)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p, nil
}

// Deliver отправляет req. Ответ не 2xx возвращается как *domain.UpstreamError.
func (c *Client) Deliver(ctx context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	if strings.TrimSpace(req.Category) == "" {
		return domain.IngestResult{}, fmt.Errorf("%w: ingest category is blank", domain.ErrInvalidArgument)
	}
	if req.Items == nil {
		req.Items = []domain.IngestItem{}
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("marshal request: %w", err)
	}

	var result domain.IngestResult
	err = c.retry.Do(ctx, "main server ingest", func() error {
		var err error
		result, err = c.post(ctx, req.Category, raw)
		return err
	})
	if err != nil {
		return domain.IngestResult{}, err
	}
	c.logger.Info().
		Str("category", req.Category).
		Int("received", result.Received).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("main server: ingest ok")
	return result, nil
}

func (c *Client) post(ctx context.Context, category string, raw []byte) (domain.IngestResult, error) {
	resolved := *c.baseURL
	resolved.Path = path.Clean(strings.TrimSuffix(c.baseURL.Path, "/") + c.ingestPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resolved.String(), bytes.NewReader(raw))
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("main_server", "ingest", category, start, err)
	if err != nil {
		return domain.IngestResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		body := cut(strings.TrimSpace(string(data)))
		c.logger.Error().Int("status", resp.StatusCode).Str("body", body).Msg("main server: ingest http failure")
		return domain.IngestResult{}, &domain.UpstreamError{
			Source:  "main_server",
			Op:      "ingest",
			Code:    strconv.Itoa(resp.StatusCode),
			Message: body,
		}
	}

	var result domain.IngestResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.IngestResult{}, &domain.UpstreamError{Source: "main_server", Op: "ingest", Code: "decode", Message: err.Error()}
	}
	return result, nil
}

func cut(body string) string {
	r := []rune(body)
	if len(r) > maxErrorBody {
		return string(r[:maxErrorBody]) + "..."
	}
	return body
}
