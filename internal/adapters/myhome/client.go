package myhome

import (
	"bytes"
	"context"
	"errors"
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

const resultOK = "00"

var endpoints = map[domain.ListingKind]string{
	domain.ListingRental: "/rsdtRcritNtcList",
	domain.ListingSale:   "/ltRsdtRcritNtcList",
}

// Client выполняет запросы к API листинга MyHome.
type Client struct {
	baseURL    *url.URL
	serviceKey string
	httpClient *http.Client
	retry      retry.Policy
	logger     zerolog.Logger
}

var _ domain.ListingFetcher = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithRetry(p retry.Policy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// New создаёт клиента для baseURL с ключом serviceKey.
func New(baseURL, serviceKey string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: myhome base url is blank", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(serviceKey) == "" {
		return nil, fmt.Errorf("%w: myhome service key is blank", domain.ErrInvalidArgument)
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{
		baseURL:    parsed,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      retry.Default(logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPage возвращает страницу. Код результата не "00" даёт *domain.UpstreamError.
func (c *Client) FetchPage(ctx context.Context, q domain.ListingQuery, pageNo int) (domain.ListingPage, error) {
	endpoint, ok := endpoints[q.Kind]
	if !ok {
		return domain.ListingPage{}, fmt.Errorf("%w: unknown listing kind %q", domain.ErrInvalidArgument, q.Kind)
	}
	if pageNo < 1 {
		return domain.ListingPage{}, fmt.Errorf("%w: page %d", domain.ErrInvalidArgument, pageNo)
	}
	reqURL := c.buildURL(endpoint, q, pageNo)

	var page domain.ListingPage
	op := fmt.Sprintf("myhome %s page %d", q.Kind, pageNo)
	err := c.retry.Do(ctx, op, func() error {
		var err error
		page, err = c.fetchOnce(ctx, reqURL, q.Kind)
		return err
	})
	if err != nil {
		return domain.ListingPage{}, err
	}
	c.logger.Debug().
		Str("kind", string(q.Kind)).
		Int("page", pageNo).
		Int("items", len(page.Items)).
		Str("total", page.TotalCount).
		Msg("myhome: page fetched")
	return page, nil
}

func (c *Client) buildURL(endpoint string, q domain.ListingQuery, pageNo int) string {
	resolved := *c.baseURL
	resolved.Path = path.Clean(strings.TrimSuffix(c.baseURL.Path, "/") + endpoint)

	params := url.Values{}
	params.Set("serviceKey", c.serviceKey)
	params.Set("_type", "json")
	params.Set("pageNo", strconv.Itoa(pageNo))
	if q.NumOfRows > 0 {
		params.Set("numOfRows", strconv.Itoa(q.NumOfRows))
	}
	setIf(params, "brtcCode", q.BrtcCode)
	setIf(params, "signguCode", q.SignguCode)
	setIf(params, "houseTy", q.HouseTy)
	setIf(params, "yearMtBegin", q.YearMtFrom)
	setIf(params, "yearMtEnd", q.YearMtTo)
	if q.Kind == domain.ListingRental {
		setIf(params, "suplyTy", q.SuplyTy)
		setIf(params, "lfstsTyAt", q.LfstsTyAt)
		setIf(params, "bassMtRntchrgSe", q.BassMtRntchrgSe)
	}
	resolved.RawQuery = params.Encode()
	return resolved.String()
}

func setIf(params url.Values, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		params.Set(key, v)
	}
}

func (c *Client) fetchOnce(ctx context.Context, reqURL string, kind domain.ListingKind) (domain.ListingPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.ListingPage{}, fmt.Errorf("create request: %s", MaskURL(err.Error()))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("myhome", string(kind), "list", start, err)
		return domain.ListingPage{}, maskError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.ObserveNetworkRequest("myhome", string(kind), "list", start, err)
	if err != nil {
		return domain.ListingPage{}, fmt.Errorf("read response: %w", maskError(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("url", MaskURL(reqURL)).
			Str("body", truncate(string(body), 500)).
			Msg("myhome: non-2xx response")
		return domain.ListingPage{}, &domain.UpstreamError{
			Source:  domain.SourceMyHome,
			Op:      string(kind),
			Code:    strconv.Itoa(resp.StatusCode),
			Message: "http status",
		}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.ListingPage{}, &domain.UpstreamError{Source: domain.SourceMyHome, Op: string(kind), Code: "empty", Message: "empty body"}
	}

	page, err := decodePage(body)
	if err != nil {
		return domain.ListingPage{}, &domain.UpstreamError{Source: domain.SourceMyHome, Op: string(kind), Code: "decode", Message: err.Error()}
	}
	if page.ResultCode != resultOK {
		c.logger.Error().
			Str("result_code", page.ResultCode).
			Str("result_msg", page.ResultMsg).
			Str("url", MaskURL(reqURL)).
			Msg("myhome: business failure")
		return domain.ListingPage{}, &domain.UpstreamError{
			Source:  domain.SourceMyHome,
			Op:      string(kind),
			Code:    page.ResultCode,
			Message: page.ResultMsg,
		}
	}
	return page, nil
}

// maskError скрывает ключ в транспортных ошибках.
func maskError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		masked := *ue
		masked.URL = MaskURL(ue.URL)
		return &masked
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
