package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"picklist/internal"
	"picklist/internal/config"
	"picklist/internal/logging"
)

const maxAttempts = 5

// Client reads products, suppliers and prices from the remote price feed.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type scrollPage[T any] struct {
	Items    []T     `json:"items"`
	ScrollID *string `json:"scrollId"`
}

type feedProduct struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type feedSupplier struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type feedPrice struct {
	ProductID  int      `json:"productId"`
	SupplierID int      `json:"supplierId"`
	Price      *float64 `json:"price"`
}

func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	rps := cfg.PriceFeedRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:    cfg.PriceFeedBaseURL,
		token:      cfg.PriceFeedToken,
		httpClient: &http.Client{Timeout: cfg.PriceFeedTimeout()},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logging.OrNop(logger),
	}
}

func (c *Client) GetProducts(ctx context.Context) ([]internal.Product, error) {
	raw, err := scrollAll[feedProduct](ctx, c, "products/scroll", nil)
	if err != nil {
		return nil, err
	}
	out := make([]internal.Product, 0, len(raw))
	for _, p := range raw {
		desc := strings.TrimSpace(p.Description)
		if p.ID <= 0 || desc == "" {
			continue
		}
		out = append(out, internal.Product{ID: p.ID, Description: desc})
	}
	return out, nil
}

func (c *Client) GetSuppliers(ctx context.Context) ([]internal.Supplier, error) {
	raw, err := scrollAll[feedSupplier](ctx, c, "suppliers/scroll", nil)
	if err != nil {
		return nil, err
	}
	out := make([]internal.Supplier, 0, len(raw))
	for _, s := range raw {
		name := strings.TrimSpace(s.Name)
		if s.ID <= 0 || name == "" {
			continue
		}
		out = append(out, internal.Supplier{ID: s.ID, Name: name})
	}
	return out, nil
}

// GetPrices returns all offers, or only those changed in the last
// lookbackHours when it is positive.
func (c *Client) GetPrices(ctx context.Context, lookbackHours int) ([]internal.SupplierPriceOffer, error) {
	params := map[string]string{}
	if lookbackHours > 0 {
		params["hour_price"] = strconv.Itoa(lookbackHours)
	}
	raw, err := scrollAll[feedPrice](ctx, c, "prices/scroll", params)
	if err != nil {
		return nil, err
	}
	out := make([]internal.SupplierPriceOffer, 0, len(raw))
	for _, p := range raw {
		if p.ProductID <= 0 || p.SupplierID <= 0 || p.Price == nil || *p.Price < 0 {
			continue
		}
		out = append(out, internal.SupplierPriceOffer{ProductID: p.ProductID, SupplierID: p.SupplierID, Price: *p.Price})
	}
	return out, nil
}

func scrollAll[T any](ctx context.Context, c *Client, endpoint string, params map[string]string) ([]T, error) {
	all := make([]T, 0)
	seen := map[string]struct{}{}
	var scrollID string

	for {
		query := map[string]string{}
		for k, v := range params {
			query[k] = v
		}
		if scrollID != "" {
			query["scrollId"] = scrollID
		}

		body, err := c.fetchJSON(ctx, endpoint, query)
		if err != nil {
			return nil, err
		}

		var page scrollPage[T]
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", endpoint, err)
		}
		all = append(all, page.Items...)

		if page.ScrollID == nil || *page.ScrollID == "" || len(page.Items) == 0 {
			break
		}
		if _, ok := seen[*page.ScrollID]; ok {
			break
		}
		seen[*page.ScrollID] = struct{}{}
		scrollID = *page.ScrollID
	}

	return all, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.token) == "" {
		return nil, errors.New("missing PRICE_FEED_TOKEN")
	}

	u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/" + endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("price feed request failed", zap.String("endpoint", endpoint), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("price feed status %d", resp.StatusCode)
				c.logger.Warn("price feed retrying", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
				if err := sleepCtx(ctx, backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("price feed error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("price feed unsuccessful: %s %s", apiResp.Message, string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("price feed request failed")
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
