// Package coinbase is an exchange.Client for the Coinbase Advanced Trade REST
// API. Responses are decoded with go-json and checked with struct tag
// validation before they are converted to decimals.
package coinbase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mabot/internal/exchange"
	"mabot/internal/md"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.coinbase.com"
	apiPrefix      = "/api/v3/brokerage"
	accountsLimit  = 250
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL  string
	http     *http.Client
	signer   *Signer
	validate *validator.Validate
}

var _ exchange.Client = (*Client)(nil)

func New(baseURL string, signer *Signer, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		signer:   signer,
		validate: validator.New(),
	}
}

func (c *Client) GetCandles(ctx context.Context, product string, start, end time.Time, granularity md.Granularity) ([]md.Candle, error) {
	query := url.Values{}
	query.Set("start", strconv.FormatInt(start.Unix(), 10))
	query.Set("end", strconv.FormatInt(end.Unix(), 10))
	query.Set("granularity", string(granularity))

	var resp candlesResponse
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(product)+"/candles", query, nil, &resp); err != nil {
		return nil, err
	}

	candles := make([]md.Candle, 0, len(resp.Candles))
	for i, raw := range resp.Candles {
		candle, err := raw.toCandle()
		if err != nil {
			return nil, fmt.Errorf("%w: candle %d: %w", exchange.ErrParse, i, err)
		}
		candles = append(candles, candle)
	}
	slog.Debug("coinbase candles fetched", "product", product, "count", len(candles))
	return candles, nil
}

func (w wireCandle) toCandle() (md.Candle, error) {
	start, err := md.ParseTimestamp(w.Start)
	if err != nil {
		return md.Candle{}, err
	}
	candle := md.Candle{Start: start}
	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{w.Open, &candle.Open},
		{w.High, &candle.High},
		{w.Low, &candle.Low},
		{w.Close, &candle.Close},
		{w.Volume, &candle.Volume},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(f.raw)
		if err != nil {
			return md.Candle{}, err
		}
		*f.dst = value
	}
	return candle, nil
}

func (c *Client) GetSpotPrice(ctx context.Context, product string) (decimal.Decimal, error) {
	var resp productResponse
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(product), nil, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: product %s price %q", exchange.ErrParse, product, resp.Price)
	}
	return price, nil
}

// GetBalance sums the available balance of every account in asset, following
// the accounts cursor until the last page. No matching account is a zero
// balance.
func (c *Client) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	asset = strings.ToUpper(asset)
	total := decimal.Zero
	cursor := ""
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(accountsLimit))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp accountsResponse
		if err := c.do(ctx, http.MethodGet, "/accounts", query, nil, &resp); err != nil {
			return decimal.Zero, err
		}
		for _, acct := range resp.Accounts {
			if !strings.EqualFold(acct.Currency, asset) || acct.AvailableBalance.Value == "" {
				continue
			}
			value, err := decimal.NewFromString(acct.AvailableBalance.Value)
			if err != nil {
				return decimal.Zero, fmt.Errorf("%w: %s balance %q", exchange.ErrParse, asset, acct.AvailableBalance.Value)
			}
			total = total.Add(value)
		}
		if !resp.HasNext || resp.Cursor == "" || resp.Cursor == cursor {
			break
		}
		cursor = resp.Cursor
	}
	slog.Debug("coinbase balance fetched", "asset", asset, "available", total.String())
	return total, nil
}

// SubmitMarketOrder places a market_market_ioc order. Refusals reported in
// the response body or as a 4xx other than an auth failure come back as a
// rejected ack.
func (c *Client) SubmitMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	if err := req.Validate(); err != nil {
		return exchange.OrderAck{}, err
	}
	body := createOrderRequest{
		ClientOrderID: req.ClientOrderID,
		ProductID:     req.Product,
		Side:          string(req.Side),
	}
	if req.QuoteSize.IsPositive() {
		body.OrderConfiguration.MarketIOC.QuoteSize = req.QuoteSize.String()
	} else {
		body.OrderConfiguration.MarketIOC.BaseSize = req.BaseSize.String()
	}

	var resp createOrderResponse
	err := c.do(ctx, http.MethodPost, "/orders", nil, body, &resp)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 &&
		statusErr.Code != http.StatusUnauthorized && statusErr.Code != http.StatusForbidden {
		slog.Warn("coinbase order rejected", "product", req.Product, "side", req.Side, "status", statusErr.Code, "body", statusErr.Body)
		return exchange.OrderAck{Accepted: false, Status: "rejected", Reason: statusErr.Body}, nil
	}
	if err != nil {
		slog.Error("coinbase place order failed", "product", req.Product, "side", req.Side, "error", err)
		return exchange.OrderAck{}, err
	}

	if !resp.Success {
		reason := resp.ErrorResponse.Error
		if reason == "" {
			reason = resp.FailureReason
		}
		if resp.ErrorResponse.Message != "" {
			reason += ": " + resp.ErrorResponse.Message
		}
		slog.Warn("coinbase order rejected", "product", req.Product, "side", req.Side, "reason", reason)
		return exchange.OrderAck{Accepted: false, Status: "rejected", Reason: reason}, nil
	}

	orderID := resp.SuccessResponse.OrderID
	if orderID == "" {
		orderID = resp.OrderID
	}
	slog.Info("coinbase order placed", "order_id", orderID, "client_order_id", req.ClientOrderID, "product", req.Product, "side", req.Side)
	return exchange.OrderAck{OrderID: orderID, Accepted: true, Status: "submitted"}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = encoded
	}

	target := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", exchange.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.signer != nil {
		for key, value := range c.signer.Headers(method, apiPrefix+path, string(body)) {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", exchange.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", exchange.ErrTransport, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s: %w", exchange.ErrTransport, method, path, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))})
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", exchange.ErrParse, path, err)
	}
	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: validate %s: %w", exchange.ErrParse, path, err)
	}
	return nil
}
