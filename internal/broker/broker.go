// Package broker adapts the Alpaca crypto trading and market data APIs to
// exchange.Client.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mabot/internal/exchange"
	"mabot/internal/md"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

const DefaultQuote = "USD"

type Options struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	DataURL    string
	Quote      string
	HTTPClient *http.Client
}

type Client struct {
	trading *alpaca.Client
	data    *marketdata.Client
	quote   string
}

var _ exchange.Client = (*Client)(nil)

func New(opts Options) *Client {
	quote := strings.ToUpper(opts.Quote)
	if quote == "" {
		quote = DefaultQuote
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     opts.APIKey,
			APISecret:  opts.APISecret,
			BaseURL:    opts.BaseURL,
			HTTPClient: httpClient,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     opts.APIKey,
			APISecret:  opts.APISecret,
			BaseURL:    opts.DataURL,
			HTTPClient: httpClient,
		}),
		quote: quote,
	}
}

// CryptoSymbol converts "SOL-USD" into the "SOL/USD" form used by market data.
func CryptoSymbol(product string) (string, error) {
	base, quote, err := exchange.SplitProduct(product)
	if err != nil {
		return "", err
	}
	return base + "/" + quote, nil
}

// PositionSymbol converts "SOL-USD" into the "SOLUSD" form used by positions.
func PositionSymbol(product string) (string, error) {
	base, quote, err := exchange.SplitProduct(product)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}

func (c *Client) GetCandles(ctx context.Context, product string, start, end time.Time, granularity md.Granularity) ([]md.Candle, error) {
	if granularity != md.OneMinute {
		return nil, fmt.Errorf("unsupported granularity %q", granularity)
	}
	symbol, err := CryptoSymbol(product)
	if err != nil {
		return nil, err
	}

	bars, err := exchange.Await(ctx, func() ([]marketdata.CryptoBar, error) {
		return c.data.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: marketdata.OneMin,
			Start:     start,
			End:       end,
		})
	})
	if err != nil {
		slog.Error("fetch crypto bars failed", "symbol", symbol, "error", err)
		return nil, fmt.Errorf("%w: crypto bars %s: %w", exchange.ErrTransport, symbol, err)
	}

	candles := make([]md.Candle, 0, len(bars))
	for _, bar := range bars {
		candles = append(candles, md.Candle{
			Start:  bar.Timestamp.UTC(),
			Open:   decimal.NewFromFloat(bar.Open),
			High:   decimal.NewFromFloat(bar.High),
			Low:    decimal.NewFromFloat(bar.Low),
			Close:  decimal.NewFromFloat(bar.Close),
			Volume: decimal.NewFromFloat(bar.Volume),
		})
	}
	slog.Debug("crypto bars fetched", "symbol", symbol, "count", len(candles))
	return candles, nil
}

func (c *Client) GetSpotPrice(ctx context.Context, product string) (decimal.Decimal, error) {
	symbol, err := CryptoSymbol(product)
	if err != nil {
		return decimal.Zero, err
	}
	trade, err := exchange.Await(ctx, func() (*marketdata.CryptoTrade, error) {
		return c.data.GetLatestCryptoTrade(symbol, marketdata.GetLatestCryptoTradeRequest{})
	})
	if err != nil {
		slog.Error("fetch latest crypto trade failed", "symbol", symbol, "error", err)
		return decimal.Zero, fmt.Errorf("%w: latest trade %s: %w", exchange.ErrTransport, symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no trade price for %s", exchange.ErrParse, symbol)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

// GetBalance returns account cash for the quote currency and the position
// quantity for any other asset. A missing position is a zero balance.
func (c *Client) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	asset = strings.ToUpper(asset)
	if asset == c.quote {
		acct, err := exchange.Await(ctx, c.trading.GetAccount)
		if err != nil {
			slog.Error("fetch account failed", "error", err)
			return decimal.Zero, fmt.Errorf("%w: account: %w", exchange.ErrTransport, err)
		}
		slog.Debug("account fetched", "cash", acct.Cash.String())
		return acct.Cash, nil
	}

	symbol := asset + c.quote
	pos, err := exchange.Await(ctx, func() (*alpaca.Position, error) {
		return c.trading.GetPosition(symbol)
	})
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return decimal.Zero, nil
		}
		slog.Error("fetch position failed", "symbol", symbol, "error", err)
		return decimal.Zero, fmt.Errorf("%w: position %s: %w", exchange.ErrTransport, symbol, err)
	}
	slog.Debug("position fetched", "symbol", symbol, "qty", pos.Qty.String())
	return pos.Qty, nil
}

// SubmitMarketOrder places a GTC market order. Requests the API refuses
// with a client error come back as a rejected ack rather than an error.
func (c *Client) SubmitMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	if err := req.Validate(); err != nil {
		return exchange.OrderAck{}, err
	}
	symbol, err := CryptoSymbol(req.Product)
	if err != nil {
		return exchange.OrderAck{}, err
	}

	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Side:          alpaca.Buy,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.GTC,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Side == exchange.SideSell {
		orderReq.Side = alpaca.Sell
	}
	if req.QuoteSize.IsPositive() {
		notional := req.QuoteSize
		orderReq.Notional = &notional
	} else {
		qty := req.BaseSize
		orderReq.Qty = &qty
	}

	order, err := exchange.Await(ctx, func() (*alpaca.Order, error) {
		return c.trading.PlaceOrder(orderReq)
	})
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			slog.Warn("order rejected", "side", req.Side, "symbol", symbol, "status", apiErr.StatusCode, "message", apiErr.Message)
			return exchange.OrderAck{Accepted: false, Status: "rejected", Reason: apiErr.Message}, nil
		}
		slog.Error("place order failed", "side", req.Side, "symbol", symbol, "error", err)
		return exchange.OrderAck{}, fmt.Errorf("%w: place order: %w", exchange.ErrTransport, err)
	}

	status := string(order.Status)
	slog.Info("place order success", "order_id", order.ID, "client_order_id", order.ClientOrderID, "side", req.Side, "symbol", symbol, "status", status)
	return exchange.OrderAck{
		OrderID:  order.ID,
		Accepted: status != "rejected" && status != "canceled",
		Status:   status,
	}, nil
}
