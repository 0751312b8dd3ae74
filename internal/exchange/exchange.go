// Package exchange defines the boundary between the trading loop and a
// concrete exchange. Adapters convert their wire formats into these types
// and wrap failures in ErrTransport or ErrParse.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mabot/internal/md"

	"github.com/shopspring/decimal"
)

var (
	ErrTransport = errors.New("exchange transport error")
	ErrParse     = errors.New("malformed exchange response")
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderRequest describes a market order. Exactly one of BaseSize and
// QuoteSize is set.
type OrderRequest struct {
	Product       string
	Side          Side
	BaseSize      decimal.Decimal
	QuoteSize     decimal.Decimal
	ClientOrderID string
}

func (r OrderRequest) Validate() error {
	if r.Product == "" {
		return fmt.Errorf("order product is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("invalid order side %q", r.Side)
	}
	if r.BaseSize.IsPositive() == r.QuoteSize.IsPositive() {
		return fmt.Errorf("exactly one of base size and quote size must be positive")
	}
	return nil
}

type OrderAck struct {
	OrderID  string
	Accepted bool
	Status   string
	Reason   string
}

type Client interface {
	md.CandleClient
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
}

// SplitProduct splits "SOL-USD" or "SOL/USD" into base and quote assets.
func SplitProduct(product string) (base string, quote string, err error) {
	sep := "-"
	if strings.Contains(product, "/") {
		sep = "/"
	}
	base, quote, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(product)), sep)
	if !ok || base == "" || quote == "" || strings.ContainsAny(quote, "-/") {
		return "", "", fmt.Errorf("invalid product %q: want BASE-QUOTE", product)
	}
	return base, quote, nil
}
