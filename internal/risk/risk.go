package risk

import (
	"errors"
	"log/slog"

	"mabot/internal/strategy"

	"github.com/shopspring/decimal"
)

var (
	ErrKillSwitch        = errors.New("kill_switch_enabled")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrBelowMinimumSize  = errors.New("below_minimum_size")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrMaxNotional       = errors.New("max_notional_exceeded")
)

type RiskContext struct {
	Price decimal.Decimal
	// BaseAmount is the order size in base units, estimated for quote orders.
	BaseAmount decimal.Decimal
	// QuoteAmount is the spend for a buy or the proceeds estimate for a sell.
	QuoteAmount     decimal.Decimal
	QuoteBalance    decimal.Decimal
	HasQuoteBalance bool
	MinTradeSize    decimal.Decimal
	// MaxNotional caps buys; zero disables it.
	MaxNotional decimal.Decimal
	KillSwitch  bool
}

type ApprovedIntent struct {
	Intent strategy.TradeIntent
	Reason string
}

type Gate struct{}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}

	slog.Info("risk evaluation", "intent", intent.Action, "base", ctx.BaseAmount.String(), "quote", ctx.QuoteAmount.String(), "price", ctx.Price.String())

	if ctx.KillSwitch {
		slog.Info("risk rejected", "reason", ErrKillSwitch)
		return ApprovedIntent{}, ErrKillSwitch
	}
	// A zero sell is below minimum too.
	if intent.Action == strategy.Sell && ctx.BaseAmount.LessThan(ctx.MinTradeSize) {
		slog.Info("risk rejected", "reason", ErrBelowMinimumSize, "amount", ctx.BaseAmount.String(), "min", ctx.MinTradeSize.String())
		return ApprovedIntent{}, ErrBelowMinimumSize
	}
	if !ctx.BaseAmount.IsPositive() && !ctx.QuoteAmount.IsPositive() {
		slog.Info("risk rejected", "reason", ErrInvalidQuantity)
		return ApprovedIntent{}, ErrInvalidQuantity
	}
	if intent.Action == strategy.Buy && ctx.HasQuoteBalance && ctx.QuoteBalance.LessThan(ctx.QuoteAmount) {
		slog.Info("risk rejected", "reason", ErrInsufficientFunds, "required", ctx.QuoteAmount.String(), "available", ctx.QuoteBalance.String())
		return ApprovedIntent{}, ErrInsufficientFunds
	}
	if intent.Action == strategy.Buy && ctx.MaxNotional.IsPositive() && ctx.QuoteAmount.GreaterThan(ctx.MaxNotional) {
		slog.Info("risk rejected", "reason", ErrMaxNotional, "notional", ctx.QuoteAmount.String(), "max", ctx.MaxNotional.String())
		return ApprovedIntent{}, ErrMaxNotional
	}

	slog.Info("risk approved", "intent", intent.Action, "reason", intent.Reason)
	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}
