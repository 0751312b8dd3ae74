// Package execution turns a trade intent into a sized market order and
// submits it, or simulates it in paper mode.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mabot/internal/exchange"
	"mabot/internal/risk"
	"mabot/internal/state"
	"mabot/internal/strategy"

	"github.com/shopspring/decimal"
)

// PaperOrderID is the order id reported for simulated orders.
const PaperOrderID = "paper_trade"

var ErrOrderRejected = errors.New("order rejected by exchange")

type Mode string

const (
	ModeLive  Mode = "live"
	ModePaper Mode = "paper"
)

type BuySizing string

const (
	BuyBase  BuySizing = "base"
	BuyQuote BuySizing = "quote"
)

type SellSizing string

const (
	SellFixed SellSizing = "fixed"
	SellAll   SellSizing = "all"
)

type Sizing struct {
	Buy          BuySizing
	Sell         SellSizing
	TradeSize    decimal.Decimal
	QuoteAmount  decimal.Decimal
	MinTradeSize decimal.Decimal
	MaxNotional  decimal.Decimal
}

type Config struct {
	Product    string
	BaseAsset  string
	QuoteAsset string
	Mode       Mode
	Sizing     Sizing
	KillSwitch bool
	KeyPrefix  string
}

type Outcome string

const (
	OutcomeHold              Outcome = "hold"
	OutcomeSubmitted         Outcome = "submitted"
	OutcomePaper             Outcome = "paper"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
	OutcomeBelowMinimum      Outcome = "below_minimum"
	OutcomeBlocked           Outcome = "blocked"
	OutcomeRejected          Outcome = "rejected"
	OutcomeFailed            Outcome = "failed"
)

// Order is built once per decision and never modified after submission.
type Order struct {
	Product        string
	Side           exchange.Side
	BaseSize       decimal.Decimal
	QuoteSize      decimal.Decimal
	IdempotencyKey string
	Mode           Mode
}

type Result struct {
	Outcome Outcome
	Order   Order
	OrderID string
	// BaseAmount is the base quantity bought or sold, estimated from the
	// price for quote-sized buys.
	BaseAmount decimal.Decimal
	Err        error
}

// Accepted reports whether the order went out, live or simulated.
func (r Result) Accepted() bool {
	return r.Outcome == OutcomeSubmitted || r.Outcome == OutcomePaper
}

type OrderSubmitter interface {
	SubmitMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error)
}

type Executor struct {
	cfg       Config
	submitter OrderSubmitter
	balance   state.BalanceFunc
	gate      risk.Gate
	now       func() time.Time
}

// New builds an executor. A nil balance disables the funds check and makes
// liquidation fall back to the tracked position amount.
func New(cfg Config, submitter OrderSubmitter, balance state.BalanceFunc) *Executor {
	return &Executor{
		cfg:       cfg,
		submitter: submitter,
		balance:   balance,
		now:       time.Now,
	}
}

// IdempotencyKey is derived from the wall clock at second resolution, so
// two calls within the same second share a key.
func (e *Executor) IdempotencyKey() string {
	seconds := strconv.FormatInt(e.now().Unix(), 10)
	if e.cfg.KeyPrefix == "" {
		return seconds
	}
	return e.cfg.KeyPrefix + "-" + seconds
}

func (e *Executor) Execute(ctx context.Context, intent strategy.TradeIntent, price decimal.Decimal, position state.Position) Result {
	var (
		order Order
		facts orderFacts
		err   error
	)
	switch intent.Action {
	case strategy.Buy:
		order, facts, err = e.sizeBuy(ctx, price)
	case strategy.Sell:
		order, facts, err = e.sizeSell(ctx, price, position)
	default:
		return Result{Outcome: OutcomeHold}
	}
	if err != nil {
		slog.Error("order sizing failed", "intent", intent.Action, "error", err)
		return Result{Outcome: OutcomeFailed, Order: order, Err: err}
	}

	if _, err := e.gate.Evaluate(intent, facts.riskContext(e.cfg)); err != nil {
		return Result{Outcome: outcomeFor(err), Order: order, Err: err}
	}

	order.IdempotencyKey = e.IdempotencyKey()
	order.Mode = e.cfg.Mode
	result := Result{Order: order, BaseAmount: facts.base}

	if e.cfg.Mode == ModePaper {
		slog.Info("paper order", "side", order.Side, "product", order.Product, "base", order.BaseSize.String(), "quote", order.QuoteSize.String(), "key", order.IdempotencyKey)
		result.Outcome = OutcomePaper
		result.OrderID = PaperOrderID
		return result
	}

	ack, err := e.submitter.SubmitMarketOrder(ctx, exchange.OrderRequest{
		Product:       order.Product,
		Side:          order.Side,
		BaseSize:      order.BaseSize,
		QuoteSize:     order.QuoteSize,
		ClientOrderID: order.IdempotencyKey,
	})
	if err != nil {
		slog.Error("submit order failed", "side", order.Side, "product", order.Product, "key", order.IdempotencyKey, "error", err)
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("submit %s order: %w", order.Side, err)
		return result
	}
	result.OrderID = ack.OrderID
	if !ack.Accepted {
		slog.Warn("order rejected", "side", order.Side, "product", order.Product, "status", ack.Status, "reason", ack.Reason)
		result.Outcome = OutcomeRejected
		result.Err = fmt.Errorf("%w: %s", ErrOrderRejected, ack.Reason)
		return result
	}

	slog.Info("order submitted", "side", order.Side, "product", order.Product, "order_id", ack.OrderID, "key", order.IdempotencyKey, "status", ack.Status)
	result.Outcome = OutcomeSubmitted
	return result
}

func (e *Executor) sizeBuy(ctx context.Context, price decimal.Decimal) (Order, orderFacts, error) {
	sizing := e.cfg.Sizing
	order := Order{Product: e.cfg.Product, Side: exchange.SideBuy}
	facts := orderFacts{price: price}

	switch sizing.Buy {
	case BuyQuote:
		order.QuoteSize = sizing.QuoteAmount
		facts.quote = sizing.QuoteAmount
		if price.IsPositive() {
			facts.base = sizing.QuoteAmount.Div(price)
		}
	default:
		order.BaseSize = sizing.TradeSize
		facts.base = sizing.TradeSize
		facts.quote = sizing.TradeSize.Mul(price)
	}

	if e.balance != nil {
		available, err := e.balance(ctx, e.cfg.QuoteAsset)
		if err != nil {
			return order, facts, fmt.Errorf("query %s balance: %w", e.cfg.QuoteAsset, err)
		}
		facts.quoteBalance = available
		facts.hasQuoteBalance = true
	}
	return order, facts, nil
}

func (e *Executor) sizeSell(ctx context.Context, price decimal.Decimal, position state.Position) (Order, orderFacts, error) {
	sizing := e.cfg.Sizing
	order := Order{Product: e.cfg.Product, Side: exchange.SideSell}
	amount := sizing.TradeSize

	if sizing.Sell == SellAll {
		amount = position.Amount
	}
	if e.balance != nil {
		held, err := e.balance(ctx, e.cfg.BaseAsset)
		if err != nil {
			return order, orderFacts{}, fmt.Errorf("query %s balance: %w", e.cfg.BaseAsset, err)
		}
		if sizing.Sell == SellAll {
			amount = held
		} else {
			amount = decimal.Min(amount, held)
		}
	}

	order.BaseSize = amount
	return order, orderFacts{price: price, base: amount, quote: amount.Mul(price)}, nil
}

// orderFacts carries what the risk gate needs to know about a sized order.
type orderFacts struct {
	price           decimal.Decimal
	base            decimal.Decimal
	quote           decimal.Decimal
	quoteBalance    decimal.Decimal
	hasQuoteBalance bool
}

func (b orderFacts) riskContext(cfg Config) risk.RiskContext {
	return risk.RiskContext{
		Price:           b.price,
		BaseAmount:      b.base,
		QuoteAmount:     b.quote,
		QuoteBalance:    b.quoteBalance,
		HasQuoteBalance: b.hasQuoteBalance,
		MinTradeSize:    cfg.Sizing.MinTradeSize,
		MaxNotional:     cfg.Sizing.MaxNotional,
		KillSwitch:      cfg.KillSwitch,
	}
}

func outcomeFor(err error) Outcome {
	switch {
	case errors.Is(err, risk.ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, risk.ErrBelowMinimumSize):
		return OutcomeBelowMinimum
	default:
		return OutcomeBlocked
	}
}
