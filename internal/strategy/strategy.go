package strategy

import (
	"time"

	"mabot/internal/state"

	"github.com/shopspring/decimal"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type MarketSnapshot struct {
	Timestamp time.Time
	Close     decimal.Decimal
	FastMA    decimal.Decimal
	SlowMA    decimal.Decimal
	Position  state.Position
}

type TradeIntent struct {
	Action Action
	Reason string
}

type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
}
