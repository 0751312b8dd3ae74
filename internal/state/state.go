package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

type PositionState string

const (
	Flat PositionState = "FLAT"
	Long PositionState = "LONG"
)

type Source string

const (
	SourceBalance Source = "balance"
	SourceMemory  Source = "memory"
)

type Position struct {
	State  PositionState
	Amount decimal.Decimal
	Source Source
}

func (p Position) IsLong() bool {
	return p.State == Long
}

// BalanceFunc returns the available balance of an asset.
type BalanceFunc func(ctx context.Context, asset string) (decimal.Decimal, error)

// Tracker derives the position from a live balance when one is configured,
// otherwise from the fills recorded in memory.
type Tracker struct {
	mu        sync.RWMutex
	asset     string
	threshold decimal.Decimal
	balance   BalanceFunc
	last      Position
	known     bool
}

func NewTracker(asset string, threshold decimal.Decimal, balance BalanceFunc) *Tracker {
	source := SourceMemory
	if balance != nil {
		source = SourceBalance
	}
	return &Tracker{
		asset:     asset,
		threshold: threshold,
		balance:   balance,
		last:      Position{State: Flat, Amount: decimal.Zero, Source: source},
	}
}

func (t *Tracker) Source() Source {
	if t.balance != nil {
		return SourceBalance
	}
	return SourceMemory
}

// Current returns the position. With a balance source the queried amount is
// authoritative and the remembered side only serves drift reporting.
func (t *Tracker) Current(ctx context.Context) (Position, error) {
	if t.balance == nil {
		return t.Snapshot(), nil
	}

	amount, err := t.balance(ctx, t.asset)
	if err != nil {
		return Position{}, fmt.Errorf("query %s balance: %w", t.asset, err)
	}
	position := Position{State: Flat, Amount: amount, Source: SourceBalance}
	if amount.GreaterThanOrEqual(t.threshold) {
		position.State = Long
	}

	t.mu.Lock()
	previous, known := t.last, t.known
	t.last = position
	t.known = true
	t.mu.Unlock()

	if known && previous.State != position.State {
		slog.Warn("position drift", "asset", t.asset, "expected", previous.State, "actual", position.State, "amount", amount.String())
	}
	return position, nil
}

func (t *Tracker) Snapshot() Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// MarkLong records an accepted buy of amount base units.
func (t *Tracker) MarkLong(amount decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = Position{State: Long, Amount: amount, Source: t.Source()}
	t.known = true
}

// MarkFlat records an accepted sell.
func (t *Tracker) MarkFlat() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = Position{State: Flat, Amount: decimal.Zero, Source: t.Source()}
	t.known = true
}
