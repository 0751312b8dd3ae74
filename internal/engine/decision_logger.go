package engine

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"mabot/internal/md"
	"mabot/internal/state"
	"mabot/internal/strategy"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type Decision struct {
	RunID          string              `json:"run_id"`
	Cycle          uint64              `json:"cycle"`
	Timestamp      time.Time           `json:"timestamp"`
	Product        string              `json:"product"`
	Mode           string              `json:"mode"`
	Tier           md.Tier             `json:"tier,omitempty"`
	Candles        int                 `json:"candles"`
	CandleTime     time.Time           `json:"candle_time"`
	Close          decimal.Decimal     `json:"close"`
	FastMA         decimal.Decimal     `json:"fast_ma"`
	SlowMA         decimal.Decimal     `json:"slow_ma"`
	Position       state.PositionState `json:"position,omitempty"`
	PositionAmount decimal.Decimal     `json:"position_amount"`
	PositionSource state.Source        `json:"position_source,omitempty"`
	Intent         strategy.Action     `json:"intent,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Result         string              `json:"result"`
	OrderID        string              `json:"order_id,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// DecisionLogger appends one JSON line per decision. A nil logger discards.
type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	if d == nil {
		return ""
	}
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	payload, err := json.Marshal(decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal decision: %v\n", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write decision: %v\n", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush decision log: %v\n", err)
	}
}

func (d *DecisionLogger) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
