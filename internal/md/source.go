package md

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDataUnavailable is returned once every enabled tier has failed.
	ErrDataUnavailable = errors.New("candle data unavailable")

	errNoCandles       = errors.New("no candles returned")
	errTooFewCandles   = errors.New("too few candles")
	errMalformedCandle = errors.New("malformed candle")
	errNoSpotPrice     = errors.New("spot price not positive")
)

// CandleClient is the slice of the exchange client the source depends on.
type CandleClient interface {
	GetCandles(ctx context.Context, product string, start, end time.Time, granularity Granularity) ([]Candle, error)
	GetSpotPrice(ctx context.Context, product string) (decimal.Decimal, error)
}

type SourceConfig struct {
	// MinPoints is the smallest usable series, normally the slow MA period.
	MinPoints       int
	SyntheticPoints int
	// FailClosed disables the synthetic and basic tiers.
	FailClosed     bool
	ReferencePrice decimal.Decimal
}

type Source struct {
	client CandleClient
	cfg    SourceConfig
	now    func() time.Time
}

func NewSource(client CandleClient, cfg SourceConfig) *Source {
	if cfg.ReferencePrice.IsZero() {
		cfg.ReferencePrice = DefaultReferencePrice
	}
	return &Source{client: client, cfg: cfg, now: time.Now}
}

type tier struct {
	name  Tier
	fetch func(ctx context.Context, product string, window time.Duration) (Series, error)
}

func (s *Source) tiers() []tier {
	tiers := []tier{{name: TierPrimary, fetch: s.fetchPrimary}}
	if s.cfg.FailClosed {
		return tiers
	}
	return append(tiers,
		tier{name: TierSynthetic, fetch: s.fetchSynthetic},
		tier{name: TierBasic, fetch: s.fetchBasic},
	)
}

// FetchRecent walks the tiers in order and returns the first usable series.
func (s *Source) FetchRecent(ctx context.Context, product string, window time.Duration) (Series, error) {
	var failures []error
	for _, t := range s.tiers() {
		if err := ctx.Err(); err != nil {
			return Series{}, err
		}
		series, err := t.fetch(ctx, product, window)
		if err != nil {
			slog.Warn("candle tier failed", "tier", t.name, "product", product, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", t.name, err))
			continue
		}
		if series.Degraded() {
			slog.Warn("using degraded candle data", "tier", t.name, "product", product, "candles", series.Len())
		} else {
			slog.Debug("candles fetched", "tier", t.name, "product", product, "candles", series.Len())
		}
		return series, nil
	}
	return Series{}, fmt.Errorf("%w: %w", ErrDataUnavailable, errors.Join(failures...))
}

func (s *Source) fetchPrimary(ctx context.Context, product string, window time.Duration) (Series, error) {
	end := s.now().UTC()
	candles, err := s.client.GetCandles(ctx, product, end.Add(-window), end, OneMinute)
	if err != nil {
		return Series{}, err
	}
	if len(candles) == 0 {
		return Series{}, errNoCandles
	}
	for i, c := range candles {
		if c.Start.IsZero() || !c.Close.IsPositive() {
			return Series{}, fmt.Errorf("%w at index %d", errMalformedCandle, i)
		}
	}
	candles = Normalize(candles)
	if len(candles) < s.cfg.MinPoints {
		return Series{}, fmt.Errorf("%w: have %d, need %d", errTooFewCandles, len(candles), s.cfg.MinPoints)
	}
	return Series{Product: product, Candles: candles, Tier: TierPrimary}, nil
}

func (s *Source) fetchSynthetic(ctx context.Context, product string, _ time.Duration) (Series, error) {
	spot, err := s.client.GetSpotPrice(ctx, product)
	if err != nil {
		return Series{}, err
	}
	if !spot.IsPositive() {
		return Series{}, fmt.Errorf("%w: %s", errNoSpotPrice, spot)
	}
	return SyntheticSeries(product, spot, max(s.cfg.SyntheticPoints, s.cfg.MinPoints), s.now()), nil
}

func (s *Source) fetchBasic(_ context.Context, product string, _ time.Duration) (Series, error) {
	return BasicSeries(product, s.cfg.ReferencePrice, s.cfg.MinPoints, s.now()), nil
}
