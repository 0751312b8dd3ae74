package strategy

// Crossover compares only the latest fast/slow pair. It keeps no memory
// between calls, so repeated calls with a stale position repeat the signal.
type Crossover struct{}

func (Crossover) Decide(snapshot MarketSnapshot) TradeIntent {
	long := snapshot.Position.IsLong()
	switch cmp := snapshot.FastMA.Cmp(snapshot.SlowMA); {
	case cmp > 0 && !long:
		return TradeIntent{Action: Buy, Reason: "fast_above_slow"}
	case cmp < 0 && long:
		return TradeIntent{Action: Sell, Reason: "fast_below_slow"}
	case cmp > 0:
		return TradeIntent{Action: Hold, Reason: "already_long"}
	case cmp < 0:
		return TradeIntent{Action: Hold, Reason: "already_flat"}
	default:
		return TradeIntent{Action: Hold, Reason: "no_crossover"}
	}
}
