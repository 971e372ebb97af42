package stream

import (
	"sync"
	"time"
)

// Trade is the normalized form of a venue trade message.
type Trade struct {
	Venue     string
	Symbol    string
	Price     float64
	Quantity  float64
	Timestamp time.Time
}

// RollingTradeTable keeps the most recent trade per (venue, symbol).
// Entries are overwritten in place; no history is retained.
type RollingTradeTable struct {
	mu     sync.RWMutex
	trades map[string]Trade
}

// NewRollingTradeTable creates an empty table.
func NewRollingTradeTable() *RollingTradeTable {
	return &RollingTradeTable{
		trades: make(map[string]Trade),
	}
}

// Update overwrites the entry for the trade's (venue, symbol) pair.
func (t *RollingTradeTable) Update(trade Trade) {
	t.mu.Lock()
	t.trades[trade.Venue+"|"+trade.Symbol] = trade
	t.mu.Unlock()
}

// LastKnown returns the freshest trade for symbol across all venues.
func (t *RollingTradeTable) LastKnown(symbol string) (Trade, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best Trade
	found := false
	for _, trade := range t.trades {
		if trade.Symbol != symbol {
			continue
		}
		if !found || trade.Timestamp.After(best.Timestamp) {
			best = trade
			found = true
		}
	}
	return best, found
}

// Len returns the number of (venue, symbol) entries.
func (t *RollingTradeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.trades)
}
