package stream

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// MessagePaths maps a venue's inbound trade message onto the normalized
// trade fields using gjson path expressions. Quantity and Timestamp are
// optional; Symbol and Price are required.
type MessagePaths struct {
	Symbol    string `yaml:"symbol"`
	Price     string `yaml:"price"`
	Quantity  string `yaml:"quantity"`
	Timestamp string `yaml:"timestamp"`
}

// VenueConfig describes one trade-stream subscription. The subscribe
// payload and field paths are venue-specific configuration, not engine
// logic: adding a venue means adding a config block.
type VenueConfig struct {
	Name      string            `yaml:"name"`
	URL       string            `yaml:"url"`
	Subscribe string            `yaml:"subscribe"`  // raw payload sent once on open, optional
	Paths     MessagePaths      `yaml:"paths"`
	SymbolMap map[string]string `yaml:"symbol_map"` // venue symbol -> canonical symbol

	ReconnectMinMS int `yaml:"reconnect_min_ms"` // backoff floor, default 500
	ReconnectMaxMS int `yaml:"reconnect_max_ms"` // backoff cap, default 30000
	ReadTimeoutSec int `yaml:"read_timeout_sec"` // silent-socket detection, default 60
}

func (c VenueConfig) reconnectMin() time.Duration {
	if c.ReconnectMinMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.ReconnectMinMS) * time.Millisecond
}

func (c VenueConfig) reconnectMax() time.Duration {
	if c.ReconnectMaxMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ReconnectMaxMS) * time.Millisecond
}

func (c VenueConfig) readTimeout() time.Duration {
	if c.ReadTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// parseTrade normalizes one inbound message. A missing symbol or a
// missing/non-positive price makes the message malformed; malformed
// messages are dropped by the caller, they never kill the connection.
func parseTrade(cfg VenueConfig, msg []byte, now time.Time) (Trade, error) {
	sym := gjson.GetBytes(msg, cfg.Paths.Symbol)
	if !sym.Exists() || sym.String() == "" {
		return Trade{}, fmt.Errorf("symbol missing at path %q", cfg.Paths.Symbol)
	}

	price := gjson.GetBytes(msg, cfg.Paths.Price)
	if !price.Exists() {
		return Trade{}, fmt.Errorf("price missing at path %q", cfg.Paths.Price)
	}
	value := price.Float()
	if value <= 0 {
		return Trade{}, fmt.Errorf("unparseable price %q", price.String())
	}

	symbol := sym.String()
	if canonical, ok := cfg.SymbolMap[symbol]; ok {
		symbol = canonical
	}

	trade := Trade{
		Venue:     cfg.Name,
		Symbol:    symbol,
		Price:     value,
		Timestamp: now,
	}

	if cfg.Paths.Quantity != "" {
		trade.Quantity = gjson.GetBytes(msg, cfg.Paths.Quantity).Float()
	}
	if cfg.Paths.Timestamp != "" {
		if ts := gjson.GetBytes(msg, cfg.Paths.Timestamp); ts.Exists() {
			trade.Timestamp = epochToTime(ts.Float(), now)
		}
	}
	return trade, nil
}

// epochToTime accepts seconds or milliseconds since the epoch; venues
// disagree on the unit.
func epochToTime(v float64, fallback time.Time) time.Time {
	if v <= 0 {
		return fallback
	}
	if v > 1e12 { // milliseconds
		return time.UnixMilli(int64(v))
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
