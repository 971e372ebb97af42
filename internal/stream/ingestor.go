// Package stream maintains one long-lived trade subscription per venue
// and publishes the most recent trade price per (venue, symbol) into a
// rolling table. The table is a last-resort price tier, not the
// authoritative cache.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coinoracle/pricecore/internal/domain"
	"github.com/coinoracle/pricecore/internal/metrics"
)

// ConnState is the lifecycle state of a venue connection.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateOpen         ConnState = "open"
	StateReconnecting ConnState = "reconnecting"
	StateClosed       ConnState = "closed"
)

// VenueHealth is a snapshot of one venue connection.
type VenueHealth struct {
	Venue         string    `json:"venue"`
	State         ConnState `json:"state"`
	LastMessageAt time.Time `json:"last_message_at"`
	Reconnects    int64     `json:"reconnects"`
	SessionID     string    `json:"session_id"`
}

// Ingestor runs one connection loop per configured venue.
type Ingestor struct {
	venues  []VenueConfig
	table   *RollingTradeTable
	metrics *metrics.Registry

	mu     sync.RWMutex
	health map[string]*VenueHealth

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an ingestor over the given venues. metrics may be nil.
func New(venues []VenueConfig, table *RollingTradeTable, m *metrics.Registry) *Ingestor {
	health := make(map[string]*VenueHealth, len(venues))
	for _, v := range venues {
		health[v.Name] = &VenueHealth{Venue: v.Name, State: StateClosed}
	}
	return &Ingestor{
		venues:  venues,
		table:   table,
		metrics: m,
		health:  health,
	}
}

// Start launches the per-venue connection loops. Venues stay subscribed
// for the process lifetime; there is no retry ceiling.
func (i *Ingestor) Start(ctx context.Context) {
	ctx, i.cancel = context.WithCancel(ctx)
	for _, venue := range i.venues {
		i.wg.Add(1)
		go func(cfg VenueConfig) {
			defer i.wg.Done()
			i.runVenue(ctx, cfg)
		}(venue)
	}
}

// Shutdown closes all connections and waits for the loops to exit.
func (i *Ingestor) Shutdown() {
	if i.cancel != nil {
		i.cancel()
	}
	i.wg.Wait()
}

// LastKnown returns the freshest streamed price for symbol across all
// venues, tagged as a stream sample.
func (i *Ingestor) LastKnown(symbol string) (*domain.PriceSample, bool) {
	trade, ok := i.table.LastKnown(symbol)
	if !ok {
		return nil, false
	}
	return &domain.PriceSample{
		Symbol:     symbol,
		Value:      trade.Price,
		Source:     domain.SourceStream,
		ObservedAt: trade.Timestamp,
	}, true
}

// Health returns a snapshot of every venue connection.
func (i *Ingestor) Health() []VenueHealth {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]VenueHealth, 0, len(i.health))
	for _, h := range i.health {
		out = append(out, *h)
	}
	return out
}

func (i *Ingestor) setState(venue string, state ConnState, sessionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	h := i.health[venue]
	h.State = state
	if sessionID != "" {
		h.SessionID = sessionID
	}
	if state == StateReconnecting {
		h.Reconnects++
	}
}

func (i *Ingestor) touch(venue string) {
	i.mu.Lock()
	i.health[venue].LastMessageAt = time.Now()
	i.mu.Unlock()
}

// runVenue is the per-venue connection loop: connect, subscribe, read
// until the socket dies, back off, reconnect. Only context cancellation
// ends the loop.
func (i *Ingestor) runVenue(ctx context.Context, cfg VenueConfig) {
	backoff := cfg.reconnectMin()

	for {
		if ctx.Err() != nil {
			i.setState(cfg.Name, StateClosed, "")
			return
		}

		sessionID := uuid.NewString()
		i.setState(cfg.Name, StateConnecting, sessionID)

		conn, err := i.dial(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).
				Str("venue", cfg.Name).
				Str("session", sessionID).
				Dur("backoff", backoff).
				Msg("Venue connect failed")
			if i.metrics != nil {
				i.metrics.StreamReconnects.WithLabelValues(cfg.Name).Inc()
			}
			i.setState(cfg.Name, StateReconnecting, "")
			if !sleepCtx(ctx, backoff) {
				i.setState(cfg.Name, StateClosed, "")
				return
			}
			backoff = nextBackoff(backoff, cfg.reconnectMax())
			continue
		}

		i.setState(cfg.Name, StateOpen, "")
		backoff = cfg.reconnectMin()
		log.Info().Str("venue", cfg.Name).Str("session", sessionID).Msg("Venue stream connected")

		// Unblock the read loop promptly on shutdown instead of
		// waiting out the read deadline.
		watcherDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-watcherDone:
			}
		}()

		i.readLoop(ctx, cfg, conn)
		close(watcherDone)
		conn.Close()

		if ctx.Err() != nil {
			i.setState(cfg.Name, StateClosed, "")
			return
		}

		log.Warn().Str("venue", cfg.Name).Str("session", sessionID).Msg("Venue stream dropped, reconnecting")
		if i.metrics != nil {
			i.metrics.StreamReconnects.WithLabelValues(cfg.Name).Inc()
		}
		i.setState(cfg.Name, StateReconnecting, "")
		if !sleepCtx(ctx, backoff) {
			i.setState(cfg.Name, StateClosed, "")
			return
		}
		backoff = nextBackoff(backoff, cfg.reconnectMax())
	}
}

func (i *Ingestor) dial(ctx context.Context, cfg VenueConfig) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 15 * time.Second

	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, err
	}

	if cfg.Subscribe != "" {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(cfg.Subscribe)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// readLoop consumes messages until the socket errors out. Malformed
// payloads are dropped and counted; they never close the connection.
func (i *Ingestor) readLoop(ctx context.Context, cfg VenueConfig, conn *websocket.Conn) {
	readTimeout := cfg.readTimeout()

	for {
		if ctx.Err() != nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Str("venue", cfg.Name).Msg("Stream read error")
			}
			return
		}

		i.touch(cfg.Name)

		trade, err := parseTrade(cfg, msg, time.Now())
		if err != nil {
			log.Warn().Err(err).Str("venue", cfg.Name).Msg("Dropping malformed stream message")
			if i.metrics != nil {
				i.metrics.StreamMessages.WithLabelValues(cfg.Name, "dropped").Inc()
			}
			continue
		}

		i.table.Update(trade)
		if i.metrics != nil {
			i.metrics.StreamMessages.WithLabelValues(cfg.Name, "parsed").Inc()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
