package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinoracle/pricecore/internal/domain"
)

// tradeServer upgrades each connection, waits for the subscribe
// payload, then replays the given messages.
func tradeServer(t *testing.T, expectSubscribe string, messages []string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if expectSubscribe != "" {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			assert.JSONEq(t, expectSubscribe, string(payload))
		}

		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Hold the socket open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestIngestor_IngestsTrades(t *testing.T) {
	subscribe := `{"method":"SUBSCRIBE","params":["ethusdt@trade"],"id":1}`
	server := tradeServer(t, subscribe, []string{
		`{"result":null,"id":1}`, // ack: malformed as a trade, must be dropped
		`{"s":"ETHUSDT","p":"3210.52","q":"0.25","T":1714000000000}`,
		`{"s":"ETHUSDT","p":"3211.00","q":"0.10","T":1714000001000}`,
	})
	defer server.Close()

	cfg := binanceConfig()
	cfg.URL = wsURL(server)
	cfg.Subscribe = subscribe

	table := NewRollingTradeTable()
	ingestor := New([]VenueConfig{cfg}, table, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingestor.Start(ctx)
	defer ingestor.Shutdown()

	waitFor(t, 3*time.Second, func() bool {
		trade, ok := table.LastKnown("ETH")
		return ok && trade.Price == 3211.00
	})

	// The ack and the malformed payload were dropped without killing
	// the connection: both real trades made it through.
	sample, ok := ingestor.LastKnown("ETH")
	require.True(t, ok)
	assert.Equal(t, 3211.00, sample.Value)
	assert.Equal(t, domain.SourceStream, sample.Source)
}

func TestIngestor_MalformedMessageDoesNotKillConnection(t *testing.T) {
	server := tradeServer(t, "", []string{
		`garbage`,
		`{"s":"ETHUSDT","p":"-1"}`,
		`{"s":"ETHUSDT","p":"3210.52","T":1714000000000}`,
	})
	defer server.Close()

	cfg := binanceConfig()
	cfg.URL = wsURL(server)

	table := NewRollingTradeTable()
	ingestor := New([]VenueConfig{cfg}, table, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingestor.Start(ctx)
	defer ingestor.Shutdown()

	waitFor(t, 3*time.Second, func() bool {
		_, ok := table.LastKnown("ETH")
		return ok
	})

	health := ingestor.Health()
	require.Len(t, health, 1)
	assert.Equal(t, StateOpen, health[0].State)
	assert.Equal(t, int64(0), health[0].Reconnects)
}

func TestIngestor_ReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conns := make(chan struct{}, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- struct{}{}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"ETHUSDT","p":"3210.52"}`))
		conn.Close() // drop immediately, client should come back
	}))
	defer server.Close()

	cfg := binanceConfig()
	cfg.URL = wsURL(server)
	cfg.ReconnectMinMS = 10
	cfg.ReconnectMaxMS = 50

	ingestor := New([]VenueConfig{cfg}, NewRollingTradeTable(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ingestor.Start(ctx)
	defer ingestor.Shutdown()

	waitFor(t, 3*time.Second, func() bool { return len(conns) >= 2 })
}

func TestIngestor_ShutdownClosesConnections(t *testing.T) {
	server := tradeServer(t, "", nil)
	defer server.Close()

	cfg := binanceConfig()
	cfg.URL = wsURL(server)

	ingestor := New([]VenueConfig{cfg}, NewRollingTradeTable(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ingestor.Start(ctx)

	waitFor(t, 3*time.Second, func() bool {
		h := ingestor.Health()
		return len(h) == 1 && h[0].State == StateOpen
	})

	cancel()
	done := make(chan struct{})
	go func() {
		ingestor.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not complete")
	}

	health := ingestor.Health()
	assert.Equal(t, StateClosed, health[0].State)
}

func TestIngestor_LastKnownUnknownSymbol(t *testing.T) {
	ingestor := New(nil, NewRollingTradeTable(), nil)
	_, ok := ingestor.LastKnown("ETH")
	assert.False(t, ok)
}
