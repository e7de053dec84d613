package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

type recordingHandler struct {
	*TradeHandler

	mu          sync.Mutex
	connects    int
	disconnects int
	errs        []error
}

func (h *recordingHandler) OnConnect(url string) {
	h.mu.Lock()
	h.connects++
	h.mu.Unlock()
	h.TradeHandler.OnConnect(url)
}

func (h *recordingHandler) OnDisconnect(url string) {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
	h.TradeHandler.OnDisconnect(url)
}

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.TradeHandler.OnError(err)
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects, h.disconnects
}

// streamServer serves each connection the next batch of frames, then either
// holds the connection open or drops it.
func streamServer(t *testing.T, batches [][]string, hold bool) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	var mu sync.Mutex
	next := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		mu.Lock()
		var frames []string
		if next < len(batches) {
			frames = batches[next]
		}
		next++
		last := next >= len(batches)
		mu.Unlock()

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if hold && last {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func trade(price string) string {
	return `{"e":"trade","E":1,"s":"BTCUSDT","t":1,"p":"` + price + `","q":"0.01","T":1,"m":false}`
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for price")
		return ""
	}
}

func TestConnectDeliversPricesInOrder(t *testing.T) {
	srv := streamServer(t, [][]string{{
		`{"result":null,"id":1}`,
		trade("100.10"),
		`not json`,
		trade("100.20"),
	}}, true)

	log := zaptest.NewLogger(t)
	h := &recordingHandler{TradeHandler: NewTradeHandler(log)}
	c := NewClient(Config{URL: wsURL(srv), MaxReconnects: 1}, h, log)

	sink := make(chan string, 8)
	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), sink) }()

	if got := recv(t, sink); got != "100.10" {
		t.Fatalf("first price = %s", got)
	}
	if got := recv(t, sink); got != "100.20" {
		t.Fatalf("second price = %s", got)
	}
	if !c.Connected() || c.LastMessage().IsZero() {
		t.Fatal("expected connected state with a last message time")
	}

	if err := c.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		t.Logf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Connect after Close = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Close")
	}
	if len(sink) != 0 {
		t.Fatalf("unexpected extra prices: %d", len(sink))
	}
	if c.Connected() {
		t.Fatal("still connected after close")
	}
	connects, disconnects := h.counts()
	if connects != 1 || disconnects != 1 {
		t.Fatalf("connects=%d disconnects=%d", connects, disconnects)
	}
	if err := c.Close(); err != nil {
		t.Fatal("second close must be a no-op")
	}
}

func TestConnectReconnectsAfterDrop(t *testing.T) {
	srv := streamServer(t, [][]string{
		{trade("1")},
		{trade("2")},
	}, true)

	log := zaptest.NewLogger(t)
	h := &recordingHandler{TradeHandler: NewTradeHandler(log)}
	c := NewClient(Config{URL: wsURL(srv), MaxReconnects: 3, MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, h, log)

	ctx, cancel := context.WithCancel(context.Background())
	sink := make(chan string, 8)
	done := make(chan error, 1)
	go func() { done <- c.Connect(ctx, sink) }()

	if got := recv(t, sink); got != "1" {
		t.Fatalf("price = %s", got)
	}
	if got := recv(t, sink); got != "2" {
		t.Fatalf("price after reconnect = %s", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Connect after cancel = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after cancel")
	}
	if connects, _ := h.counts(); connects != 2 {
		t.Fatalf("connects = %d", connects)
	}
}

func TestConnectGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	log := zaptest.NewLogger(t)
	h := &recordingHandler{TradeHandler: NewTradeHandler(log)}
	c := NewClient(Config{URL: url, MaxReconnects: 2, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, h, log)

	err := c.Connect(context.Background(), make(chan string))
	if !errors.Is(err, ErrFeedLost) {
		t.Fatalf("err = %v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errs) != 3 {
		t.Fatalf("error hook calls = %d", len(h.errs))
	}
}

func TestTradeHandler(t *testing.T) {
	h := NewTradeHandler(zaptest.NewLogger(t))
	tests := []struct {
		msg   string
		price string
		ok    bool
	}{
		{msg: trade("27123.45"), price: "27123.45", ok: true},
		{msg: `{"result":null,"id":1}`},
		{msg: `{"e":"trade","p":""}`},
		{msg: `garbage`},
	}
	for _, tt := range tests {
		price, ok := h.OnMessage([]byte(tt.msg))
		if price != tt.price || ok != tt.ok {
			t.Errorf("OnMessage(%s) = %q,%v", tt.msg, price, ok)
		}
	}
}

func TestTradeStreamURL(t *testing.T) {
	if got := TradeStreamURL("wss://stream.binance.com:9443/ws/", "BTCUSDT"); got != "wss://stream.binance.com:9443/ws/btcusdt@trade" {
		t.Fatalf("url = %s", got)
	}
}
