package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrFeedLost is returned by Connect once the reconnect budget is spent.
var ErrFeedLost = errors.New("price feed lost")

// Handler receives the lifecycle of a stream connection. OnMessage returns
// the trade price carried by msg; ok=false drops the message.
type Handler interface {
	OnConnect(url string)
	OnMessage(msg []byte) (price string, ok bool)
	OnDisconnect(url string)
	OnError(err error)
}

type Config struct {
	URL           string
	MaxReconnects int
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	HandshakeTO   time.Duration
}

// Client keeps one websocket subscription alive and pushes prices into a sink.
type Client struct {
	cfg     Config
	handler Handler
	dialer  *websocket.Dialer
	log     *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	connected   atomic.Bool
	lastMessage atomic.Int64 // unix nanos
}

func NewClient(cfg Config, handler Handler, log *zap.Logger) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.HandshakeTO <= 0 {
		cfg.HandshakeTO = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTO},
		log:     log,
	}
}

// Connect streams until ctx is done, Close is called, or more than
// MaxReconnects consecutive connection attempts fail.
func (c *Client) Connect(ctx context.Context, sink chan<- string) error {
	b := &backoff.Backoff{
		Min:    c.cfg.MinBackoff,
		Max:    c.cfg.MaxBackoff,
		Factor: 2,
		Jitter: true,
	}
	failures := 0

	for {
		if c.isClosed() || ctx.Err() != nil {
			return nil
		}

		c.log.Info("start connection", zap.String("url", c.cfg.URL), zap.Int("attempt", failures+1))
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err == nil {
			var delivered bool
			delivered, err = c.serve(ctx, conn, sink)
			if c.isClosed() || ctx.Err() != nil {
				return nil
			}
			if delivered {
				failures = 0
				b.Reset()
			}
		}

		c.handler.OnError(err)
		failures++
		if failures > c.cfg.MaxReconnects {
			return errors.Wrapf(ErrFeedLost, "%d consecutive failures, last: %v", failures, err)
		}

		wait := b.Duration()
		c.log.Warn("reconnecting", zap.Duration("in", wait), zap.Error(err))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// serve reads one connection until it fails. delivered reports whether at
// least one price reached the sink.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, sink chan<- string) (delivered bool, err error) {
	if !c.setConn(conn) {
		_ = conn.Close()
		return false, nil
	}
	c.connected.Store(true)
	c.handler.OnConnect(c.cfg.URL)

	stop := make(chan struct{})
	defer func() {
		close(stop)
		c.connected.Store(false)
		c.setConn(nil)
		_ = conn.Close()
		c.handler.OnDisconnect(c.cfg.URL)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return delivered, errors.Wrap(err, "read message")
		}
		c.lastMessage.Store(time.Now().UnixNano())

		price, ok := c.handler.OnMessage(msg)
		if !ok {
			continue
		}
		select {
		case sink <- price:
			delivered = true
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed && conn != nil {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close terminates the connection and stops reconnecting. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.log.Info("closed by user", zap.String("url", c.cfg.URL))
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) LastMessage() time.Time {
	n := c.lastMessage.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
