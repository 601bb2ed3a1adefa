package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	wsReconnectMin = time.Second
	wsReconnectMax = 30 * time.Second
)

// WSClient maintains a websocket subscription to the user activity
// feed. The set of watched wallets can change at any time; on
// reconnect the current set is re-subscribed.
type WSClient struct {
	url    string
	logger *slog.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	users map[string]struct{}

	trades chan WSTradeMessage
}

func NewWSClient(url string, logger *slog.Logger) *WSClient {
	return &WSClient{
		url:    url,
		logger: logger.With("component", "polymarket_ws"),
		users:  make(map[string]struct{}),
		trades: make(chan WSTradeMessage, 256),
	}
}

// Trades returns the stream of fill events.
func (c *WSClient) Trades() <-chan WSTradeMessage { return c.trades }

// SetUsers replaces the watched wallet set and pushes the delta to the
// live connection, if any.
func (c *WSClient) SetUsers(wallets []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		next[w] = struct{}{}
	}

	var added, removed []string
	for w := range next {
		if _, ok := c.users[w]; !ok {
			added = append(added, w)
		}
	}
	for w := range c.users {
		if _, ok := next[w]; !ok {
			removed = append(removed, w)
		}
	}
	c.users = next

	if c.conn == nil {
		return nil
	}
	if len(removed) > 0 {
		if err := c.writeLocked(WSCommand{Type: "unsubscribe", Users: removed}); err != nil {
			return err
		}
	}
	if len(added) > 0 {
		if err := c.writeLocked(WSCommand{Type: "subscribe", Users: added}); err != nil {
			return err
		}
	}
	return nil
}

func (c *WSClient) writeLocked(cmd WSCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("polymarket: marshal ws command: %w", err)
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("polymarket: ws write: %w", err)
	}
	return nil
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff. The trades channel is closed on return.
func (c *WSClient) Run(ctx context.Context) error {
	defer close(c.trades)

	backoff := wsReconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("websocket disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsReconnectMax {
			backoff = wsReconnectMax
		}
	}
}

func (c *WSClient) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("polymarket: dial %s: %w", c.url, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	users := make([]string, 0, len(c.users))
	for w := range c.users {
		users = append(users, w)
	}
	if len(users) > 0 {
		if err := c.writeLocked(WSCommand{Type: "subscribe", Users: users}); err != nil {
			c.conn = nil
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()
	c.logger.Info("websocket connected", "subscriptions", len(users))

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.pingLoop(pingCtx, conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("polymarket: ws read: %w", err)
		}
		var trade WSTradeMessage
		if err := json.Unmarshal(msg, &trade); err != nil {
			c.logger.Debug("skipping unparseable ws frame", "error", err)
			continue
		}
		if trade.Type != "TRADE" && trade.Type != "trade" {
			continue
		}
		select {
		case c.trades <- trade:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
