package bus

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient is a Bus backed by a websocket connection to the platform
// messagebus. Frames are JSON messages; the server broadcasts every frame to
// all connected clients, which is what makes Request work over the wire.
type WSClient struct {
	url string
	log *zap.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	subMu sync.RWMutex
	subs  map[string][]memorySub
	seq   atomic.Uint64

	closed atomic.Bool
	done   chan struct{}
}

// BuildURL assembles the messagebus websocket address.
func BuildURL(host string, port int, route string, ssl bool) string {
	scheme := "ws"
	if ssl {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, port), Path: route}
	return u.String()
}

// DialWS connects to the messagebus and starts the read pump.
func DialWS(wsURL string, log *zap.Logger) (*WSClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("messagebus dial %s: %w", wsURL, err)
	}
	c := &WSClient{
		url:  wsURL,
		log:  log,
		conn: conn,
		subs: make(map[string][]memorySub),
		done: make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Publish serializes msg and writes it to the wire.
func (c *WSClient) Publish(msg *Message) error {
	if c.closed.Load() {
		return errors.New("bus: publish on closed connection")
	}
	if msg == nil || msg.Type == "" {
		return errors.New("bus: publish requires a typed message")
	}
	raw, err := msg.Serialize()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", msg.Type, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("bus: connection lost")
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Subscribe registers h for topic. Delivery happens on a per-message
// goroutine so one slow handler cannot stall the read pump.
func (c *WSClient) Subscribe(topic string, h Handler) Subscription {
	id := c.seq.Add(1)
	c.subMu.Lock()
	c.subs[topic] = append(c.subs[topic], memorySub{id: id, handler: h})
	c.subMu.Unlock()
	return Subscription{topic: topic, id: id}
}

// Unsubscribe removes the handler identified by sub.
func (c *WSClient) Unsubscribe(sub Subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	subs := c.subs[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			c.subs[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Request performs a correlated round trip over the wire.
func (c *WSClient) Request(msg *Message, replyTopic string, timeout time.Duration) (*Message, error) {
	return awaitReply(c, msg, replyTopic, timeout)
}

// Close shuts the connection down and stops the read pump.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.writeMu.Lock()
	conn := c.conn
	c.conn = nil
	c.writeMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// readPump reads frames until Close, redialing with backoff on connection
// loss.
func (c *WSClient) readPump() {
	backoff := time.Second
	for {
		c.writeMu.Lock()
		conn := c.conn
		c.writeMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.Warn("messagebus read failed, reconnecting",
				zap.String("url", c.url), zap.Error(err))
			if !c.redial(&backoff) {
				return
			}
			continue
		}
		backoff = time.Second

		msg, err := Deserialize(raw)
		if err != nil {
			c.log.Warn("dropping malformed bus frame", zap.Error(err))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *WSClient) dispatch(msg *Message) {
	c.subMu.RLock()
	snapshot := make([]memorySub, len(c.subs[msg.Type]))
	copy(snapshot, c.subs[msg.Type])
	c.subMu.RUnlock()

	for _, sub := range snapshot {
		go sub.handler(msg)
	}
}

// redial replaces the connection, backing off up to 30s between attempts.
// Returns false once the client is closed.
func (c *WSClient) redial(backoff *time.Duration) bool {
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(*backoff):
		}
		if *backoff < 30*time.Second {
			*backoff *= 2
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.log.Warn("messagebus redial failed",
				zap.String("url", c.url), zap.Error(err))
			continue
		}
		c.writeMu.Lock()
		if c.closed.Load() {
			c.writeMu.Unlock()
			_ = conn.Close()
			return false
		}
		c.conn = conn
		c.writeMu.Unlock()
		c.log.Info("messagebus reconnected", zap.String("url", c.url))
		return true
	}
}
