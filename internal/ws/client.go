package ws

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/realtime-chat/internal/metrics"
)

// Connection lifecycle states.
const (
	stateUnbound int32 = iota
	stateBound
	stateClosed // terminal
)

const (
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxMsgSize    = 64 * 1024
)

// Client is one live websocket connection: an opaque sendable handle bound
// to at most one user for its lifetime.
type Client struct {
	id      string
	userID  string // set once at bind time
	conn    *websocket.Conn
	send    chan []byte
	router  *Router
	limiter *rate.Limiter
	state   int32
}

func NewClient(conn *websocket.Conn, router *Router, rps int) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, 256),
		router:  router,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// NewWebsocketHandler returns the fiber route handler for /ws.
func NewWebsocketHandler(router *Router, rps int) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		c := NewClient(conn, router, rps)
		metrics.Connections.Inc()
		defer metrics.Connections.Dec()
		go c.writePump()
		c.readPump()
	})
}

// registry.Handle implementation.

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string { return c.userID }

// Deliver queues an event for the connection. Slow consumers drop; the
// channel is fire-and-forget.
func (c *Client) Deliver(event string, data any) {
	if atomic.LoadInt32(&c.state) == stateClosed {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal outbound event")
		return
	}
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	select {
	case c.send <- b:
	default:
		log.Warn().Str("event", event).Str("handle", c.id).Msg("send buffer full, dropping event")
	}
}

// bind transitions Unbound -> Bound. The user identity is immutable after
// the first successful bind; later userConnected events for the same user
// are idempotent, a different user is refused.
func (c *Client) bind(userID string) bool {
	if !atomic.CompareAndSwapInt32(&c.state, stateUnbound, stateBound) {
		return atomic.LoadInt32(&c.state) == stateBound && c.userID == userID
	}
	c.userID = userID
	return true
}

func (c *Client) closed() bool {
	return atomic.LoadInt32(&c.state) == stateClosed
}

func (c *Client) readPump() {
	defer func() {
		atomic.StoreInt32(&c.state, stateClosed)
		c.router.Disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("handle", c.id).Msg("malformed envelope, dropping")
			continue
		}
		// events from one connection run in arrival order; persistence is
		// bounded so a stuck call cannot pin the reader forever
		c.router.Dispatch(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
