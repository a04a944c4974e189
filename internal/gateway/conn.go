package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/soyeahso/clinicbot/internal/logging"
)

// ErrConnClosed is returned when writing to a connection that has gone.
var ErrConnClosed = errors.New("gateway: connection closed")

const (
	pingInterval = 30 * time.Second
	pongWait     = pingInterval + 10*time.Second
	writeWait    = 10 * time.Second
	sendQueue    = 32
)

// Conn is an authenticated WebSocket client. Frames are written by a
// single pump goroutine, which also keeps the connection alive with pings.
type Conn struct {
	ID          string
	Client      ClientInfo
	Auth        AuthResult
	ConnectedAt time.Time

	ws        *websocket.Conn
	out       chan Frame
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
	log       *logging.Logger
}

func newConn(ws *websocket.Conn, info ClientInfo, auth AuthResult, log *logging.Logger) *Conn {
	id := uuid.New().String()
	return &Conn{
		ID:          id,
		Client:      info,
		Auth:        auth,
		ConnectedAt: time.Now(),
		ws:          ws,
		out:         make(chan Frame, sendQueue),
		done:        make(chan struct{}),
		log:         log.With("connId", id),
	}
}

// limitTurns caps chat turns and uploads at perMinute with the given
// burst. perMinute <= 0 removes the cap.
func (c *Conn) limitTurns(perMinute, burst int) {
	if perMinute <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), max(burst, 1))
}

func (c *Conn) allowTurn() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// conversation resolves the conversation a request is about.
func (c *Conn) conversation(requested string) string {
	if requested != "" {
		return requested
	}
	return c.ID
}

// send queues f, waiting for room. It fails once the connection closes.
func (c *Conn) send(f Frame) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	case <-c.done:
		return ErrConnClosed
	}
}

// offer queues f only if there is room; slow clients miss events rather
// than stall the broadcaster.
func (c *Conn) offer(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

// writePump drains the send queue and pings until the connection closes.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case f := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readFrame() (Frame, error) {
	var f Frame
	err := c.ws.ReadJSON(&f)
	return f, err
}

// keepAlive arms the read deadline. Each pong pushes it out by pongWait.
func (c *Conn) keepAlive() {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Close stops the pump and closes the socket. It is safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(time.Second))
			err = c.ws.Close()
		}
	})
	return err
}

// hub tracks live connections for broadcasts and shutdown.
type hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	log   *logging.Logger
}

func newHub(log *logging.Logger) *hub {
	return &hub{conns: make(map[string]*Conn), log: log}
}

func (h *hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
	h.log.Info().Str("connId", c.ID).Str("client", c.Client.ID).Msg("client connected")
}

func (h *hub) remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	h.mu.Unlock()
	h.log.Info().Str("connId", c.ID).Dur("connected", time.Since(c.ConnectedAt)).Msg("client disconnected")
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// broadcast offers f to every connection and returns how many took it.
func (h *hub) broadcast(f Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.conns {
		if c.offer(f) {
			n++
		} else {
			h.log.Warn().Str("connId", c.ID).Str("event", f.Event).Msg("event dropped, client not keeping up")
		}
	}
	return n
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.Close()
		delete(h.conns, id)
	}
}
