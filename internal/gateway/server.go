// Package gateway serves the booking assistant to front-ends over a
// WebSocket RPC protocol, plus a read-only REST API for bookings.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/clinicbot/internal/assistant"
	"github.com/soyeahso/clinicbot/internal/channel"
	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/hooks"
	"github.com/soyeahso/clinicbot/internal/logging"
	"github.com/soyeahso/clinicbot/internal/store"
	"github.com/soyeahso/clinicbot/internal/version"
)

// maxPayload bounds an incoming frame. Uploads travel base64 encoded
// inside it.
const maxPayload = 8 << 20

const handshakeTimeout = 10 * time.Second

// Server is the gateway.
type Server struct {
	cfg     config.Config
	auth    ResolvedAuth
	log     *logging.Logger
	version string

	hub      *hub
	methods  map[string]Method
	eventSeq atomic.Int64

	mu        sync.RWMutex
	configRaw map[string]any

	assistant *assistant.Assistant
	bookings  store.BookingRepository
	channels  *channel.Registry
	hooks     *hooks.Manager

	upgrader  websocket.Upgrader
	failures  *failureLimiter
	startedAt time.Time
}

type ServerOption func(*Server)

// WithConfigRaw exposes the decoded config document to config.get/set.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) { s.configRaw = raw }
}

func WithAssistant(a *assistant.Assistant) ServerOption {
	return func(s *Server) { s.assistant = a }
}

// WithBookings backs the bookings.* methods and the REST API.
func WithBookings(b store.BookingRepository) ServerOption {
	return func(s *Server) { s.bookings = b }
}

func WithChannels(r *channel.Registry) ServerOption {
	return func(s *Server) { s.channels = r }
}

// WithHooks relays confirmed and cancelled bookings to every connection
// and announces gateway start and stop.
func WithHooks(m *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = m }
}

func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		auth:      ResolveAuth(cfg.Gateway.Auth),
		log:       log.Sub("gateway"),
		version:   version.Version,
		methods:   make(map[string]Method),
		configRaw: make(map[string]any),
		failures:  newFailureLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.ControlUI.AllowedOrigins),
		},
	}
	s.hub = newHub(s.log.Sub("clients"))
	for _, opt := range opts {
		opt(s)
	}

	s.registerMethods()
	if s.hooks != nil {
		s.hooks.On(hooks.EventBookingConfirmed, "gateway", s.relayBooking(eventBookingConfirmed))
		s.hooks.On(hooks.EventBookingCancelled, "gateway", s.relayBooking(eventBookingCancelled))
	}
	return s
}

// listenAddr maps the bind mode to a host:port.
func listenAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

func (s *Server) listen() (net.Listener, error) {
	addr := listenAddr(s.cfg.Gateway)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	t := s.cfg.Gateway.TLS
	if !t.Enabled {
		if s.cfg.Gateway.Bind != "loopback" && s.auth.Mode != "none" {
			s.log.Warn().Msg("TLS disabled on a non-loopback bind; credentials travel in cleartext")
		}
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}), nil
}

// Start serves until ctx is cancelled, then closes every connection and
// shuts the HTTP server down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.startedAt = time.Now()
	addr := ln.Addr().String()
	s.log.Info().
		Str("addr", addr).
		Str("auth", s.auth.Mode).
		Bool("tls", s.cfg.Gateway.TLS.Enabled).
		Int("methods", len(s.methods)).
		Msg("gateway listening")
	s.emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": addr})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info().Msg("gateway shutting down")
		s.emit(context.Background(), hooks.EventGatewayStop, nil)
		s.hub.closeAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("http shutdown")
		}
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.Payload{Event: event, Data: data})
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.failures.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed handshakes")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxPayload)

	c, err := s.handshake(ws)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.failures.recordFailure(r.RemoteAddr)
		ws.Close()
		return
	}

	s.hub.add(c)
	defer func() {
		s.hub.remove(c)
		c.Close()
	}()
	go c.writePump()
	s.serve(r.Context(), c)
}

// handshake sends connect.challenge, expects a connect request and answers
// it with hello-ok. It writes to the socket directly; the pump is not
// running yet.
func (s *Server) handshake(ws *websocket.Conn) (*Conn, error) {
	ws.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := eventFrame(eventChallenge, map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := ws.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var req Frame
	if err := ws.ReadJSON(&req); err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	reject := func(e *RPCError) error {
		ws.WriteJSON(errorFrame(req.ID, e))
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, e.Message),
			time.Now().Add(time.Second))
		return e
	}

	if req.Type != FrameTypeRequest || req.Method != "connect" {
		return nil, reject(rpcErr("protocol_error", "expected connect request"))
	}
	params, err := decode[ConnectParams](req.Params)
	if err != nil {
		return nil, reject(rpcErr("invalid_params", "invalid connect params"))
	}
	if params.MaxProtocol != 0 && (params.MinProtocol > ProtocolVersion || params.MaxProtocol < ProtocolVersion) {
		return nil, reject(rpcErr("protocol_mismatch", "server speaks protocol %d", ProtocolVersion))
	}
	auth := Authorize(s.auth, params.Auth)
	if !auth.OK {
		return nil, reject(rpcErr("unauthorized", "%s", auth.Reason))
	}

	c := newConn(ws, params.Client, auth, s.log.Sub("ws"))
	c.limitTurns(s.cfg.Gateway.RateLimit.PerMinute, s.cfg.Gateway.RateLimit.Burst)

	hello, err := resultFrame(req.ID, HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: s.version, Commit: version.Current().Commit, ConnID: c.ID},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{eventChallenge, eventBookingConfirmed, eventBookingCancelled},
		},
		Policy: ServerPolicy{
			MaxPayload:     maxPayload,
			ChatPerMinute:  s.cfg.Gateway.RateLimit.PerMinute,
			ChatBurst:      s.cfg.Gateway.RateLimit.Burst,
			TickIntervalMs: int(pingInterval.Milliseconds()),
		},
	})
	if err != nil {
		return nil, err
	}
	if err := ws.WriteJSON(hello); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	c.keepAlive()

	s.log.Info().
		Str("connId", c.ID).
		Str("client", params.Client.ID).
		Str("auth", auth.Method).
		Msg("client authenticated")
	return c, nil
}

// serve answers requests in arrival order until the client goes away.
func (s *Server) serve(ctx context.Context, c *Conn) {
	for {
		f, err := c.readFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		if f.Type != FrameTypeRequest {
			continue
		}
		if err := c.send(s.call(ctx, c, f)); err != nil {
			return
		}
	}
}

// relayBooking turns a booking hook into a pushed event.
func (s *Server) relayBooking(event string) hooks.Handler {
	return func(_ context.Context, p hooks.Payload) error {
		ev := BookingEvent{ConversationID: p.ConversationID, BookingID: p.BookingID}
		if p.Booking != nil {
			ev.BookingType, ev.Date, ev.Time = p.Booking.BookingType, p.Booking.Date, p.Booking.Time
		}
		f, err := eventFrame(event, ev, s.eventSeq.Add(1))
		if err != nil {
			return err
		}
		s.hub.broadcast(f)
		return nil
	}
}
