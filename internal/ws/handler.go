// Package ws is the WebSocket transport adapter: it upgrades HTTP
// requests, applies the Origin-suffix whitelist and per-IP rate
// limit, and feeds each connection's frames to the router. Apart from
// internal/conn, which wraps the socket, it is the only package that
// knows gorilla/websocket exists — the router only ever sees the
// conn.Conn interface.
package ws

import (
	"net/http"
	"time"

	"github.com/collapsinghierarchy/relay/internal/config"
	"github.com/collapsinghierarchy/relay/internal/conn"
	"github.com/collapsinghierarchy/relay/internal/logs"
	"github.com/collapsinghierarchy/relay/internal/metrics"
	"github.com/collapsinghierarchy/relay/internal/middleware"
	"github.com/collapsinghierarchy/relay/internal/router"
	"github.com/gorilla/websocket"
)

// Handler upgrades /ws requests and runs each connection's read loop.
type Handler struct {
	cfg     config.Config
	log     logs.Logger
	rt      *router.Router
	m       *metrics.Metrics
	limiter *middleware.Limiter
	up      websocket.Upgrader
}

// NewHandler builds the WebSocket upgrade handler. limiter may be nil
// to disable per-IP rate limiting.
func NewHandler(cfg config.Config, log logs.Logger, rt *router.Router, m *metrics.Metrics, limiter *middleware.Limiter) *Handler {
	return &Handler{
		cfg:     cfg,
		log:     log.Named("ws"),
		rt:      rt,
		m:       m,
		limiter: limiter,
		up: websocket.Upgrader{
			ReadBufferSize:  cfg.WSReadBuf,
			WriteBufferSize: cfg.WSWriteBuf,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.AllowOrigin(r.Header.Get("Origin"))
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Connection", "Upgrade")
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, "upgrade required", http.StatusUpgradeRequired)
		return
	}
	if h.limiter != nil && !h.limiter.AllowWS(r) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	c, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", logs.F("err", err))
		return
	}
	if h.m != nil {
		h.m.IncConnections()
	}
	h.serve(c)
}

func (h *Handler) serve(c *websocket.Conn) {
	handle := conn.New(c)
	remote := c.RemoteAddr().String()
	h.log.Info("connected", logs.F("remote", remote))

	defer func() {
		h.rt.HandleClose(handle)
		_ = handle.Close()
		h.log.Info("disconnected", logs.F("remote", remote))
	}()

	c.SetReadLimit(h.cfg.WSMaxMsg)
	_ = c.SetReadDeadline(time.Now().Add(h.cfg.Handshake))
	c.SetPongHandler(func(string) error {
		_ = c.SetReadDeadline(time.Now().Add(2 * h.cfg.Heartbeat))
		return nil
	})

	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := handle.WriteControl(websocket.PingMessage, nil, time.Now().Add(2*time.Second)); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	_ = c.SetReadDeadline(time.Now().Add(2 * h.cfg.Heartbeat))

	for {
		mt, payload, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read error", logs.F("err", err))
			}
			return
		}
		switch mt {
		case websocket.TextMessage:
			h.rt.HandleText(handle, string(payload))
		case websocket.BinaryMessage:
			h.rt.HandleBinary(handle, payload)
		}
	}
}
