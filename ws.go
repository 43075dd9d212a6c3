package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/noisesense/internal/server"
	"github.com/oszuidwest/noisesense/internal/types"
)

// statusInterval is how often connected browsers get a status refresh.
const statusInterval = 3 * time.Second

// wsClient is one browser connection. Only the write pump touches conn for
// writing; everything else goes through out.
type wsClient struct {
	srv     *Server
	conn    server.WebSocketConn
	out     chan any
	closed  chan struct{}
	refresh chan struct{}
	results chan types.WSResultResponse
}

// handleWebSocket upgrades the request and runs the client until it disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		srv:     s,
		conn:    conn,
		out:     make(chan any, 16),
		closed:  make(chan struct{}),
		refresh: make(chan struct{}, 1),
		results: s.hub.Subscribe(),
	}
	defer s.hub.Unsubscribe(c.results)

	go c.writePump()
	go c.readPump()
	c.forward()
}

// writePump drains out onto the connection. out is never closed because
// async command handlers may still deliver into it after a disconnect.
func (c *wsClient) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.out:
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// readPump dispatches incoming commands until the connection fails.
func (c *wsClient) readPump() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(c.closed)
	}()

	for {
		var cmd server.WSCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		c.srv.commands.Handle(cmd, c.out, c.requestStatus)
	}
}

// requestStatus asks forward for a status push. Repeated requests coalesce.
func (c *wsClient) requestStatus() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// push queues msg unless the client has gone away.
func (c *wsClient) push(msg any) bool {
	select {
	case c.out <- msg:
		return true
	case <-c.closed:
		return false
	}
}

// forward sends the initial status and then results, requested status
// pushes and periodic refreshes.
func (c *wsClient) forward() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	ok := c.push(c.srv.statusSnapshot())
	for ok {
		select {
		case <-c.closed:
			return
		case res, open := <-c.results:
			if !open {
				return
			}
			ok = c.push(res)
		case <-c.refresh:
			ok = c.push(c.srv.statusSnapshot())
		case <-ticker.C:
			ok = c.push(c.srv.statusSnapshot())
		}
	}
}
