// Package chat exposes the WebSocket gateway: browser clients are
// upgraded and adapted onto the same line protocol and session machine
// the TCP clients use.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Gateway bridges WebSocket clients into the chat server. One WebSocket
// message carries one protocol line in each direction.
type Gateway struct {
	server     *Server
	httpServer *http.Server
}

// NewGateway creates a gateway feeding connections into the server's
// admission path, so WebSocket clients share the registry capacity and
// negotiation flow with TCP clients.
func NewGateway(server *Server) *Gateway {
	return &Gateway{server: server}
}

// Routes configures and returns the gateway's ServeMux with the health
// check and WebSocket endpoints.
func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.healthHandler)
	mux.HandleFunc("/ws", g.wsHandler)
	return mux
}

func (g *Gateway) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chat server is running")
}

// wsHandler upgrades the request and hands the adapted transport to the
// server's admission path.
func (g *Gateway) wsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	g.server.admit(newWSTransport(conn, int64(currentConfig().MaxLineSize)), r.RemoteAddr)
}

// Start serves the gateway on addr in its own goroutine.
func (g *Gateway) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	g.httpServer = &http.Server{
		Addr:        addr,
		Handler:     g.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("gateway serve error: %v", err)
		}
	}()

	log.Printf("websocket gateway listening on %s", ln.Addr())
	return nil
}

// Shutdown stops the gateway's HTTP listener. Established WebSocket
// sessions are torn down by Server.Shutdown, which closes their
// transports.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	if g.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.httpServer.Shutdown(ctx)
}

// wsTransport adapts a WebSocket connection to the Transport interface.
// Writes are serialized because broadcast lines arrive from other
// sessions' goroutines and the underlying connection permits only one
// concurrent writer.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn, maxLine int64) Transport {
	if maxLine > 0 {
		conn.SetReadLimit(maxLine)
	}
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadLine() (string, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (t *wsTransport) WriteString(s string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
		return ErrConnClosed
	}
	return nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
