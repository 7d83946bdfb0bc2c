// Package chat owns the listening socket: the accept loop spawns one
// session per connection and never blocks on a session's lifetime.
package chat

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Server accepts line-protocol connections and runs a session for each.
// The registry and router are injected so tests can construct the whole
// stack without ambient state.
type Server struct {
	registry   *Registry
	router     *Router
	listener   net.Listener
	nextHandle atomic.Int64
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewServer creates a server over the given registry and router.
func NewServer(registry *Registry, router *Router) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		registry: registry,
		router:   router,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the listen address and launches the accept loop in its
// own goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	log.Printf("chat server listening on %s", ln.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Addr returns the bound listen address, useful when starting on ":0".
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("accept failed: %v", err)
			continue
		}
		s.admit(NewConnTransport(conn, currentConfig().MaxLineSize), conn.RemoteAddr().String())
	}
}

// admit registers a transport and starts its session, or rejects the
// connection when the registry is full. The TCP accept loop and the
// WebSocket gateway both funnel through here, so every client kind
// shares one capacity policy.
func (s *Server) admit(tr Transport, addr string) {
	handle := s.nextHandle.Add(1)
	if _, err := s.registry.Add(handle, tr, addr); err != nil {
		// Registration failed, so the registry does not own the
		// transport; close it here.
		if werr := tr.WriteString(serverFullLine); werr != nil {
			log.Printf("rejection notice to %s failed: %v", addr, werr)
		}
		_ = tr.Close()
		log.Printf("rejected connection from %s: %v", addr, err)
		return
	}
	log.Printf("client connected from %s (%d/%d online)", addr, s.registry.Count(), s.registry.Capacity())

	sess := NewSession(handle, tr, s.registry, s.router)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.Run()
	}()
}

// Shutdown closes the listener and every client transport, then waits
// for the accept loop and all session goroutines to finish, or until
// the timeout is reached.
func (s *Server) Shutdown(timeout time.Duration) error {
	log.Println("initiating server shutdown...")
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("server shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("server shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
