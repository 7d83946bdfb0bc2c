// Package chat drives each connection through its protocol lifecycle:
// name negotiation, the command loop, and teardown.
package chat

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// Protocol lines sent to a single client.
const (
	namePrompt     = "Enter username: "
	helpLine       = "Type /who, /nick <newname>, /msg <user> <text>, or /quit\n"
	usageNickLine  = "Usage: /nick <newname>\n"
	usageMsgLine   = "Usage: /msg <user> <text>\n"
	nameInUseLine  = "Name in use. Pick another.\n"
	noUserLine     = "User not found.\n"
	unknownCmdLine = "Unknown command.\n"
	serverFullLine = "Server is full. Try again later.\n"
)

// Session handles one client connection from negotiation to teardown.
// Run executes on its own goroutine; the session blocks only on its
// own transport read and on the brief registry and log locks.
type Session struct {
	handle    int64
	sid       string
	transport Transport
	registry  *Registry
	router    *Router
	guard     *floodGuard
	name      string
	done      chan struct{}
}

// NewSession binds a session to an already-registered transport. The
// handle must match the registry slot claimed for this connection.
func NewSession(handle int64, tr Transport, registry *Registry, router *Router) *Session {
	cfg := currentConfig()
	var guard *floodGuard
	if cfg.RateLimit.Burst > 0 {
		guard = newFloodGuard(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)
	}
	return &Session{
		handle:    handle,
		sid:       uuid.New().String(),
		transport: tr,
		registry:  registry,
		router:    router,
		guard:     guard,
		done:      make(chan struct{}),
	}
}

// Done is closed once the session has fully terminated and its
// registry slot is free again.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Name returns the session's display name. It is stable once Done is
// closed; reading it while the session runs races with renames.
func (s *Session) Name() string {
	return s.name
}

// Run executes the session to completion: negotiate a unique name,
// process commands and chat lines, then deregister exactly once. It
// must be called once, on the goroutine that owns the connection.
func (s *Session) Run() {
	defer close(s.done)

	if !s.negotiate() {
		// The peer vanished before a name was committed; no join was
		// announced, so no leave is announced either.
		s.registry.Remove(s.handle)
		return
	}

	s.commandLoop()

	// The leave notice carries the name current at the time of
	// leaving, reflecting any prior rename.
	s.router.Announce("%s left the chat.", s.name)
	s.registry.Remove(s.handle)
	log.Printf("session %s (%s) ended", s.sid, s.name)
}

// negotiate prompts for a name, resolves it to a unique one, and
// commits it. It reports whether the session reached the active state.
func (s *Session) negotiate() bool {
	if err := s.transport.WriteString(namePrompt); err != nil {
		return false
	}
	line, err := s.transport.ReadLine()
	if err != nil {
		return false
	}

	base := line
	if base == "" {
		// Deterministic fallback derived from the connection handle,
		// reproducible for a given handle value.
		base = fmt.Sprintf("user%d", s.handle%10000)
	}
	s.name = s.registry.ClaimName(s.handle, base)

	s.router.Announce("%s joined the chat.", s.name)
	log.Printf("session %s registered as %q from %s", s.sid, s.name, s.transport.RemoteAddr())

	// A failed help write is detected by the next read.
	if err := s.transport.WriteString(helpLine); err != nil {
		log.Printf("session %s: help write failed: %v", s.sid, err)
	}
	return true
}

// commandLoop reads one line at a time until the peer quits, the
// connection drops, or a write fails. The blocking read is the only
// suspension point.
func (s *Session) commandLoop() {
	for {
		line, err := s.transport.ReadLine()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := s.dispatch(line)
			if quit || err != nil {
				return
			}
			continue
		}

		if s.guard != nil && !s.guard.allow() {
			log.Printf("session %s (%s): chat line discarded by flood control", s.sid, s.name)
			continue
		}
		s.router.Chat(s.handle, s.name, line)
	}
}

// dispatch interprets one slash command. It reports whether the session
// should terminate and any write failure on the reply path.
func (s *Session) dispatch(line string) (quit bool, err error) {
	switch {
	case strings.HasPrefix(line, "/quit"):
		return true, nil
	case strings.HasPrefix(line, "/who"):
		return false, s.sendWho()
	case strings.HasPrefix(line, "/nick "):
		return false, s.handleNick(line[len("/nick "):])
	case strings.HasPrefix(line, "/msg "):
		return false, s.handleMsg(line[len("/msg "):])
	default:
		return false, s.transport.WriteString(unknownCmdLine)
	}
}

// sendWho replies with a single line listing all active names, built
// from a registry snapshot.
func (s *Session) sendWho() error {
	var b strings.Builder
	b.WriteString("Online:")
	for _, name := range s.registry.SnapshotNames() {
		b.WriteString(" ")
		b.WriteString(name)
		b.WriteString(",")
	}
	b.WriteString("\n")
	return s.transport.WriteString(b.String())
}

func (s *Session) handleNick(newName string) error {
	if newName == "" {
		return s.transport.WriteString(usageNickLine)
	}
	if err := s.registry.Rename(s.handle, newName); err != nil {
		return s.transport.WriteString(nameInUseLine)
	}
	old := s.name
	s.name = truncateName(newName)
	s.router.Announce("%s is now known as %s.", old, s.name)
	return nil
}

func (s *Session) handleMsg(rest string) error {
	target, text, ok := splitTarget(rest)
	if !ok {
		return s.transport.WriteString(usageMsgLine)
	}
	err := s.router.DirectMessage(s.transport, s.name, target, text)
	if errors.Is(err, ErrUserNotFound) {
		return s.transport.WriteString(noUserLine)
	}
	return err
}

// splitTarget parses "<user> <text>": the first whitespace-delimited
// token is the target, the remainder, internal spaces included, is the
// message text.
func splitTarget(rest string) (target, text string, ok bool) {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return "", "", false
	}
	i := strings.IndexAny(rest, " \t")
	if i < 0 {
		return truncateName(rest), "", true
	}
	return truncateName(rest[:i]), strings.TrimLeft(rest[i:], " \t"), true
}
