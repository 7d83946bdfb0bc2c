// Package chat routes messages to connected clients: broadcast fan-out,
// system announcements, and private messages.
package chat

import (
	"fmt"
	"log"
	"time"
)

// Router delivers messages by consulting the registry on every call.
type Router struct {
	registry *Registry
	sink     LogSink
}

// NewRouter creates a router over the given registry. A nil sink
// disables chat logging.
func NewRouter(registry *Registry, sink LogSink) *Router {
	if sink == nil {
		sink = NopLog{}
	}
	return &Router{registry: registry, sink: sink}
}

// Broadcast delivers msg verbatim to every active client except the
// one holding exclude (pass NoExclude to exclude none). A failed
// delivery to one recipient is logged and swallowed; the dead peer is
// reaped by its own session on its next read, and the remaining
// recipients still get the message.
func (rt *Router) Broadcast(msg string, exclude int64) {
	for _, tr := range rt.registry.transports(exclude) {
		if err := tr.WriteString(msg); err != nil {
			log.Printf("broadcast delivery to %s failed: %v", tr.RemoteAddr(), err)
		}
	}
}

// Announce formats a system notice, broadcasts it to everyone, and
// appends it to the chat log. Used for join, leave, and rename events.
func (rt *Router) Announce(format string, args ...any) {
	line := Message{Kind: KindSystem, Text: fmt.Sprintf(format, args...)}.Wire()
	rt.Broadcast(line, NoExclude)
	rt.sink.Append(line)
}

// Chat formats a public chat line from the sender, broadcasts it to
// everyone else, and appends it to the chat log. The formatted line is
// returned for the caller's benefit.
func (rt *Router) Chat(senderHandle int64, senderName, text string) string {
	line := Message{
		Kind:      KindChat,
		Sender:    senderName,
		Text:      text,
		Timestamp: time.Now(),
	}.Wire()
	rt.Broadcast(line, senderHandle)
	rt.sink.Append(line)
	return line
}

// DirectMessage sends a private line to the named target and echoes the
// same line to the sender's transport, so the sender sees their own
// sent message. Returns ErrUserNotFound if the target is not online.
// Private messages are never written to the chat log.
func (rt *Router) DirectMessage(sender Transport, senderName, targetName, text string) error {
	target, ok := rt.registry.transportByName(targetName)
	if !ok {
		return ErrUserNotFound
	}
	line := Message{Kind: KindPrivate, Sender: senderName, Target: targetName, Text: text}.Wire()
	if err := target.WriteString(line); err != nil {
		log.Printf("private delivery to %s failed: %v", target.RemoteAddr(), err)
	}
	return sender.WriteString(line)
}
