// Package chat defines the structured message forms that serialize to
// the exact wire formats of the line protocol.
package chat

import (
	"fmt"
	"time"
)

// Kind identifies the category of a protocol message.
type Kind int

const (
	// KindChat is a public chat line attributed to a sender.
	KindChat Kind = iota
	// KindSystem is a presence notice broadcast to everyone.
	KindSystem
	// KindPrivate is a direct message between two clients.
	KindPrivate
)

// Message is the structured form of an outgoing protocol line. Building
// messages as values keeps the formatting logic testable independent of
// any I/O.
type Message struct {
	Kind      Kind
	Sender    string
	Target    string
	Text      string
	Timestamp time.Time
}

// Wire serializes the message to its line-protocol form, including the
// trailing newline. Timestamps render as local wall-clock time with
// second resolution.
func (m Message) Wire() string {
	switch m.Kind {
	case KindChat:
		return fmt.Sprintf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Sender, m.Text)
	case KindPrivate:
		return fmt.Sprintf("[pm %s->%s] %s\n", m.Sender, m.Target, m.Text)
	default:
		return fmt.Sprintf("[system] %s\n", m.Text)
	}
}
