package chat

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

// memTransport is an in-memory Transport for tests. Input lines are
// queued on a buffered channel; everything written is recorded.
type memTransport struct {
	mu        sync.Mutex
	wrote     []string
	closed    bool
	in        chan string
	closeOnce sync.Once
	addr      string
}

func newMemTransport(addr string) *memTransport {
	return &memTransport{
		in:   make(chan string, 64),
		addr: addr,
	}
}

func (t *memTransport) push(lines ...string) {
	for _, line := range lines {
		t.in <- line
	}
}

func (t *memTransport) ReadLine() (string, error) {
	line, ok := <-t.in
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (t *memTransport) WriteString(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrConnClosed
	}
	t.wrote = append(t.wrote, s)
	return nil
}

func (t *memTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.in) })
	return nil
}

func (t *memTransport) RemoteAddr() string {
	return t.addr
}

func (t *memTransport) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.wrote...)
}

func (t *memTransport) received(substr string) bool {
	for _, line := range t.lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// captureSink records appended log lines for assertions.
type captureSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *captureSink) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *captureSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *captureSink) contains(substr string) bool {
	for _, line := range s.snapshot() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// addMember registers a named transport directly, bypassing
// negotiation, so routing tests can set up a populated registry.
func addMember(t *testing.T, reg *Registry, handle int64, name string) *memTransport {
	t.Helper()
	tr := newMemTransport(name + ".test:1")
	if _, err := reg.Add(handle, tr, tr.RemoteAddr()); err != nil {
		t.Fatalf("Add(%q) failed: %v", name, err)
	}
	if got := reg.ClaimName(handle, name); got != name {
		t.Fatalf("ClaimName(%q) = %q", name, got)
	}
	return tr
}

// TestBroadcastExclusion verifies that a broadcast reaches every active
// client except the excluded sender.
func TestBroadcastExclusion(t *testing.T) {
	reg := NewRegistry(4)
	router := NewRouter(reg, nil)

	alice := addMember(t, reg, 1, "alice")
	bob := addMember(t, reg, 2, "bob")
	carol := addMember(t, reg, 3, "carol")

	router.Broadcast("hello\n", 1)

	if alice.received("hello") {
		t.Error("excluded sender received its own broadcast")
	}
	if !bob.received("hello") || !carol.received("hello") {
		t.Error("broadcast did not reach all other clients")
	}
}

// TestBroadcastNoExclude verifies the NoExclude sentinel delivers to
// every active client.
func TestBroadcastNoExclude(t *testing.T) {
	reg := NewRegistry(4)
	router := NewRouter(reg, nil)

	alice := addMember(t, reg, 1, "alice")
	bob := addMember(t, reg, 2, "bob")

	router.Broadcast("all\n", NoExclude)

	if !alice.received("all") || !bob.received("all") {
		t.Error("NoExclude broadcast skipped a client")
	}
}

// TestBroadcastSurvivesDeadRecipient verifies that one failed delivery
// does not abort the rest of the fan-out.
func TestBroadcastSurvivesDeadRecipient(t *testing.T) {
	reg := NewRegistry(4)
	router := NewRouter(reg, nil)

	dead := addMember(t, reg, 1, "dead")
	live := addMember(t, reg, 2, "live")

	dead.mu.Lock()
	dead.closed = true
	dead.mu.Unlock()

	router.Broadcast("still here\n", NoExclude)

	if !live.received("still here") {
		t.Error("delivery aborted after a dead recipient")
	}
}

// TestAnnounceLogsAndBroadcasts verifies system announcements reach all
// clients and the log sink with the same content.
func TestAnnounceLogsAndBroadcasts(t *testing.T) {
	reg := NewRegistry(4)
	sink := &captureSink{}
	router := NewRouter(reg, sink)

	alice := addMember(t, reg, 1, "alice")

	router.Announce("%s joined the chat.", "bob")

	want := "[system] bob joined the chat.\n"
	if !alice.received("bob joined the chat.") {
		t.Error("announcement not delivered")
	}
	lines := sink.snapshot()
	if len(lines) != 1 || lines[0] != want {
		t.Errorf("sink recorded %q, want %q", lines, want)
	}
}

// TestDirectMessageDelivery verifies a private message reaches exactly
// the target and the sender, and is never logged.
func TestDirectMessageDelivery(t *testing.T) {
	reg := NewRegistry(4)
	sink := &captureSink{}
	router := NewRouter(reg, sink)

	alice := addMember(t, reg, 1, "alice")
	bob := addMember(t, reg, 2, "bob")
	carol := addMember(t, reg, 3, "carol")

	if err := router.DirectMessage(alice, "alice", "bob", "psst"); err != nil {
		t.Fatalf("DirectMessage failed: %v", err)
	}

	want := "[pm alice->bob] psst\n"
	if !alice.received(want) {
		t.Error("sender did not receive its own private message")
	}
	if !bob.received(want) {
		t.Error("target did not receive the private message")
	}
	if carol.received("psst") {
		t.Error("third client received a private message")
	}
	if len(sink.snapshot()) != 0 {
		t.Error("private message was logged")
	}
}

// TestDirectMessageUserNotFound verifies the not-found error and that
// nothing is broadcast or logged for a missing target.
func TestDirectMessageUserNotFound(t *testing.T) {
	reg := NewRegistry(4)
	sink := &captureSink{}
	router := NewRouter(reg, sink)

	alice := addMember(t, reg, 1, "alice")

	err := router.DirectMessage(alice, "alice", "ghost", "anyone there")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("DirectMessage error = %v, want ErrUserNotFound", err)
	}
	if len(alice.lines()) != 0 {
		t.Error("sender received output for a failed private message")
	}
	if len(sink.snapshot()) != 0 {
		t.Error("failed private message was logged")
	}
}

// TestChatFormatsAndLogs verifies the public chat path formats the
// line, excludes the sender from delivery, and logs the exact line.
func TestChatFormatsAndLogs(t *testing.T) {
	reg := NewRegistry(4)
	sink := &captureSink{}
	router := NewRouter(reg, sink)

	alice := addMember(t, reg, 1, "alice")
	bob := addMember(t, reg, 2, "bob")

	line := router.Chat(1, "alice", "hi all")

	if !strings.HasSuffix(line, "] alice: hi all\n") {
		t.Errorf("chat line %q has unexpected shape", line)
	}
	if alice.received("hi all") {
		t.Error("sender received its own chat line through broadcast")
	}
	if !bob.received("hi all") {
		t.Error("other client missed the chat line")
	}
	lines := sink.snapshot()
	if len(lines) != 1 || lines[0] != line {
		t.Errorf("sink recorded %q, want %q", lines, line)
	}
}
