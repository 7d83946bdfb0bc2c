// Package chat records broadcast traffic in an append-only timestamped
// log, a diagnostic side-channel independent of the delivery path.
package chat

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogSink is the line-append interface the core requires. The physical
// sink behind it is a collaborator, not part of the core.
type LogSink interface {
	Append(line string)
}

// NopLog discards every line.
type NopLog struct{}

// Append implements LogSink.
func (NopLog) Append(string) {}

// FileLog appends timestamped lines to a local file. It carries its own
// mutex, distinct from the registry lock, so log I/O latency never
// couples with registry contention.
type FileLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFileLog opens path for appending, creating it if needed.
func OpenFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLog{file: f}, nil
}

// Append writes one record of the form "[HH:MM:SS] <line>" with any
// trailing line-ending characters stripped first. Write failures are
// logged and swallowed; the log never blocks or aborts delivery.
func (l *FileLog) Append(line string) {
	line = strings.TrimRight(line, "\r\n")
	stamp := time.Now().Format("15:04:05")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	if _, err := fmt.Fprintf(l.file, "[%s] %s\n", stamp, line); err != nil {
		log.Printf("chat log append failed: %v", err)
	}
}

// Close closes the underlying file. Appends after Close are dropped.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
