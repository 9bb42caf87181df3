// Package logging mirrors the standard logger to a Logstash TCP input.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// LogstashWriter ships one JSON document per log line over a single TCP
// connection. Writes never block on the network: while Logstash is
// unreachable lines are dropped until the retry window passes.
type LogstashWriter struct {
	addr          string
	service       string
	dialTimeout   time.Duration
	writeTimeout  time.Duration
	retryInterval time.Duration
	now           func() time.Time

	mu        sync.Mutex
	conn      net.Conn
	nextRetry time.Time
	closed    bool
}

type Option func(*LogstashWriter)

// WithDialTimeout overrides the TCP dial timeout. Defaults to 2 seconds.
func WithDialTimeout(d time.Duration) Option {
	return func(w *LogstashWriter) { w.dialTimeout = d }
}

// WithWriteTimeout overrides the TCP write timeout. Defaults to 1 second.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *LogstashWriter) { w.writeTimeout = d }
}

// WithRetryInterval overrides the cool-down after a failed connect or write.
// Defaults to 5 seconds.
func WithRetryInterval(d time.Duration) Option {
	return func(w *LogstashWriter) { w.retryInterval = d }
}

// WithService tags every document with the service name.
func WithService(name string) Option {
	return func(w *LogstashWriter) { w.service = name }
}

func NewLogstashWriter(addr string, opts ...Option) (*LogstashWriter, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("logstash: empty address")
	}
	w := &LogstashWriter{
		addr:          addr,
		dialTimeout:   2 * time.Second,
		writeTimeout:  time.Second,
		retryInterval: 5 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Setup points the standard logger at stderr plus Logstash when addr is set.
// The returned func closes the connection; it is a no-op without Logstash.
func Setup(addr, service string) (func(), error) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if strings.TrimSpace(addr) == "" {
		log.SetOutput(os.Stderr)
		return func() {}, nil
	}
	w, err := NewLogstashWriter(addr, WithService(service))
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, w))
	return func() {
		log.SetOutput(os.Stderr)
		_ = w.Close()
	}, nil
}

// Write implements io.Writer. It always reports the full length so the
// standard logger never sees a Logstash failure.
func (w *LogstashWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	doc := w.document(p)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	if err := w.ensureConnLocked(); err != nil {
		return len(p), nil
	}
	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(w.now().Add(w.writeTimeout))
	}
	if _, err := w.conn.Write(doc); err != nil {
		w.closeConnLocked()
		w.scheduleRetryLocked()
	}
	return len(p), nil
}

// document turns one log line into a newline-terminated JSON object. Lines
// that already are JSON objects (access logs) only gain the service field;
// anything else is wrapped as the message.
func (w *LogstashWriter) document(p []byte) []byte {
	line := bytes.TrimSpace(p)
	// the standard logger prefixes a date and time; JSON starts after it
	if i := bytes.IndexByte(line, '{'); i >= 0 && json.Valid(line[i:]) {
		var fields map[string]any
		if err := json.Unmarshal(line[i:], &fields); err == nil {
			if w.service != "" {
				if _, ok := fields["service"]; !ok {
					fields["service"] = w.service
				}
			}
			if out, err := json.Marshal(fields); err == nil {
				return append(out, '\n')
			}
		}
	}
	envelope := map[string]any{
		"@timestamp": w.now().UTC().Format(time.RFC3339Nano),
		"message":    string(line),
	}
	if w.service != "" {
		envelope["service"] = w.service
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		return append(append([]byte(nil), line...), '\n')
	}
	return append(out, '\n')
}

func (w *LogstashWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeConnLocked()
}

var errRetryCooldown = errors.New("logstash: retry cooldown in effect")

func (w *LogstashWriter) ensureConnLocked() error {
	if w.conn != nil {
		return nil
	}
	if !w.nextRetry.IsZero() && w.now().Before(w.nextRetry) {
		return errRetryCooldown
	}
	conn, err := net.DialTimeout("tcp", w.addr, w.dialTimeout)
	if err != nil {
		w.scheduleRetryLocked()
		return err
	}
	w.conn = conn
	w.nextRetry = time.Time{}
	return nil
}

func (w *LogstashWriter) closeConnLocked() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *LogstashWriter) scheduleRetryLocked() {
	if w.retryInterval <= 0 {
		w.nextRetry = time.Time{}
		return
	}
	w.nextRetry = w.now().Add(w.retryInterval)
}
