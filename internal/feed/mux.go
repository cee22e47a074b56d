package feed

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

// maxLineBytes bounds a single telemetry line; perception frames with many
// polygon obstacles can run to a few hundred kilobytes.
const maxLineBytes = 4 * 1024 * 1024

// LinePorter is the minimal interface needed for a telemetry source.
type LinePorter interface {
	io.Reader
	io.Closer
}

// Mux reads lines from a single source, applies each through a Dispatcher
// and fans the raw lines out to any tail subscribers.
type Mux[T LinePorter] struct {
	port       T
	dispatcher *Dispatcher

	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewMux creates a Mux reading from port.
func NewMux[T LinePorter](port T, d *Dispatcher) *Mux[T] {
	return &Mux[T]{
		port:        port,
		dispatcher:  d,
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns an ID and a channel of raw lines. Slow subscribers miss
// lines rather than stalling ingest.
func (m *Mux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Monitor reads lines until the source is exhausted or ctx is cancelled.
// Lines that fail to decode are logged and skipped. It returns nil at EOF.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs in its own goroutine so the loop below can
	// still observe cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return fmt.Errorf("feed read failed: %w", err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return fmt.Errorf("feed read failed: %w", err)
				default:
				}
				return nil
			}
			m.closingMu.Lock()
			closing := m.closing
			m.closingMu.Unlock()
			if closing {
				return nil
			}

			if kind, err := m.dispatcher.HandleLine(line); err != nil {
				log.Printf("[Feed] dropped %s line: %v", kindOrUnknown(kind), err)
			}

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

func kindOrUnknown(k Kind) Kind {
	if k == "" {
		return "undecodable"
	}
	return k
}

// Close closes all subscriber channels and the underlying source.
func (m *Mux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()
	return m.port.Close()
}

// AttachAdminRoutes mounts feed debugging endpoints under /debug/.
func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("feed", "telemetry feed counters", func(w http.ResponseWriter, r *http.Request) {
		stats := m.dispatcher.Stats()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, k := range Kinds {
			fmt.Fprintf(w, "%-13s %d\n", k, stats.Counts[k])
		}
		fmt.Fprintf(w, "%-13s %d\n", "errors", stats.Errors)
	})

	// Server-sent events of raw feed lines.
	debug.HandleSilentFunc("feed-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
