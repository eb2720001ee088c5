package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hardik94/shabdabhav/internal/metrics"
)

// Connection is one observed in-flight request. Purely observational; no
// business logic reads it.
type Connection struct {
	ID      string    `json:"id"`
	Host    string    `json:"host"`
	Port    string    `json:"port"`
	User    string    `json:"user,omitempty"`
	Started time.Time `json:"started"`
}

// ConnTracker records requests for the duration of their handling.
type ConnTracker struct {
	mu    sync.Mutex
	conns map[string]Connection
}

// NewConnTracker creates an empty tracker.
func NewConnTracker() *ConnTracker {
	return &ConnTracker{conns: make(map[string]Connection)}
}

// statusRecorder captures the final status for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working through the wrapper.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware inserts a record on entry and removes it when the response
// completes.
func (t *ConnTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, port, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		conn := Connection{
			ID:      uuid.NewString(),
			Host:    host,
			Port:    port,
			Started: time.Now(),
		}

		t.mu.Lock()
		t.conns[conn.ID] = conn
		t.mu.Unlock()
		metrics.ConnectionsActive.Inc()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			t.mu.Lock()
			delete(t.conns, conn.ID)
			t.mu.Unlock()
			metrics.ConnectionsActive.Dec()
			metrics.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// Snapshot lists the currently observed requests.
func (t *ConnTracker) Snapshot() []Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Connection, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}
