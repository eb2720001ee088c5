package store

import (
	"context"
	"log/slog"
	"time"
)

// State is the lifecycle of one tracked download.
type State string

const (
	StateInProgress State = "in-progress"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// DownloadStatus is the table entry for one model identifier.
type DownloadStatus struct {
	Name    string    `json:"name"`
	State   State     `json:"state"`
	Path    string    `json:"path,omitempty"`
	Error   string    `json:"error,omitempty"`
	Started time.Time `json:"started"`
}

// Event is published on every state transition.
type Event struct {
	Name  string `json:"name"`
	State State  `json:"state"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Status returns the current table entry for name, if any.
func (s *Store) Status(name string) (DownloadStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.downloads[name]
	if !ok {
		return DownloadStatus{}, false
	}
	return *st, true
}

// Start transitions name to in-progress and runs fn on its own goroutine.
// The check-and-set is atomic: if a download for name is already in flight
// the call returns false without scheduling. The task is detached from any
// originating HTTP request and runs until completion.
func (s *Store) Start(name string, fn func(ctx context.Context) (string, error)) bool {
	s.mu.Lock()
	if st, ok := s.downloads[name]; ok && st.State == StateInProgress {
		s.mu.Unlock()
		return false
	}
	s.downloads[name] = &DownloadStatus{Name: name, State: StateInProgress, Started: time.Now()}
	s.mu.Unlock()
	s.publish(Event{Name: name, State: StateInProgress})

	go func() {
		path, err := fn(context.Background())
		s.mu.Lock()
		st := s.downloads[name]
		if err != nil {
			st.State = StateFailed
			st.Error = err.Error()
		} else {
			st.State = StateComplete
			st.Path = path
		}
		ev := Event{Name: name, State: st.State, Path: st.Path, Error: st.Error}
		s.mu.Unlock()

		if err != nil {
			slog.Error("download failed", "name", name, "error", err)
		} else {
			slog.Info("download complete", "name", name, "path", path)
		}
		s.publish(ev)
	}()
	return true
}

func (s *Store) publish(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}
