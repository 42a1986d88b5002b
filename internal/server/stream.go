package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// ProgressEvent is pushed to stream subscribers after every round
type ProgressEvent struct {
	JobID          string    `json:"jobId"`
	State          JobState  `json:"state"`
	Rounds         int       `json:"rounds"`
	Accepted       uint64    `json:"accepted"`
	Loss           float64   `json:"loss"`
	InitialLoss    float64   `json:"initialLoss"`
	TicksPerSecond float64   `json:"ticksPerSecond"`
	Timestamp      time.Time `json:"timestamp"`
}

func eventFromJob(job *Job) ProgressEvent {
	return ProgressEvent{
		JobID:          job.ID,
		State:          job.State,
		Rounds:         job.Rounds,
		Accepted:       job.Accepted,
		Loss:           job.Loss,
		InitialLoss:    job.InitialLoss,
		TicksPerSecond: job.TicksPerSecond,
		Timestamp:      time.Now(),
	}
}

// EventBroadcaster fans progress events out to per-job subscribers
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]map[chan ProgressEvent]struct{}
	lastEvent map[string]ProgressEvent
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan ProgressEvent]struct{}),
		lastEvent: make(map[string]ProgressEvent),
	}
}

// Subscribe returns a channel receiving the job's events. The last event
// broadcast for the job, if any, is delivered first.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, 16)
	if eb.clients[jobID] == nil {
		eb.clients[jobID] = make(map[chan ProgressEvent]struct{})
	}
	eb.clients[jobID][ch] = struct{}{}

	if last, ok := eb.lastEvent[jobID]; ok {
		ch <- last
	}

	slog.Debug("Stream client subscribed", "job_id", jobID, "clients", len(eb.clients[jobID]))
	return ch
}

// Unsubscribe removes and closes ch. Safe to call after CleanupJob.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	clients, ok := eb.clients[jobID]
	if !ok {
		return
	}
	if _, ok := clients[ch]; !ok {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(eb.clients, jobID)
	}
	slog.Debug("Stream client unsubscribed", "job_id", jobID)
}

// Broadcast sends event to every subscriber of its job. Slow subscribers
// miss events rather than block the search.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.lastEvent[event.JobID] = event
	for ch := range eb.clients[event.JobID] {
		select {
		case ch <- event:
		default:
			slog.Warn("Stream channel full, dropping event", "job_id", event.JobID, "round", event.Rounds)
		}
	}
}

// CleanupJob closes all subscriber channels and forgets the job
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.clients[jobID] {
		close(ch)
	}
	delete(eb.clients, jobID)
	delete(eb.lastEvent, jobID)
}

// handleJobStream serves GET /api/v1/jobs/:id/stream as server-sent events
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	if err := writeSSEEvent(w, eventFromJob(job)); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()
	if job.State.Done() {
		return
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "job_id", jobID)
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if event.State.Done() {
				return
			}

		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one "data: {json}" frame
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// jobSocket serves /api/v1/jobs/:id/ws, sending every progress event as a
// JSON text frame until the job ends or the client goes away.
func (s *Server) jobSocket(jobID string) websocket.Handler {
	return func(ws *websocket.Conn) {
		defer ws.Close()

		job, exists := s.jobManager.GetJob(jobID)
		if !exists {
			websocket.JSON.Send(ws, map[string]string{"error": "job not found"})
			return
		}

		events := s.jobManager.broadcaster.Subscribe(jobID)
		defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

		// The client never sends anything we care about; a failed read means
		// it has closed the socket.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			var msg string
			for websocket.Message.Receive(ws, &msg) == nil {
			}
		}()

		if err := websocket.JSON.Send(ws, eventFromJob(job)); err != nil {
			return
		}
		if job.State.Done() {
			return
		}

		for {
			select {
			case <-gone:
				slog.Debug("Websocket client disconnected", "job_id", jobID)
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := websocket.JSON.Send(ws, event); err != nil {
					slog.Debug("Websocket send failed", "job_id", jobID, "error", err)
					return
				}
				if event.State.Done() {
					return
				}
			}
		}
	}
}
