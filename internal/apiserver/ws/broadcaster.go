// Package ws provides the in-process WebSocket broadcaster that fans
// ingestion progress out to subscribed browser clients, the same
// non-blocking per-client channel pattern as the teacher's
// internal/server/websocket.Broadcaster (there: alerts; here: one
// progress stream per running job).
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ProgressMessage is the JSON envelope pushed to browser clients
// subscribed to one job's progress.
type ProgressMessage struct {
	Type     string `json:"type"`
	JobID    string `json:"job_id"`
	Permille int    `json:"permille"`
}

// Client is a single connected WebSocket client subscribed to one job.
type Client struct {
	id      string
	send    chan []byte
	Dropped atomic.Int64
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Send returns a receive-only channel of JSON-encoded ProgressMessage
// frames. It is closed when the client is unregistered.
func (c *Client) Send() <-chan []byte { return c.send }

// Broadcaster fans one job's progress updates out to every client
// registered for that job. It is safe for concurrent use.
type Broadcaster struct {
	jobID   string
	clients sync.Map // map[string]*Client
	bufSize int
	logger  *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewBroadcaster creates a Broadcaster scoped to one job ID. bufSize is
// the per-client channel depth; 0 selects a default of 32 (progress
// updates are low-frequency relative to the alert stream this pattern
// was grounded on, so a shallower buffer than the teacher's default 64
// is enough).
func NewBroadcaster(jobID string, logger *slog.Logger, bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Broadcaster{jobID: jobID, bufSize: bufSize, logger: logger}
}

// Register creates and stores a new Client.
func (b *Broadcaster) Register(id string) *Client {
	c := &Client{id: id, send: make(chan []byte, b.bufSize)}
	if b.closed.Load() {
		close(c.send)
		return c
	}
	b.clients.Store(id, c)
	return c
}

// Unregister removes and closes the client identified by id.
func (b *Broadcaster) Unregister(id string) {
	if v, loaded := b.clients.LoadAndDelete(id); loaded {
		close(v.(*Client).send)
	}
}

// Publish implements progress.Sink: it marshals permille into a
// ProgressMessage and delivers it to every registered client with a
// non-blocking send, dropping for any client whose buffer is full
// rather than stalling the ingestion goroutine that calls Publish.
func (b *Broadcaster) Publish(permille int) {
	if b.closed.Load() {
		return
	}

	raw, err := json.Marshal(ProgressMessage{Type: "progress", JobID: b.jobID, Permille: permille})
	if err != nil {
		if b.logger != nil {
			b.logger.Error("ws broadcaster: marshal failed", slog.Any("error", err))
		}
		return
	}

	b.clients.Range(func(_, v any) bool {
		c := v.(*Client)
		select {
		case c.send <- raw:
		default:
			c.Dropped.Add(1)
		}
		return true
	})
}

// Close unregisters and closes every client's channel. Safe to call more
// than once.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.clients.Range(func(key, value any) bool {
			b.clients.Delete(key)
			close(value.(*Client).send)
			return true
		})
	})
}
