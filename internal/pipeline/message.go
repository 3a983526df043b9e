// Package pipeline implements the bounded single-producer/single-consumer
// queue (component B) that connects the reader thread to the summarizer.
// A Go buffered channel already provides the fixed-capacity,
// block-on-full/block-on-empty semantics spec.md §5 asks for, so the
// "queue" here is a thin typed wrapper: Operation is the sum type from
// §9 ("A sum type {SetEndian, Parse{...}, Finish{err}} replaces the
// dynamically-typed cluster"), and ownership of the raw payload buffer
// transfers to whichever goroutine receives the Message (§3.2's ownership
// rule — the reader allocates, the summarizer is responsible for letting
// it go, which in Go means simply not retaining a reference past use).
package pipeline

import (
	"encoding/binary"

	"github.com/foundry/stdfingest/internal/stdfrec"
)

// Operation identifies the kind of Message on the queue.
type Operation int

const (
	// OpSetEndian is emitted once, before any OpParse message, so the
	// consumer can latch the detected byte order (§4.2).
	OpSetEndian Operation = iota
	// OpParse carries one decoded-eligible record's raw payload.
	OpParse
	// OpFinish is always the last message on the queue (§4.2, §5).
	OpFinish
)

// Message is the queue element defined in §3.2.
type Message struct {
	Op Operation

	// Order is meaningful only when Op == OpSetEndian: the byte order the
	// reader detected for this file, latched by the consumer once before
	// it sees any OpParse message.
	Order binary.ByteOrder

	// Err is meaningful only when Op == OpFinish; nil means a clean
	// ErrEOF-style finish.
	Err error

	// The following fields are populated only when Op == OpParse.
	RecordCode Code
	FileOffset uint64
	Raw        []byte
	RawLen     uint16
}

// Code is a re-export of stdfrec.Code so callers of this package do not
// need to import stdfrec directly just to read Message.RecordCode.
type Code = stdfrec.Code

// Queue is a fixed-capacity channel of Messages: one writer (the reader
// thread), one reader (the summarizer or analyzer). Capacity 1024 is used
// by the analyzer (component I); a deeper capacity is used by full
// ingestion (§5, see IngestionCapacity below).
type Queue struct {
	ch chan Message
}

// NewQueue allocates a Queue with the given fixed capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Message, capacity)}
}

// Enqueue blocks until there is room in the queue. It is
// called only by the reader thread (E).
func (q *Queue) Enqueue(m Message) {
	q.ch <- m
}

// Dequeue blocks until a message is available. It is called only by the
// summarizer (F) or analyzer (I).
func (q *Queue) Dequeue() Message {
	return <-q.ch
}

// Close closes the underlying channel. Only the reader thread may call
// this, and only after it has sent the terminal OpFinish message.
func (q *Queue) Close() {
	close(q.ch)
}

// Ingestion and analyzer queue capacities. §5 describes the ingestion
// queue as effectively unbounded (2^22 slots); a Go buffered channel of
// that depth would reserve hundreds of megabytes of backing array before
// a single record is ever sent, so IngestionCapacity instead picks a
// depth deep enough that the reader rarely blocks on a summarizer that
// is momentarily behind (one SQLite insert per enqueued record), while
// still bounding memory the way a literal 2^22-slot channel would not in
// practice.
const (
	IngestionCapacity = 1 << 14
	AnalyzerCapacity  = 1024
)
