// Package progress implements the progress reporter (component G): a
// ticker goroutine that samples the reader's byte offset and publishes it
// to one or more sinks on a fixed 0-10000 scale, the same external-sink
// fan-out shape as the teacher's internal/server/websocket.Broadcaster
// (there: connected clients; here: progress subscribers).
package progress

import (
	"context"
	"time"
)

// Sink receives progress updates. Publish must not block the reporter
// goroutine for long; implementations that fan out to slow consumers
// (a websocket broadcaster, say) should buffer or drop internally rather
// than stall ingestion.
type Sink interface {
	Publish(permille int)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(permille int)

// Publish implements Sink.
func (f SinkFunc) Publish(permille int) { f(permille) }

// Reporter periodically computes floor(10000 * offset / size) and
// publishes it to every registered Sink, finishing with an unconditional
// final publish of 10000 once ingestion completes (§4.5) so a subscriber
// that only samples at the tick interval never misses "done".
type Reporter struct {
	offsetFn func() uint64
	size     int64
	interval time.Duration
	sinks    []Sink
}

// New constructs a Reporter. offsetFn is called from the reporter's own
// goroutine only; size is the input's byte length as reported by the
// Source (uncompressed for .gz, on-disk for plain and .bz2 files),
// computed once up front (internal/stdfio.FileSize).
func New(offsetFn func() uint64, size int64, interval time.Duration, sinks ...Sink) *Reporter {
	return &Reporter{offsetFn: offsetFn, size: size, interval: interval, sinks: sinks}
}

// Run ticks until ctx is done, publishing to every sink each tick, then
// performs the unconditional final 10000 publish and returns. Callers
// typically cancel ctx's context as soon as the reader's Run returns.
func (r *Reporter) Run(ctx context.Context) {
	if len(r.sinks) == 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.publish(10000)
			return
		case <-ticker.C:
			r.publish(r.permille())
		}
	}
}

func (r *Reporter) permille() int {
	if r.size <= 0 {
		return 0
	}
	offset := r.offsetFn()
	p := int((10000 * offset) / uint64(r.size))
	if p > 10000 {
		p = 10000
	}
	return p
}

func (r *Reporter) publish(permille int) {
	for _, sink := range r.sinks {
		sink.Publish(permille)
	}
}
