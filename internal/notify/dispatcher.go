package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Dispatcher decouples notification delivery from the operations that
// trigger it. Messages are queued and drained by a single background
// goroutine; delivery failures are retried with exponential backoff and
// ultimately logged, never surfaced to the caller.
type Dispatcher struct {
	sink    Sink
	queue   chan string
	done    chan struct{}
	timeout time.Duration
}

// NewDispatcher creates a dispatcher and starts its delivery goroutine.
func NewDispatcher(sink Sink) *Dispatcher {
	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan string, 64),
		done:    make(chan struct{}),
		timeout: 30 * time.Second,
	}
	go d.run()
	return d
}

// Enqueue hands a message to the dispatcher without blocking. If the queue
// is full the message is dropped: notifications are best-effort.
func (d *Dispatcher) Enqueue(message string) {
	select {
	case d.queue <- message:
	default:
		slog.Warn("notification queue full, dropping message", "message", message)
	}
}

// Close stops the dispatcher after draining queued messages.
func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for message := range d.queue {
		d.deliver(message)
	}
}

func (d *Dispatcher) deliver(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := d.sink.Send(ctx, message); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		slog.Error("notification delivery failed", "message", message, "error", err)
		return
	}
	slog.Debug("notification sent", "message", message)
}
