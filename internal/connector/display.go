package connector

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Delivery is one accepted XML document.
type Delivery struct {
	ID         string
	XML        string
	ReceivedAt time.Time
}

// Display hands accepted deliveries to a consumer. Offer never blocks and
// never drops: deliveries wait in an unbounded pending list until Run
// prints them.
type Display struct {
	mu      sync.Mutex
	pending []Delivery
	ready   chan struct{}
	log     zerolog.Logger
}

func NewDisplay(log zerolog.Logger) *Display {
	return &Display{ready: make(chan struct{}, 1), log: log}
}

// Offer queues a delivery for the consumer.
func (d *Display) Offer(delivery Delivery) {
	d.mu.Lock()
	d.pending = append(d.pending, delivery)
	backlog := len(d.pending)
	d.mu.Unlock()

	select {
	case d.ready <- struct{}{}:
	default:
	}

	d.log.Debug().Str("delivery_id", delivery.ID).Int("backlog", backlog).Msg("Delivery queued for display")
}

// Drain removes and returns every pending delivery in arrival order.
func (d *Display) Drain() []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.pending
	d.pending = nil
	return out
}

// Run prints every delivery to w until ctx is done.
func (d *Display) Run(ctx context.Context, w io.Writer) {
	for {
		for _, delivery := range d.Drain() {
			if _, err := fmt.Fprintf(w, "[%s] XML Received\n\n%s\n\n", delivery.ReceivedAt.Format("15:04:05"), delivery.XML); err != nil {
				d.log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("Failed to display delivery")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-d.ready:
		}
	}
}
