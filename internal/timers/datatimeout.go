package timers

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	// DefaultDataTimeout is the no-inbound-data window before the link is
	// declared lost.
	DefaultDataTimeout = 15 * time.Second
	// timeoutPoll is the tracker's check cadence.
	timeoutPoll = time.Second
)

// DataTimeout watches the last-data timestamp and fires its callback exactly
// once per Start when the configured window elapses with no Touch, then
// stops itself.
type DataTimeout struct {
	clk clockwork.Clock
	log zerolog.Logger

	mu     sync.Mutex
	last   time.Time
	cancel context.CancelFunc
}

func NewDataTimeout(clk clockwork.Clock, log zerolog.Logger) *DataTimeout {
	return &DataTimeout{clk: clk, log: log}
}

// Start arms the tracker, replacing any previous run. threshold <= 0 uses
// DefaultDataTimeout.
func (d *DataTimeout) Start(ctx context.Context, threshold time.Duration, onTimeout func()) {
	if threshold <= 0 {
		threshold = DefaultDataTimeout
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.last = d.clk.Now()
	go d.loop(ctx, threshold, onTimeout)
}

// Touch records that data arrived.
func (d *DataTimeout) Touch() {
	d.mu.Lock()
	d.last = d.clk.Now()
	d.mu.Unlock()
}

// Stop disarms the tracker without firing.
func (d *DataTimeout) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *DataTimeout) loop(ctx context.Context, threshold time.Duration, onTimeout func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.clk.After(timeoutPoll):
			if ctx.Err() != nil {
				return
			}
			d.mu.Lock()
			elapsed := d.clk.Now().Sub(d.last)
			d.mu.Unlock()
			if elapsed < threshold {
				continue
			}
			d.Stop()
			d.fire(onTimeout)
			return
		}
	}
}

func (d *DataTimeout) fire(onTimeout func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("data-timeout callback panicked")
		}
	}()
	onTimeout()
}
