// Package timers holds the three scheduling primitives the connection
// manager owns: the keep-alive ticker, the data-timeout tracker and the
// delayed-command scheduler. All of them run on a clockwork.Clock so tests
// drive them on simulated time, and every callback runs behind a recover so
// a misbehaving tick never kills its loop.
package timers

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// KeepAlive invokes a tick callback at a fixed cadence, starting one full
// interval after Start. Stop cancels outstanding scheduled work; a tick
// error or panic is logged and does not stop the cadence.
type KeepAlive struct {
	clk      clockwork.Clock
	interval time.Duration
	tick     func(context.Context) error
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewKeepAlive(clk clockwork.Clock, interval time.Duration, tick func(context.Context) error, log zerolog.Logger) *KeepAlive {
	return &KeepAlive{clk: clk, interval: interval, tick: tick, log: log}
}

// Start begins the cadence, replacing any previous run.
func (k *KeepAlive) Start(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		k.cancel()
	}
	if k.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	go k.loop(ctx)
}

// Stop cancels the cadence; no tick runs after it returns observed-side.
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		k.cancel()
		k.cancel = nil
	}
}

// Running reports whether a cadence is active.
func (k *KeepAlive) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cancel != nil
}

func (k *KeepAlive) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-k.clk.After(k.interval):
			if ctx.Err() != nil {
				return
			}
			k.runTick(ctx)
		}
	}
}

func (k *KeepAlive) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error().Interface("panic", r).Msg("keep-alive tick panicked")
		}
	}()
	if err := k.tick(ctx); err != nil {
		k.log.Warn().Err(err).Msg("keep-alive tick failed")
	}
}
