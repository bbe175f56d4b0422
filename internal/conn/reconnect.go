package conn

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/openeuc/wheelcore/internal/observe"
)

// backoffSchedule is the per-attempt retry delay; the last entry repeats for
// every attempt past the table.
var backoffSchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

// defaultSettleWindow is how long a connection must hold before the attempt
// counter resets to the start of the schedule.
const defaultSettleWindow = 30 * time.Second

// defaultStartupWindow bounds the single startup attempt: if Connected is
// not observed within it, the auto-connecting flag clears with no retry.
const defaultStartupWindow = 30 * time.Second

// backoffDelay returns the delay before attempt N (1-based).
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoffSchedule) {
		attempt = len(backoffSchedule)
	}
	return backoffSchedule[attempt-1]
}

// Client is the manager surface the reconnector drives.
type Client interface {
	Connect(ctx context.Context, addr, name string) error
	States() *observe.Value[State]
}

// ReconnectorConfig carries the reconnector's collaborators and knobs.
type ReconnectorConfig struct {
	Client Client
	Log    zerolog.Logger

	// Addr and Name identify the wheel every attempt dials.
	Addr string
	Name string

	// ConnectOnStart makes Start dial immediately instead of waiting for a
	// loss event.
	ConnectOnStart bool

	// SettleWindow defaults to defaultSettleWindow.
	SettleWindow time.Duration

	// StartupWindow bounds the ConnectOnStart attempt; defaults to
	// defaultStartupWindow.
	StartupWindow time.Duration

	// Clock defaults to the real clock; tests substitute a fake.
	Clock clockwork.Clock
}

// Reconnector watches the connection-state observable and redials after
// ConnectionLost or Failed, walking the backoff schedule. A connection that
// holds for the settle window resets the schedule. Start is idempotent and
// replaces any previous run; Stop cancels it.
type Reconnector struct {
	client Client
	log    zerolog.Logger
	clk    clockwork.Clock
	addr   string
	name   string
	onOpen bool
	settle time.Duration
	window time.Duration

	auto *observe.Value[bool]

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	settle := cfg.SettleWindow
	if settle <= 0 {
		settle = defaultSettleWindow
	}
	window := cfg.StartupWindow
	if window <= 0 {
		window = defaultStartupWindow
	}
	return &Reconnector{
		client: cfg.Client,
		log:    cfg.Log,
		clk:    clk,
		addr:   cfg.Addr,
		name:   cfg.Name,
		onOpen: cfg.ConnectOnStart,
		settle: settle,
		window: window,
		auto:   observe.NewValue(false),
	}
}

// AutoConnecting reports whether the reconnector is currently trying to
// bring the link up, either the startup attempt or a loss-driven retry.
func (r *Reconnector) AutoConnecting() *observe.Value[bool] { return r.auto }

// Start launches the watch loop, replacing any previous run.
func (r *Reconnector) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	// Subscribed before the loop goroutine exists; a loss published right
	// after Start returns must not be missed.
	states, cancelSub := r.client.States().Subscribe(8)
	go r.run(ctx, states, cancelSub)
}

// Stop cancels the watch loop.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Reconnector) run(ctx context.Context, states <-chan State, cancelSub func()) {
	defer cancelSub()
	defer r.auto.Set(false)

	attempt := 0
	var connectedAt time.Time
	var startupDeadline <-chan time.Time

	if r.onOpen {
		r.auto.Set(true)
		startupDeadline = r.clk.After(r.window)
		r.dial(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-startupDeadline:
			// The single startup attempt never reached Connected.
			startupDeadline = nil
			r.auto.Set(false)
		case st, ok := <-states:
			if !ok {
				return
			}
			switch st.Status {
			case StatusConnected:
				connectedAt = r.clk.Now()
				startupDeadline = nil
				r.auto.Set(false)
			case StatusConnectionLost, StatusFailed:
				// Loss-driven retries supersede the startup window.
				startupDeadline = nil
				r.auto.Set(true)
				if !connectedAt.IsZero() && r.clk.Since(connectedAt) >= r.settle {
					attempt = 0
				}
				connectedAt = time.Time{}
				attempt++
				delay := backoffDelay(attempt)
				r.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("scheduling reconnect")
				select {
				case <-ctx.Done():
					return
				case <-r.clk.After(delay):
				}
				r.dial(ctx)
			}
		}
	}
}

// dial runs one connect attempt; a failure publishes Failed on the state
// observable, which feeds the next loop iteration.
func (r *Reconnector) dial(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := r.client.Connect(ctx, r.addr, r.name); err != nil {
		r.log.Warn().Err(err).Str("addr", r.addr).Msg("reconnect attempt failed")
	}
}
