package conn

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/openeuc/wheelcore/internal/detect"
	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/observe"
	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/factory"
	"github.com/openeuc/wheelcore/internal/timers"
)

// keepAliveWriter is the optional decoder capability for families that need
// a periodic outbound poll to keep telemetry flowing.
type keepAliveWriter interface {
	KeepAliveWrite() []byte
}

// ManagerConfig carries the manager's collaborators and knobs.
type ManagerConfig struct {
	Transport Transport
	Log       zerolog.Logger

	// Protocol is handed to the decoder on every Decode call.
	Protocol protocol.Config

	// PinnedType, when not Unknown, selects the decoder directly and skips
	// detection of the discovered services.
	PinnedType protocol.WheelType

	// DataTimeout is the no-inbound-data window before the link is declared
	// lost. Zero means timers.DefaultDataTimeout.
	DataTimeout time.Duration

	// Clock defaults to the real clock; tests substitute a fake.
	Clock clockwork.Clock

	// NewDecoder defaults to factory.New; tests substitute stubs.
	NewDecoder func(protocol.WheelType) protocol.Decoder
}

// Manager drives one wheel connection: it walks the state machine, resolves
// the decoder after service discovery, serializes inbound data through the
// decoder in arrival order, dispatches decoder-requested writes, and owns the
// keep-alive and data-timeout timers. It never retries on its own; loss
// recovery belongs to the Reconnector.
type Manager struct {
	transport  Transport
	log        zerolog.Logger
	clk        clockwork.Clock
	proto      protocol.Config
	pinned     protocol.WheelType
	timeoutLen time.Duration
	newDecoder func(protocol.WheelType) protocol.Decoder

	state   *observe.Value[State]
	vehicle *observe.Value[*model.VehicleState]
	kaState *observe.Value[bool]

	timeout *timers.DataTimeout
	sched   *timers.Scheduler

	mu       sync.Mutex
	connCtx  context.Context
	connStop context.CancelFunc
	decoder  protocol.Decoder
	prior    *model.VehicleState
	keep     *timers.KeepAlive
	ready    bool
	addr     string
	name     string
}

func NewManager(cfg ManagerConfig) *Manager {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	nd := cfg.NewDecoder
	if nd == nil {
		nd = factory.New
	}
	tl := cfg.DataTimeout
	if tl <= 0 {
		tl = timers.DefaultDataTimeout
	}
	return &Manager{
		transport:  cfg.Transport,
		log:        cfg.Log,
		clk:        clk,
		proto:      cfg.Protocol,
		pinned:     cfg.PinnedType,
		timeoutLen: tl,
		newDecoder: nd,
		state:      observe.NewValue(State{Status: StatusDisconnected}),
		vehicle:    observe.NewValue[*model.VehicleState](nil),
		kaState:    observe.NewValue(false),
		timeout:    timers.NewDataTimeout(clk, cfg.Log),
		sched:      timers.NewScheduler(clk, cfg.Log),
	}
}

// States is the connection-state observable.
func (m *Manager) States() *observe.Value[State] { return m.state }

// Vehicle is the telemetry observable; values are private clones.
func (m *Manager) Vehicle() *observe.Value[*model.VehicleState] { return m.vehicle }

// KeepAliveActive reports whether the keep-alive cadence is running.
func (m *Manager) KeepAliveActive() *observe.Value[bool] { return m.kaState }

// Scheduler exposes the delayed-command scheduler for callers that want to
// queue wheel commands relative to now.
func (m *Manager) Scheduler() *timers.Scheduler { return m.sched }

// Connect brings the link up and arms the data timeout. The name is used by
// wheel-type detection once services arrive; it falls back to the configured
// device name when empty.
func (m *Manager) Connect(ctx context.Context, addr, name string) error {
	m.mu.Lock()
	m.teardownLocked()
	connCtx, stop := context.WithCancel(ctx)
	m.connCtx = connCtx
	m.connStop = stop
	m.addr = addr
	m.name = name
	m.mu.Unlock()

	m.state.Set(State{Status: StatusConnecting, Addr: addr, Name: name})
	// Armed before dialing: a dial that hangs past the window counts as no
	// data, independent of readiness.
	m.timeout.Start(connCtx, m.timeoutLen, m.onDataTimeout)
	if err := m.transport.Connect(connCtx, addr); err != nil {
		m.timeout.Stop()
		m.log.Warn().Err(err).Str("addr", addr).Msg("connect failed")
		m.state.Set(State{Status: StatusFailed, Addr: addr, Name: name, Err: err})
		return err
	}

	m.state.Set(State{Status: StatusDiscoveringServices, Addr: addr, Name: name})
	return nil
}

// Disconnect tears everything down and publishes Disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
	if err := m.transport.Disconnect(); err != nil {
		m.log.Debug().Err(err).Msg("transport disconnect")
	}
	m.state.Set(State{Status: StatusDisconnected})
}

// HandleServicesDiscovered resolves the decoder from the discovery
// descriptor. An unidentifiable wheel fails the connection. The link stays
// in DiscoveringServices until the decoder reports ready.
func (m *Manager) HandleServicesDiscovered(services detect.Services) {
	m.mu.Lock()
	addr, name := m.addr, m.name
	connCtx := m.connCtx
	m.mu.Unlock()
	if connCtx == nil || connCtx.Err() != nil {
		return
	}

	family := m.pinned
	if family == protocol.Unknown {
		detectName := name
		if detectName == "" {
			detectName = m.proto.DeviceName
		}
		res := detect.Detect(services, detectName)
		if res.Kind != detect.KindDetected {
			reason := res.Reason
			if res.Kind == detect.KindAmbiguous {
				reason = "ambiguous wheel type, device name required"
			}
			m.log.Warn().Str("addr", addr).Str("reason", reason).Msg("wheel type detection failed")
			m.mu.Lock()
			m.teardownLocked()
			m.mu.Unlock()
			if err := m.transport.Disconnect(); err != nil {
				m.log.Debug().Err(err).Msg("transport disconnect")
			}
			m.state.Set(State{Status: StatusFailed, Addr: addr, Name: name, Reason: reason})
			return
		}
		family = res.Type
	}

	dec := m.newDecoder(family)
	if dec == nil {
		m.state.Set(State{Status: StatusFailed, Addr: addr, Name: name, Reason: "no decoder for wheel type"})
		return
	}
	dec.Reset()

	m.mu.Lock()
	m.decoder = dec
	m.prior = nil
	m.ready = false
	m.mu.Unlock()

	m.log.Info().Str("addr", addr).Stringer("family", family).Msg("wheel identified")

	for _, frame := range dec.InitCommands() {
		if err := m.transport.Write(connCtx, frame); err != nil {
			m.log.Warn().Err(err).Msg("init command write failed")
			return
		}
	}
}

// HandleData feeds one inbound payload through the decoder. Calls are
// serialized in arrival order; decoder-requested writes go out in order
// before the next payload is processed.
func (m *Manager) HandleData(raw []byte) {
	m.timeout.Touch()

	m.mu.Lock()
	defer m.mu.Unlock()
	dec := m.decoder
	connCtx := m.connCtx
	if dec == nil || connCtx == nil || connCtx.Err() != nil {
		return
	}

	cfg := m.proto
	if m.name != "" {
		cfg.DeviceName = m.name
	}
	out := dec.Decode(raw, m.prior, cfg)
	if out == nil {
		return
	}
	if out.State != nil {
		m.prior = out.State
	}
	for _, frame := range out.Commands {
		if err := m.transport.Write(connCtx, frame); err != nil {
			m.log.Warn().Err(err).Msg("decoder command write failed")
			break
		}
	}
	if out.Changed && out.State != nil {
		m.vehicle.Set(out.State.Clone())
	}
	if !m.ready && dec.Ready() {
		m.ready = true
		m.log.Info().Stringer("family", dec.Family()).Msg("wheel ready")
		m.state.Set(State{Status: StatusConnected, Addr: m.addr, Name: m.name})
		m.startKeepAliveLocked(dec, connCtx)
	}
}

// HandleDisconnected is the transport's link-dropped callback.
func (m *Manager) HandleDisconnected(err error) {
	m.mu.Lock()
	addr, name := m.addr, m.name
	active := m.connCtx != nil && m.connCtx.Err() == nil
	m.teardownLocked()
	m.mu.Unlock()
	if !active {
		return
	}
	m.log.Warn().Err(err).Str("addr", addr).Msg("link dropped")
	m.state.Set(State{Status: StatusConnectionLost, Addr: addr, Name: name, Reason: "link dropped", Err: err})
}

// SendCommand encodes and dispatches a semantic command. Families without an
// encoding for the command are a silent no-op.
func (m *Manager) SendCommand(cmd protocol.Command) error {
	m.mu.Lock()
	dec := m.decoder
	connCtx := m.connCtx
	m.mu.Unlock()
	if connCtx == nil || connCtx.Err() != nil {
		return ErrNotConnected
	}
	if dec == nil {
		return ErrNoDecoder
	}
	for _, frame := range dec.BuildCommand(cmd) {
		if err := m.transport.Write(connCtx, frame); err != nil {
			return err
		}
	}
	return nil
}

// SendCommandAfter queues a semantic command for dispatch after delay.
func (m *Manager) SendCommandAfter(delay time.Duration, cmd protocol.Command) {
	m.mu.Lock()
	connCtx := m.connCtx
	m.mu.Unlock()
	if connCtx == nil || connCtx.Err() != nil {
		return
	}
	m.sched.Schedule(connCtx, delay, func() {
		if err := m.SendCommand(cmd); err != nil {
			m.log.Warn().Err(err).Msg("scheduled command failed")
		}
	})
}

func (m *Manager) onDataTimeout() {
	m.mu.Lock()
	addr, name := m.addr, m.name
	m.teardownLocked()
	m.mu.Unlock()
	m.log.Warn().Str("addr", addr).Msg("data timeout, dropping link")
	if err := m.transport.Disconnect(); err != nil {
		m.log.Debug().Err(err).Msg("transport disconnect")
	}
	m.state.Set(State{Status: StatusConnectionLost, Addr: addr, Name: name, Reason: "data timeout"})
}

// startKeepAliveLocked begins the cadence once the wheel is ready; families
// without a poll interval or poll payload run none.
func (m *Manager) startKeepAliveLocked(dec protocol.Decoder, connCtx context.Context) {
	interval := dec.KeepAliveInterval()
	if interval <= 0 {
		return
	}
	kw, ok := dec.(keepAliveWriter)
	if !ok {
		return
	}
	m.keep = timers.NewKeepAlive(m.clk, interval, func(ctx context.Context) error {
		payload := kw.KeepAliveWrite()
		if len(payload) == 0 {
			return nil
		}
		return m.transport.Write(ctx, payload)
	}, m.log)
	m.keep.Start(connCtx)
	m.kaState.Set(true)
}

// teardownLocked stops timers, drops the decoder and cancels the connection
// context. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	if m.keep != nil {
		m.keep.Stop()
		m.keep = nil
		m.kaState.Set(false)
	}
	m.timeout.Stop()
	m.sched.CancelAll()
	if m.connStop != nil {
		m.connStop()
		m.connStop = nil
	}
	m.connCtx = nil
	m.decoder = nil
	m.prior = nil
	m.ready = false
}
