// Package serialbt implements the connection transport over a UART-attached
// BLE bridge module. The bridge accepts AT-style command lines, reports link
// events as +-prefixed lines, and carries GATT notification payloads as
// STX-framed binary frames in both directions.
package serialbt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/openeuc/wheelcore/internal/detect"
)

var (
	ErrConnectTimeout = errors.New("serialbt: bridge connect timed out")
	ErrPortClosed     = errors.New("serialbt: port closed")
	ErrFrameTooLarge  = errors.New("serialbt: frame exceeds bridge limit")
	ErrLinkClosed     = errors.New("serialbt: peer closed the link")
)

const defaultConnectTimeout = 20 * time.Second

// Handler receives bridge events; conn.Manager satisfies it.
type Handler interface {
	HandleServicesDiscovered(services detect.Services)
	HandleData(raw []byte)
	HandleDisconnected(err error)
}

// ScanFunc receives one advertisement per scan report line.
type ScanFunc func(addr, name string)

type Config struct {
	// Port is the serial device path, e.g. /dev/ttyUSB0 or /dev/rfcomm0.
	Port string
	Baud int
	// ConnectTimeout bounds the wait for the bridge's +CONNECTED event.
	ConnectTimeout time.Duration
	// OnScan, when set, receives scan reports while a scan is running.
	OnScan ScanFunc
	Log    zerolog.Logger
}

// Transport drives the bridge. The port opens lazily on the first Connect
// and stays open across link cycles; Close releases it.
type Transport struct {
	cfg     Config
	handler Handler
	log     zerolog.Logger

	mu       sync.Mutex
	port     serial.Port
	stopRead context.CancelFunc
	linkUp   chan struct{}
	services detect.Services
}

func New(cfg Config, handler Handler) *Transport {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Transport{cfg: cfg, handler: handler, log: cfg.Log}
}

// Connect asks the bridge to dial addr and waits for the link-up event. The
// bridge follows up with service lines and a terminating +SVCEND, which
// surface through the handler.
func (t *Transport) Connect(ctx context.Context, addr string) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	t.mu.Lock()
	waitCh := make(chan struct{})
	t.linkUp = waitCh
	t.services = nil
	t.mu.Unlock()

	if err := t.writeLine("AT+CONNECT=" + addr); err != nil {
		return err
	}

	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.cfg.ConnectTimeout):
		return fmt.Errorf("%w (%s)", ErrConnectTimeout, addr)
	}
}

// Disconnect drops the BLE link; the port stays open for the next dial.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	open := t.port != nil
	t.mu.Unlock()
	if !open {
		return nil
	}
	return t.writeLine("AT+DISCONNECT")
}

// Write sends one notification payload to the wheel.
func (t *Transport) Write(ctx context.Context, data []byte) error {
	if len(data) > maxFrameLen {
		return ErrFrameTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return ErrPortClosed
	}
	_, err := t.port.Write(encodeFrame(data))
	return err
}

func (t *Transport) StartScan(ctx context.Context) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	return t.writeLine("AT+SCAN=1")
}

func (t *Transport) StopScan() error {
	t.mu.Lock()
	open := t.port != nil
	t.mu.Unlock()
	if !open {
		return nil
	}
	return t.writeLine("AT+SCAN=0")
}

// Close stops the reader and releases the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopRead != nil {
		t.stopRead()
		t.stopRead = nil
	}
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

func (t *Transport) ensureOpen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: t.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("serialbt: open %s: %w", t.cfg.Port, err)
	}
	t.port = port
	t.log.Info().Str("port", t.cfg.Port).Int("baud", t.cfg.Baud).Msg("bridge port open")

	ctx, cancel := context.WithCancel(context.Background())
	t.stopRead = cancel
	go t.readLoop(ctx, port)
	return nil
}

func (t *Transport) readLoop(ctx context.Context, port serial.Port) {
	p := newParser(t.handleLine, t.handler.HandleData)
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			t.log.Warn().Err(err).Msg("bridge read failed")
			t.mu.Lock()
			if t.port == port {
				t.port.Close()
				t.port = nil
				t.stopRead = nil
			}
			t.mu.Unlock()
			t.handler.HandleDisconnected(err)
			return
		}
		if n > 0 {
			p.feed(buf[:n])
		}
	}
}

// handleLine dispatches one bridge event line.
func (t *Transport) handleLine(line string) {
	switch {
	case line == "+CONNECTED":
		t.mu.Lock()
		if t.linkUp != nil {
			close(t.linkUp)
			t.linkUp = nil
		}
		t.mu.Unlock()
	case line == "+DISCONNECTED":
		t.handler.HandleDisconnected(ErrLinkClosed)
	case strings.HasPrefix(line, "+SVC="):
		t.collectService(strings.TrimPrefix(line, "+SVC="))
	case line == "+SVCEND":
		t.mu.Lock()
		services := t.flushServiceLocked()
		t.mu.Unlock()
		t.handler.HandleServicesDiscovered(services)
	case strings.HasPrefix(line, "+SCAN="):
		addr, name := splitScan(strings.TrimPrefix(line, "+SCAN="))
		t.log.Debug().Str("addr", addr).Str("name", name).Msg("scan report")
		if t.cfg.OnScan != nil {
			t.cfg.OnScan(addr, name)
		}
	case strings.HasPrefix(line, "+ERR="):
		t.log.Warn().Str("err", strings.TrimPrefix(line, "+ERR=")).Msg("bridge error")
	default:
		t.log.Debug().Str("line", line).Msg("unrecognized bridge line")
	}
}

// collectService parses one "+SVC=<uuid>[:c1,c2,...]" line.
func (t *Transport) collectService(body string) {
	uuid, rest, hasChars := strings.Cut(body, ":")
	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return
	}
	svc := detect.Service{UUID: uuid}
	if hasChars {
		for _, c := range strings.Split(rest, ",") {
			if c = strings.TrimSpace(c); c != "" {
				svc.Characteristics = append(svc.Characteristics, c)
			}
		}
	}
	t.mu.Lock()
	t.services = append(t.services, svc)
	t.mu.Unlock()
}

func (t *Transport) flushServiceLocked() detect.Services {
	services := t.services
	t.services = nil
	return services
}

func splitScan(body string) (addr, name string) {
	addr, name, _ = strings.Cut(body, ",")
	return strings.TrimSpace(addr), strings.TrimSpace(name)
}

func (t *Transport) writeLine(cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return ErrPortClosed
	}
	_, err := t.port.Write([]byte(cmd + "\r\n"))
	return err
}
