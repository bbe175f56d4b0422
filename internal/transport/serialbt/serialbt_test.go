package serialbt

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openeuc/wheelcore/internal/detect"
)

type recordingHandler struct {
	mu       sync.Mutex
	services []detect.Services
	data     [][]byte
	dropped  []error
}

func (r *recordingHandler) HandleServicesDiscovered(s detect.Services) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = append(r.services, s)
}

func (r *recordingHandler) HandleData(raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, raw)
}

func (r *recordingHandler) HandleDisconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, err)
}

func TestParserSplitsLinesAndFrames(t *testing.T) {
	var lines []string
	var frames [][]byte
	p := newParser(
		func(s string) { lines = append(lines, s) },
		func(b []byte) { frames = append(frames, b) },
	)

	// A line, a binary frame, another line, all in one read.
	input := []byte("+CONNECTED\r\n")
	input = append(input, encodeFrame([]byte{0xAA, 0x55, 0x01})...)
	input = append(input, []byte("+ERR=boom\n")...)
	p.feed(input)

	if len(lines) != 2 || lines[0] != "+CONNECTED" || lines[1] != "+ERR=boom" {
		t.Fatalf("lines: %q", lines)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0xAA, 0x55, 0x01}) {
		t.Fatalf("frames: %x", frames)
	}
}

func TestParserSurvivesBytewiseDelivery(t *testing.T) {
	var frames [][]byte
	p := newParser(func(string) {}, func(b []byte) { frames = append(frames, b) })
	payload := []byte{0x5A, 0xA5, 0x06, 0x11, 0x3A}
	for _, b := range encodeFrame(payload) {
		p.feedByte(b)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Fatalf("frames: %x", frames)
	}
}

func TestParserRejectsOversizedFrameLength(t *testing.T) {
	called := false
	p := newParser(func(string) {}, func([]byte) { called = true })
	p.feed([]byte{stx, 0xFF, 0xFF})
	// Parser resets; a normal frame afterwards still decodes.
	p.feed(encodeFrame([]byte{0x01}))
	if !called {
		t.Fatalf("parser did not recover after bad length")
	}
}

func TestHandleLineServiceAccumulation(t *testing.T) {
	h := &recordingHandler{}
	tr := New(Config{Port: "/dev/null", Log: zerolog.Nop()}, h)

	tr.handleLine("+SVC=0000ffe0-0000-1000-8000-00805f9b34fb:0000ffe1-0000-1000-8000-00805f9b34fb")
	tr.handleLine("+SVC=0000180a-0000-1000-8000-00805f9b34fb")
	tr.handleLine("+SVCEND")

	if len(h.services) != 1 {
		t.Fatalf("service batches: %d", len(h.services))
	}
	got := h.services[0]
	if len(got) != 2 {
		t.Fatalf("services: %+v", got)
	}
	if got[0].UUID != "0000ffe0-0000-1000-8000-00805f9b34fb" || len(got[0].Characteristics) != 1 {
		t.Fatalf("first service: %+v", got[0])
	}

	// A second discovery starts from an empty set.
	tr.handleLine("+SVCEND")
	if len(h.services) != 2 || len(h.services[1]) != 0 {
		t.Fatalf("second batch: %+v", h.services)
	}
}

func TestHandleLineDisconnect(t *testing.T) {
	h := &recordingHandler{}
	tr := New(Config{Port: "/dev/null", Log: zerolog.Nop()}, h)
	tr.handleLine("+DISCONNECTED")
	if len(h.dropped) != 1 || h.dropped[0] != ErrLinkClosed {
		t.Fatalf("dropped: %v", h.dropped)
	}
}

func TestHandleLineScanReports(t *testing.T) {
	var addr, name string
	h := &recordingHandler{}
	tr := New(Config{
		Port: "/dev/null",
		Log:  zerolog.Nop(),
		OnScan: func(a, n string) {
			addr, name = a, n
		},
	}, h)
	tr.handleLine("+SCAN=AA:BB:CC:DD:EE:FF, KS-16X")
	if addr != "AA:BB:CC:DD:EE:FF" || name != "KS-16X" {
		t.Fatalf("scan: %q %q", addr, name)
	}
}

func TestEncodeFrame(t *testing.T) {
	got := encodeFrame([]byte{0x01, 0x02})
	want := []byte{stx, 0x00, 0x02, 0x01, 0x02}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame: %x", got)
	}
}
