package ninebot

import (
	"testing"

	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/wire"
)

var cfg = protocol.Config{DeviceName: "Ninebot One E+"}

func reply(arg byte, payload []byte) []byte {
	body := make([]byte, 0, 4+len(payload))
	body = append(body, byte(len(payload)), srcWheel, cmdReply, arg)
	body = append(body, payload...)
	ck := wire.Sum16(body) ^ 0xFFFF
	out := append([]byte{0x55, 0xAA}, body...)
	return append(out, byte(ck), byte(ck>>8))
}

func livePayload() []byte {
	p := make([]byte, liveLen)
	p[2], p[3] = 72, 0 // battery percent, wheel-reported
	p[4], p[5] = 0x9A, 0x02 // speed 666
	p[6] = 0xD2 // trip 1234
	p[7] = 0x04
	p[10], p[11], p[12] = 0xA0, 0x86, 0x01 // total 100000
	p[14], p[15] = 0x2C, 0x01              // current 300
	p[16], p[17] = 0xB4, 0x16              // voltage 5812
	p[18], p[19] = 0xFC, 0x08              // temperature 2300
	return p
}

func TestDecodeLiveBlockGolden(t *testing.T) {
	d := New()
	out := d.Decode(reply(regLive, livePayload()), nil, cfg)
	if out == nil || !out.Changed {
		t.Fatalf("live block not decoded")
	}
	st := out.State
	if st.Voltage != 5812 || st.Speed != 666 || st.Current != 300 || st.Temperature != 2300 {
		t.Fatalf("tuple: v=%d s=%d c=%d t=%d", st.Voltage, st.Speed, st.Current, st.Temperature)
	}
	if st.Battery != 72 || st.TripDistance != 1234 || st.TotalDistance != 100000 {
		t.Fatalf("battery=%d trip=%d total=%d", st.Battery, st.TripDistance, st.TotalDistance)
	}
	if st.Power != 17436 { // 58.12V * 3.00A
		t.Fatalf("power=%d", st.Power)
	}
	if st.Model != "Ninebot One E+" || !d.Ready() {
		t.Fatalf("model=%q ready=%v", st.Model, d.Ready())
	}
}

func TestSerialAndVersionReplies(t *testing.T) {
	d := New()
	out := d.Decode(reply(regSerial, []byte("N1E+42000000A1")), nil, cfg)
	if out == nil || out.State.Serial != "N1E+42000000A1" {
		t.Fatalf("serial reply: %+v", out)
	}
	out = d.Decode(reply(regVersion, []byte{0x34, 0x01}), nil, cfg)
	if out == nil || out.State.Version != "1.3.4" {
		t.Fatalf("version reply: %+v", out)
	}
	if d.Ready() {
		t.Fatalf("identification alone must not promote readiness")
	}
}

func TestChecksumAndResync(t *testing.T) {
	d := New()
	bad := reply(regLive, livePayload())
	bad[len(bad)-2] ^= 0xFF
	if out := d.Decode(bad, nil, cfg); out != nil {
		t.Fatalf("corrupt checksum must not decode")
	}
	stream := append([]byte{0x55, 0x01, 0x00}, reply(regLive, livePayload())...)
	if out := d.Decode(stream, nil, cfg); out == nil {
		t.Fatalf("resync decode failed")
	}
}

func TestShortInputReturnsNil(t *testing.T) {
	d := New()
	for _, raw := range [][]byte{nil, {0x55}, {0x55, 0xAA}, {0x55, 0xAA, 0x05}} {
		if out := d.Decode(raw, nil, cfg); out != nil {
			t.Fatalf("expected nil for % x", raw)
		}
	}
}

func TestResetIdempotent(t *testing.T) {
	d := New()
	d.Reset()
	d.Decode(reply(regLive, livePayload()), nil, cfg)
	d.Reset()
	d.Reset()
	if d.Ready() {
		t.Fatalf("reset decoder must not be ready")
	}
}

func TestBuildCommandRegisters(t *testing.T) {
	d := New()
	lock := d.BuildCommand(protocol.Command{Op: protocol.OpLock})
	if len(lock) != 1 || lock[0][5] != regLock {
		t.Fatalf("lock write: % x", lock)
	}
	if got := d.BuildCommand(protocol.Command{Op: protocol.OpSetPedalHardness}); len(got) != 0 {
		t.Fatalf("unsupported op must be silent")
	}
	limit := d.BuildCommand(protocol.Command{Op: protocol.OpSetLimitedSpeed, Arg: 25})
	if len(limit) != 1 || limit[0][6] != 25 {
		t.Fatalf("limit write: % x", limit)
	}
}
