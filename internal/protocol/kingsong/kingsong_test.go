package kingsong

import (
	"testing"

	"github.com/openeuc/wheelcore/internal/protocol"
)

var cfg = protocol.Config{DeviceName: "KS-16X_0042"}

func liveFrame() []byte {
	f := make([]byte, 20)
	f[0], f[1] = 0xAA, 0x55
	f[2], f[3] = 0x20, 0xD0 // voltage 8400 (84.00V)
	f[4], f[5] = 0x09, 0xF6 // speed 2550 (25.50 km/h)
	f[6], f[7], f[8], f[9] = 0x00, 0x01, 0xE2, 0x40 // total 123456 m
	f[10], f[11] = 0x6A, 0xFF                       // current -150 little-endian
	f[12], f[13] = 0x0A, 0x5A                       // temperature 2650
	f[14] = 2                                       // pedal hardness
	f[16] = 0xA9
	f[17], f[18], f[19] = 0x14, 0x5A, 0x5A
	return f
}

func TestDecodeLiveFrameGolden(t *testing.T) {
	d := New()
	out := d.Decode(liveFrame(), nil, cfg)
	if out == nil || out.State == nil {
		t.Fatalf("live frame not decoded")
	}
	st := out.State
	if st.Voltage != 8400 || st.Speed != 2550 || st.Current != -150 || st.Temperature != 2650 {
		t.Fatalf("telemetry tuple: v=%d s=%d c=%d t=%d", st.Voltage, st.Speed, st.Current, st.Temperature)
	}
	if st.TotalDistance != 123456 {
		t.Fatalf("total distance: %d", st.TotalDistance)
	}
	if st.Power != -12600 {
		t.Fatalf("derived power: %d", st.Power)
	}
	if st.Battery != 100 {
		t.Fatalf("battery: %d", st.Battery)
	}
	if st.Model != "KS-16X" {
		t.Fatalf("model: %q", st.Model)
	}
	if !out.Changed {
		t.Fatalf("live frame must report changed telemetry")
	}
	if !d.Ready() {
		t.Fatalf("nonzero voltage plus resolved model must make decoder ready")
	}
}

func TestDecodeShortOrForeignInput(t *testing.T) {
	d := New()
	for _, raw := range [][]byte{nil, {}, {0xAA}, make([]byte, 19), {0x55, 0xAA, 0, 0}} {
		if out := d.Decode(raw, nil, cfg); out != nil {
			t.Fatalf("expected nil for %v", raw)
		}
	}
	unknown := liveFrame()
	unknown[16] = 0x77
	if out := d.Decode(unknown, nil, cfg); out != nil {
		t.Fatalf("unknown frame type must decode to nil")
	}
	if d.Ready() {
		t.Fatalf("rejected input must not make decoder ready")
	}
}

func TestNameFrameResolvesModel(t *testing.T) {
	d := New()
	f := make([]byte, 20)
	f[0], f[1] = 0xAA, 0x55
	copy(f[2:], "KS-S18\x00\x00")
	f[16] = 0xB3
	out := d.Decode(f, nil, protocol.Config{})
	if out == nil {
		t.Fatalf("name frame not decoded")
	}
	if out.State.Name != "KS-S18" || out.State.Model != "KS-S18" {
		t.Fatalf("name=%q model=%q", out.State.Name, out.State.Model)
	}
	if out.Changed {
		t.Fatalf("text frames are not meaningful telemetry")
	}
	if d.Ready() {
		t.Fatalf("model alone must not promote readiness")
	}
}

func TestBmsCellPageBounds(t *testing.T) {
	d := New()
	f := make([]byte, 20)
	f[0], f[1] = 0xAA, 0x55
	f[16] = 0xF1
	f[17] = 0xFF // hostile page index
	if out := d.Decode(f, nil, cfg); out == nil || out.Changed {
		t.Fatalf("hostile page must be dropped without effect, got %+v", out)
	}

	f[17] = 0
	for i := 0; i < 7; i++ {
		mv := 4000 + i
		f[2+i*2] = byte(mv)
		f[3+i*2] = byte(mv >> 8)
	}
	out := d.Decode(f, nil, cfg)
	if out == nil || !out.Changed {
		t.Fatalf("valid cell page rejected")
	}
	if f[16] != 0xF1 {
		t.Fatalf("cell layout ran into the selector byte")
	}
	bms := out.State.BMS1
	if bms.Cells[0] != 4000 || bms.Cells[6] != 4006 {
		t.Fatalf("cells: %v", bms.Cells[:7])
	}
	if bms.MinCell != 4000 || bms.MaxCell != 4006 || bms.MaxCellIndex != 6 {
		t.Fatalf("stats: min=%d max=%d@%d", bms.MinCell, bms.MaxCell, bms.MaxCellIndex)
	}
}

func TestLegacySpeedScaling(t *testing.T) {
	d := New()
	f := liveFrame()
	f[4], f[5] = 0x00, 0x80 // 128 motor-rev units

	out := d.Decode(f, nil, protocol.Config{DeviceName: "KS-18L"})
	if out == nil || out.State == nil {
		t.Fatalf("live frame not decoded")
	}
	if out.State.Speed != 2400 {
		t.Fatalf("scaled speed: %d", out.State.Speed)
	}

	// Other models take the field at face value.
	d.Reset()
	out = d.Decode(f, nil, cfg)
	if out.State.Speed != 128 {
		t.Fatalf("unscaled speed: %d", out.State.Speed)
	}
}

func TestResetIdempotent(t *testing.T) {
	d := New()
	d.Reset()
	if d.Ready() {
		t.Fatalf("fresh decoder must not be ready")
	}
	d.Decode(liveFrame(), nil, cfg)
	d.Reset()
	d.Reset()
	if d.Ready() {
		t.Fatalf("reset must clear readiness")
	}
}

func TestBuildCommandSurface(t *testing.T) {
	d := New()
	writes := d.BuildCommand(protocol.Command{Op: protocol.OpBeep})
	if len(writes) != 1 || writes[0][16] != 0x88 {
		t.Fatalf("beep encoding: %v", writes)
	}
	if writes := d.BuildCommand(protocol.Command{Op: protocol.OpSetFanMode}); len(writes) != 0 {
		t.Fatalf("unsupported op must encode to nothing, got %v", writes)
	}
	hard := d.BuildCommand(protocol.Command{Op: protocol.OpSetPedalHardness, Arg: 3})
	if len(hard) != 1 || hard[0][2] != 3 || hard[0][16] != 0x87 {
		t.Fatalf("pedal hardness encoding: %v", hard)
	}
}
