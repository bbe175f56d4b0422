package begode

import (
	"testing"

	"github.com/openeuc/wheelcore/internal/protocol"
)

func frameA() []byte {
	f := make([]byte, frameLen)
	f[0], f[1] = 0x55, 0xAA
	f[2], f[3] = 0x1A, 0x40 // voltage 6720 against 16S reference
	f[4], f[5] = 0x05, 0xDC // speed 1500
	f[6], f[7], f[8], f[9] = 0xE2, 0x3A, 0x00, 0x01 // trip 123450, words swapped
	f[10], f[11] = 0x01, 0xF4                       // current 500
	f[12], f[13] = 0x09, 0x60                       // temperature 2400
	f[14], f[15] = 0x02, 0xBC                       // phase current 700
	f[18] = selectorA
	copy(f[20:], frameTail[:])
	return f
}

func frameB() []byte {
	f := make([]byte, frameLen)
	f[0], f[1] = 0x55, 0xAA
	f[2], f[3], f[4], f[5] = 0x84, 0x80, 0x00, 0x1E // total 2000000, words swapped
	f[6], f[7], f[8], f[9] = 1, 2, 3, 1
	f[10] = 40
	f[12], f[13] = 0x13, 0x88 // pwm 5000
	f[18] = selectorB
	copy(f[20:], frameTail[:])
	return f
}

func TestDecodePairGolden(t *testing.T) {
	d := New()
	cfg := protocol.Config{DeviceName: "GotWay_MSP_1234"}

	if out := d.Decode(frameA(), nil, cfg); out != nil {
		t.Fatalf("frame A alone must not emit a snapshot")
	}
	out := d.Decode(frameB(), nil, cfg)
	if out == nil || !out.Changed {
		t.Fatalf("frame B after A must emit changed telemetry")
	}
	st := out.State
	if st.Voltage != 10080 { // 6720 scaled for a 24S pack
		t.Fatalf("voltage: %d", st.Voltage)
	}
	if st.Speed != 1500 || st.Current != 500 || st.PhaseCurrent != 700 || st.Temperature != 2400 {
		t.Fatalf("tuple: s=%d c=%d pc=%d t=%d", st.Speed, st.Current, st.PhaseCurrent, st.Temperature)
	}
	if st.TripDistance != 123450 || st.TotalDistance != 2000000 {
		t.Fatalf("distances: trip=%d total=%d", st.TripDistance, st.TotalDistance)
	}
	if st.PWM != 5000 || st.TiltbackSpeed != 40 || st.PedalHardness != 1 {
		t.Fatalf("modes: pwm=%d tb=%d pedal=%d", st.PWM, st.TiltbackSpeed, st.PedalHardness)
	}
	if st.Power != 50400 || st.Battery != 100 {
		t.Fatalf("derived: power=%d battery=%d", st.Power, st.Battery)
	}
	if st.Model != "MSP" || !d.Ready() {
		t.Fatalf("model=%q ready=%v", st.Model, d.Ready())
	}
}

func TestStreamResyncAcrossNotifications(t *testing.T) {
	d := New()
	cfg := protocol.Config{DeviceName: "MCM5"}
	stream := append([]byte{0x00, 0x55, 0x13}, frameA()...) // leading garbage
	stream = append(stream, frameB()...)

	// Deliver in ragged chunks that never align with frame boundaries.
	var out *protocol.DecodedData
	for i := 0; i < len(stream); i += 7 {
		end := i + 7
		if end > len(stream) {
			end = len(stream)
		}
		if res := d.Decode(stream[i:end], nil, cfg); res != nil {
			out = res
		}
	}
	if out == nil || out.State.Voltage != 6720*20/16 {
		t.Fatalf("resync decode failed: %+v", out)
	}
}

func TestFrameBWithoutPendingA(t *testing.T) {
	d := New()
	if out := d.Decode(frameB(), nil, protocol.Config{}); out != nil {
		t.Fatalf("unpaired frame B must decode to nil")
	}
}

func TestLegacyModelDistanceScaling(t *testing.T) {
	d := New()
	out := decodePair(t, d, protocol.Config{DeviceName: "MCM2"})
	if out.State.TripDistance != 12345 || out.State.TotalDistance != 200000 {
		t.Fatalf("legacy distances: trip=%d total=%d", out.State.TripDistance, out.State.TotalDistance)
	}
}

func decodePair(t *testing.T, d *Decoder, cfg protocol.Config) *protocol.DecodedData {
	t.Helper()
	d.Decode(frameA(), nil, cfg)
	out := d.Decode(frameB(), nil, cfg)
	if out == nil {
		t.Fatalf("pair did not decode")
	}
	return out
}

func TestResetClearsPartialState(t *testing.T) {
	d := New()
	d.Decode(frameA(), nil, protocol.Config{})
	d.Reset()
	d.Reset()
	if out := d.Decode(frameB(), nil, protocol.Config{}); out != nil {
		t.Fatalf("reset must drop the pending half-frame")
	}
	if d.Ready() {
		t.Fatalf("reset decoder must not be ready")
	}
}

func TestCalibrateIsTwoOrderedWrites(t *testing.T) {
	d := New()
	writes := d.BuildCommand(protocol.Command{Op: protocol.OpCalibrate})
	if len(writes) != 2 || writes[0][0] != 'c' || writes[1][0] != 'y' {
		t.Fatalf("calibrate: %v", writes)
	}
	if got := d.BuildCommand(protocol.Command{Op: protocol.OpSetVolume}); len(got) != 0 {
		t.Fatalf("unsupported op must be silent, got %v", got)
	}
}
