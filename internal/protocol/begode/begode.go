// Package begode decodes the Begode/Gotway frame protocol: 24-byte frames
// behind a 55 AA header, telemetry split across an A/B frame pair selected
// by byte 18 and reassembled across notifications. The stream is not
// aligned to notification boundaries, so bytes accumulate and resync on the
// header.
package begode

import (
	"sync"
	"time"

	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/wire"
)

const (
	frameLen  = 24
	selectorA = 0x00
	selectorB = 0x04

	// One notification cannot legitimately queue more than a few frames;
	// anything beyond this is garbage and gets dropped on resync.
	maxBuffer = 256
)

var frameTail = [4]byte{0x18, 0x5A, 0x5A, 0x5A}

// partA is the telemetry half of a reassembled frame pair.
type partA struct {
	voltage int
	speed   int
	trip    uint32
	current int
	temp    int
	phase   int
	roll    int
}

type Decoder struct {
	mu       sync.Mutex
	buf      []byte
	pending  *partA
	sawVolts bool
	mdl      string
}

func New() *Decoder { return &Decoder{} }

func (d *Decoder) Family() protocol.WheelType { return protocol.Begode }

// Begode wheels stream telemetry unsolicited.
func (d *Decoder) KeepAliveInterval() time.Duration { return 0 }

func (d *Decoder) InitCommands() [][]byte { return nil }

func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
	d.pending = nil
	d.sawVolts = false
	d.mdl = ""
}

func (d *Decoder) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sawVolts && d.mdl != ""
}

func (d *Decoder) Decode(raw []byte, prior *model.VehicleState, cfg protocol.Config) *protocol.DecodedData {
	if len(raw) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = append(d.buf, raw...)
	if len(d.buf) > maxBuffer {
		d.buf = d.buf[len(d.buf)-maxBuffer:]
	}

	var out *protocol.DecodedData
	for {
		frame, ok := d.nextFrame()
		if !ok {
			break
		}
		if res := d.consumeFrame(frame, prior, cfg); res != nil {
			out = res
			prior = res.State
		}
	}
	return out
}

// nextFrame scans the accumulator for one well-formed frame, discarding
// leading garbage until a 55 AA header with the expected tail lines up.
func (d *Decoder) nextFrame() ([]byte, bool) {
	for {
		start := indexHeader(d.buf)
		if start < 0 {
			// Keep a trailing 0x55 in case the AA lands in the next chunk.
			if n := len(d.buf); n > 0 && d.buf[n-1] == 0x55 {
				d.buf = d.buf[n-1:]
			} else {
				d.buf = nil
			}
			return nil, false
		}
		d.buf = d.buf[start:]
		if len(d.buf) < frameLen {
			return nil, false
		}
		if [4]byte(d.buf[frameLen-4:frameLen]) != frameTail {
			d.buf = d.buf[2:]
			continue
		}
		frame := d.buf[:frameLen]
		d.buf = d.buf[frameLen:]
		return frame, true
	}
}

func indexHeader(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0x55 && b[i+1] == 0xAA {
			return i
		}
	}
	return -1
}

func (d *Decoder) consumeFrame(f []byte, prior *model.VehicleState, cfg protocol.Config) *protocol.DecodedData {
	switch f[18] {
	case selectorA:
		d.pending = &partA{
			voltage: int(wire.Uint16BE(f, 2)),
			speed:   int(wire.Int16BE(f, 4)),
			trip:    wire.Uint32WordsSwapped(f, 6),
			current: int(wire.Int16BE(f, 10)),
			temp:    int(wire.Int16BE(f, 12)),
			phase:   int(wire.Int16BE(f, 14)),
			roll:    int(wire.Int16BE(f, 16)),
		}
		return nil
	case selectorB:
		if d.pending == nil {
			return nil
		}
		a := d.pending
		d.pending = nil

		class := protocol.ClassFor(cfg.DeviceName, protocol.Class67)
		profile, _ := protocol.LookupModel(cfg.DeviceName)
		distDiv := int64(1)
		if profile.LegacyDistanceDiv10 {
			distDiv = 10
		}

		st := prior.Clone()
		st.UpdatedAt = time.Now()
		// Begode reports voltage against the 16S reference; higher classes
		// scale it up.
		st.Voltage = a.voltage * class.Cells() / 16
		st.Speed = a.speed
		st.Current = a.current
		st.PhaseCurrent = a.phase
		st.Temperature = a.temp
		st.Roll = a.roll
		st.TripDistance = int64(a.trip) / distDiv
		st.TotalDistance = int64(wire.Uint32WordsSwapped(f, 2)) / distDiv
		st.PedalHardness = int(f[6])
		st.AlarmOffLevel = int(f[7])
		st.LedMode = int(f[8])
		st.LightMode = int(f[9])
		st.TiltbackSpeed = int(f[10])
		st.PWM = int(wire.Int16BE(f, 12))
		st.Pitch = int(wire.Int16BE(f, 14))
		st.Temperature2 = int(wire.Int16BE(f, 16))
		st.Power = model.PowerFromVI(st.Voltage, st.Current)
		st.Battery = protocol.BatteryPercent(st.Voltage, class, cfg.BetterPercents)

		if profile.Model != "" {
			d.mdl = profile.Model
		} else {
			d.mdl = "Begode"
		}
		st.Model = d.mdl
		st.Name = cfg.DeviceName
		if st.Voltage > 0 {
			d.sawVolts = true
		}
		return &protocol.DecodedData{State: st, Changed: true}
	default:
		return nil
	}
}

// Begode control writes are short ASCII commands.
func (d *Decoder) BuildCommand(cmd protocol.Command) [][]byte {
	switch cmd.Op {
	case protocol.OpBeep:
		return [][]byte{{'b'}}
	case protocol.OpLightOn:
		return [][]byte{{'Q'}}
	case protocol.OpLightOff:
		return [][]byte{{'E'}}
	case protocol.OpSetStrobeMode:
		return [][]byte{{'T'}}
	case protocol.OpSetPedalHardness, protocol.OpSetPedalMode:
		switch cmd.Arg {
		case 0:
			return [][]byte{{'s'}}
		case 1:
			return [][]byte{{'f'}}
		default:
			return [][]byte{{'h'}}
		}
	case protocol.OpCalibrate:
		// Calibration requires an explicit confirm write.
		return [][]byte{{'c'}, {'y'}}
	case protocol.OpSetTiltbackSpeed, protocol.OpSetMaxSpeed:
		return [][]byte{{'W', 'Y', byte(cmd.Arg)}}
	case protocol.OpAlarmsOff:
		return [][]byte{{'u'}}
	case protocol.OpAlarmsOn:
		return [][]byte{{'o'}}
	case protocol.OpSetLedMode:
		return [][]byte{{'M', byte(cmd.Arg)}}
	}
	return nil
}
