// Package veteran decodes the Veteran/Leaperkim frame protocol: a three-byte
// DC 5A 5C header, a length byte, and a fixed 32-byte payload with no
// checksum. Telemetry words are big-endian except the two distance dwords,
// which arrive little-endian.
package veteran

import (
	"fmt"
	"sync"
	"time"

	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/wire"
)

const (
	payloadLen = 32
	frameLen   = 4 + payloadLen
	maxBuffer  = 256
)

var header = [3]byte{0xDC, 0x5A, 0x5C}

type Decoder struct {
	mu       sync.Mutex
	buf      []byte
	sawVolts bool
	mdl      string
	version  string
}

func New() *Decoder { return &Decoder{} }

func (d *Decoder) Family() protocol.WheelType { return protocol.Veteran }

// The wheel streams one frame per notification window unsolicited.
func (d *Decoder) KeepAliveInterval() time.Duration { return 0 }

func (d *Decoder) InitCommands() [][]byte { return nil }

func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
	d.sawVolts = false
	d.mdl = ""
	d.version = ""
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
		out = d.consumeFrame(frame, prior, cfg)
		if out != nil {
			prior = out.State
		}
	}
	return out
}

func (d *Decoder) nextFrame() ([]byte, bool) {
	for {
		start := indexHeader(d.buf)
		if start < 0 {
			// Keep a possible header prefix straddling the chunk boundary.
			keep := len(d.buf)
			if keep > 2 {
				keep = 2
			}
			d.buf = d.buf[len(d.buf)-keep:]
			return nil, false
		}
		d.buf = d.buf[start:]
		if len(d.buf) < 4 {
			return nil, false
		}
		if d.buf[3] != payloadLen {
			d.buf = d.buf[3:]
			continue
		}
		if len(d.buf) < frameLen {
			return nil, false
		}
		frame := d.buf[:frameLen]
		d.buf = d.buf[frameLen:]
		return frame, true
	}
}

func indexHeader(b []byte) int {
	for i := 0; i+2 < len(b); i++ {
		if b[i] == header[0] && b[i+1] == header[1] && b[i+2] == header[2] {
			return i
		}
	}
	return -1
}

func (d *Decoder) consumeFrame(f []byte, prior *model.VehicleState, cfg protocol.Config) *protocol.DecodedData {
	class := protocol.ClassFor(cfg.DeviceName, protocol.Class100)

	st := prior.Clone()
	st.UpdatedAt = time.Now()
	st.Voltage = int(wire.Uint16BE(f, 4))
	st.Speed = int(wire.Int16BE(f, 6))
	st.TripDistance = int64(wire.Uint32LE(f, 8))
	st.TotalDistance = int64(wire.Uint32LE(f, 12))
	st.Current = int(wire.Int16BE(f, 16))
	st.PhaseCurrent = int(wire.Int16BE(f, 18))
	st.Temperature = int(wire.Int16BE(f, 20))
	st.PedalHardness = int(wire.Uint16BE(f, 22))
	st.Roll = int(wire.Int16BE(f, 24))
	st.PWM = int(wire.Int16BE(f, 26))
	st.Power = model.PowerFromVI(st.Voltage, st.Current)
	st.Battery = protocol.BatteryPercent(st.Voltage, class, cfg.BetterPercents)

	if v := wire.Uint16BE(f, 28); v > 0 {
		d.version = fmt.Sprintf("%d.%d.%d", v/1000, (v/10)%100, v%10)
	}
	if p, ok := protocol.LookupModel(cfg.DeviceName); ok {
		d.mdl = p.Model
	} else {
		d.mdl = "Veteran"
	}
	st.Model = d.mdl
	st.Name = cfg.DeviceName
	st.Version = d.version
	if st.Voltage > 0 {
		d.sawVolts = true
	}
	return &protocol.DecodedData{State: st, Changed: true}
}

func (d *Decoder) BuildCommand(cmd protocol.Command) [][]byte {
	switch cmd.Op {
	case protocol.OpBeep:
		return [][]byte{[]byte("b")}
	case protocol.OpLightOn:
		return [][]byte{[]byte("SetLightON")}
	case protocol.OpLightOff:
		return [][]byte{[]byte("SetLightOFF")}
	case protocol.OpSetPedalHardness, protocol.OpSetPedalMode:
		return [][]byte{[]byte(fmt.Sprintf("SETFOOT,%d", cmd.Arg))}
	case protocol.OpSetMaxSpeed, protocol.OpSetTiltbackSpeed:
		return [][]byte{[]byte(fmt.Sprintf("WHEELSPEED,%d", cmd.Arg))}
	case protocol.OpResetTrip:
		return [][]byte{[]byte("CLEARMETER")}
	case protocol.OpCalibrate:
		return [][]byte{[]byte("CALIBRATION")}
	}
	return nil
}
