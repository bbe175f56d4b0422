// Package inmotion decodes the InMotion frame protocol: an AA AA header
// followed by an escaped body (0xA5 prefixes any literal 0xAA/0xA5), a
// length-prefixed payload and an 8-bit additive checksum. Registers are
// little-endian throughout.
package inmotion

import (
	"fmt"
	"sync"
	"time"

	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/wire"
)

const (
	headerByte = 0xAA
	escapeByte = 0xA5

	cmdLive   = 0x01
	cmdTotals = 0x02
	cmdInfo   = 0x03
	cmdPoll   = 0x11

	cmdBeep     = 0x21
	cmdLight    = 0x22
	cmdPedal    = 0x23
	cmdCalib    = 0x24
	cmdMaxSpeed = 0x25
	cmdDrl      = 0x26
	cmdVolume   = 0x27
	cmdPowerOff = 0x28

	maxPayload = 64
)

var modelCodes = map[byte]string{
	1: "V8",
	2: "V10",
	3: "V11",
	4: "V12",
	5: "V13",
	6: "V5F",
}

// parser states for the incremental unescaper.
const (
	stateSeek = iota
	stateLen
	stateBody
)

type Decoder struct {
	mu sync.Mutex

	// unescaper state
	state     int
	headerRun int
	escaped   bool
	need      int
	body      []byte

	sawVolts bool
	mdl      string
	version  string
	serial   string
}

func New() *Decoder { return &Decoder{} }

func (d *Decoder) Family() protocol.WheelType { return protocol.InMotion }

// InMotion wheels answer polls rather than streaming; the keep-alive tick
// doubles as the telemetry request.
func (d *Decoder) KeepAliveInterval() time.Duration { return 500 * time.Millisecond }

func (d *Decoder) InitCommands() [][]byte {
	return [][]byte{encode(cmdInfo, nil), encode(cmdTotals, nil)}
}

func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = stateSeek
	d.headerRun = 0
	d.escaped = false
	d.need = 0
	d.body = nil
	d.sawVolts = false
	d.mdl, d.version, d.serial = "", "", ""
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

	var out *protocol.DecodedData
	for _, b := range raw {
		msg, ok := d.feed(b)
		if !ok {
			continue
		}
		if res := d.consume(msg, prior, cfg); res != nil {
			out = res
			prior = res.State
		}
	}
	return out
}

// feed advances the unescaping parser by one wire byte and returns a
// complete verified body (len, cmd, payload...) when one closes.
func (d *Decoder) feed(b byte) ([]byte, bool) {
	switch d.state {
	case stateSeek:
		if b == headerByte {
			d.headerRun++
			if d.headerRun == 2 {
				d.headerRun = 0
				d.escaped = false
				d.body = d.body[:0]
				d.state = stateLen
			}
		} else {
			d.headerRun = 0
		}
		return nil, false
	case stateLen, stateBody:
		if !d.escaped {
			if b == escapeByte {
				d.escaped = true
				return nil, false
			}
			if b == headerByte {
				// Unescaped header byte mid-message: restart sync.
				d.state = stateSeek
				d.headerRun = 1
				return nil, false
			}
		}
		d.escaped = false
		d.body = append(d.body, b)
		if d.state == stateLen {
			if int(b) > maxPayload {
				d.state = stateSeek
				return nil, false
			}
			// len + cmd + payload + checksum
			d.need = int(b) + 3
			d.state = stateBody
			return nil, false
		}
		if len(d.body) < d.need {
			return nil, false
		}
		d.state = stateSeek
		body := d.body[:len(d.body)-1]
		ck := d.body[len(d.body)-1]
		if byte(wire.Sum16(body)) != ck {
			return nil, false
		}
		return body, true
	}
	return nil, false
}

func (d *Decoder) consume(msg []byte, prior *model.VehicleState, cfg protocol.Config) *protocol.DecodedData {
	length, cmd := int(msg[0]), msg[1]
	payload := msg[2:]
	if len(payload) != length {
		return nil
	}

	st := prior.Clone()
	st.UpdatedAt = time.Now()
	out := &protocol.DecodedData{State: st}

	switch cmd {
	case cmdLive:
		if length < 16 {
			return nil
		}
		st.Voltage = int(wire.Uint16LE(payload, 0))
		st.Current = int(wire.Int16LE(payload, 2))
		st.Speed = int(wire.Int16LE(payload, 4))
		st.Roll = int(wire.Int16LE(payload, 6))
		st.Pitch = int(wire.Int16LE(payload, 8))
		st.Temperature = int(wire.Int16LE(payload, 10))
		st.TripDistance = int64(wire.Uint32LE(payload, 12))
		st.Power = model.PowerFromVI(st.Voltage, st.Current)
		st.Battery = protocol.BatteryPercent(st.Voltage, protocol.ClassFor(cfg.DeviceName, protocol.Class84), cfg.BetterPercents)
		if st.Voltage > 0 {
			d.sawVolts = true
		}
		out.Changed = true
	case cmdTotals:
		if length < 10 {
			return nil
		}
		st.TotalDistance = int64(wire.Uint32LE(payload, 0))
		st.TripDistance = int64(wire.Uint32LE(payload, 4))
		st.LightMode = int(payload[8])
		st.PedalHardness = int(payload[9])
		out.Changed = true
	case cmdInfo:
		if length < 12 {
			return nil
		}
		if m, ok := modelCodes[payload[0]]; ok {
			d.mdl = m
		}
		d.version = versionString(payload[1], payload[2], payload[3])
		d.serial = asciiField(payload[4:12])
	default:
		return nil
	}

	if d.mdl == "" {
		if p, ok := protocol.LookupModel(cfg.DeviceName); ok {
			d.mdl = p.Model
		}
	}
	st.Model = d.mdl
	st.Name = cfg.DeviceName
	st.Version = d.version
	st.Serial = d.serial
	return out
}

func (d *Decoder) BuildCommand(cmd protocol.Command) [][]byte {
	switch cmd.Op {
	case protocol.OpBeep:
		return [][]byte{encode(cmdBeep, []byte{0x01})}
	case protocol.OpLightOn:
		return [][]byte{encode(cmdLight, []byte{0x01})}
	case protocol.OpLightOff:
		return [][]byte{encode(cmdLight, []byte{0x00})}
	case protocol.OpSetDrlMode:
		return [][]byte{encode(cmdDrl, []byte{byte(cmd.Arg)})}
	case protocol.OpSetPedalTilt, protocol.OpSetPedalHardness:
		return [][]byte{encode(cmdPedal, []byte{byte(cmd.Arg)})}
	case protocol.OpCalibrate:
		return [][]byte{encode(cmdCalib, []byte{0x01, 0x00})}
	case protocol.OpSetMaxSpeed:
		return [][]byte{encode(cmdMaxSpeed, []byte{byte(cmd.Arg), byte(cmd.Arg >> 8)})}
	case protocol.OpSetVolume:
		return [][]byte{encode(cmdVolume, []byte{byte(cmd.Arg)})}
	case protocol.OpPowerOff:
		return [][]byte{encode(cmdPowerOff, []byte{0x01})}
	case protocol.OpRequestVersion:
		return [][]byte{encode(cmdInfo, nil)}
	}
	return nil
}

// KeepAliveWrite is the poll message sent on each keep-alive tick.
func (d *Decoder) KeepAliveWrite() []byte { return encode(cmdPoll, nil) }

// encode frames and escapes one outbound message.
func encode(cmd byte, payload []byte) []byte {
	body := make([]byte, 0, len(payload)+3)
	body = append(body, byte(len(payload)), cmd)
	body = append(body, payload...)
	body = append(body, byte(wire.Sum16(body)))

	out := make([]byte, 0, len(body)+4)
	out = append(out, headerByte, headerByte)
	for _, b := range body {
		if b == headerByte || b == escapeByte {
			out = append(out, escapeByte)
		}
		out = append(out, b)
	}
	return out
}

func versionString(maj, min, patch byte) string {
	return fmt.Sprintf("%d.%d.%d", maj, min, patch)
}

func asciiField(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}
