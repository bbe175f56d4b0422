// Package ninebot decodes the classic Ninebot register protocol: 55 AA
// framing with a length byte, little-endian registers read in blocks, and a
// 16-bit additive checksum XORed with 0xFFFF. No key negotiation; the wheel
// answers read requests directly.
package ninebot

import (
	"fmt"
	"sync"
	"time"

	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/wire"
)

const (
	srcApp   = 0x11
	srcWheel = 0x21

	cmdRead  = 0x01
	cmdWrite = 0x03
	cmdReply = 0x04

	regSerial  = 0x10
	regVersion = 0x1A
	regLive    = 0xB0
	regLock    = 0x70
	regLimit   = 0x72
	regCruise  = 0x7C
	regLed     = 0x7D
	regBeep    = 0x7E

	liveLen    = 20
	maxPayload = 64
	maxBuffer  = 512
)

type Decoder struct {
	mu       sync.Mutex
	buf      []byte
	serial   string
	version  string
	mdl      string
	sawVolts bool
}

func New() *Decoder { return &Decoder{} }

func (d *Decoder) Family() protocol.WheelType { return protocol.Ninebot }

// The wheel only answers polls; each keep-alive tick requests the live block.
func (d *Decoder) KeepAliveInterval() time.Duration { return 500 * time.Millisecond }

func (d *Decoder) KeepAliveWrite() []byte {
	return request(cmdRead, regLive, []byte{liveLen})
}

func (d *Decoder) InitCommands() [][]byte {
	return [][]byte{
		request(cmdRead, regSerial, []byte{14}),
		request(cmdRead, regVersion, []byte{2}),
		request(cmdRead, regLive, []byte{liveLen}),
	}
}

func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
	d.serial, d.version, d.mdl = "", "", ""
	d.sawVolts = false
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
		body, ok := d.nextMessage()
		if !ok {
			break
		}
		if res := d.consume(body, prior, cfg); res != nil {
			out = res
			prior = res.State
		}
	}
	return out
}

// nextMessage returns one checksum-verified body: len src cmd arg payload...
func (d *Decoder) nextMessage() ([]byte, bool) {
	for {
		start := indexHeader(d.buf)
		if start < 0 {
			if n := len(d.buf); n > 0 && d.buf[n-1] == 0x55 {
				d.buf = d.buf[n-1:]
			} else {
				d.buf = nil
			}
			return nil, false
		}
		d.buf = d.buf[start:]
		if len(d.buf) < 3 {
			return nil, false
		}
		plen := int(d.buf[2])
		if plen > maxPayload {
			d.buf = d.buf[2:]
			continue
		}
		total := 2 + 4 + plen + 2
		if len(d.buf) < total {
			return nil, false
		}
		frame := d.buf[:total]
		body := frame[2 : total-2]
		if wire.Uint16LE(frame, total-2) != wire.Sum16(body)^0xFFFF {
			d.buf = d.buf[2:]
			continue
		}
		d.buf = d.buf[total:]
		return append([]byte(nil), body...), true
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

func (d *Decoder) consume(body []byte, prior *model.VehicleState, cfg protocol.Config) *protocol.DecodedData {
	length, src, cmd, arg := int(body[0]), body[1], body[2], body[3]
	payload := body[4:]
	if src != srcWheel || cmd != cmdReply || len(payload) != length {
		return nil
	}

	st := prior.Clone()
	st.UpdatedAt = time.Now()
	out := &protocol.DecodedData{State: st}

	switch arg {
	case regSerial:
		if length < 14 {
			return nil
		}
		d.serial = asciiField(payload[:14])
	case regVersion:
		if length < 2 {
			return nil
		}
		v := wire.Uint16LE(payload, 0)
		d.version = versionString(v)
	case regLive:
		if length < liveLen {
			return nil
		}
		// The wheel reports its own battery percentage; no curve needed.
		st.Battery = int(wire.Uint16LE(payload, 2))
		st.Speed = int(wire.Int16LE(payload, 4))
		st.TripDistance = int64(wire.Uint32LE(payload, 6))
		st.TotalDistance = int64(wire.Uint32LE(payload, 10))
		st.Current = int(wire.Int16LE(payload, 14))
		st.Voltage = int(wire.Uint16LE(payload, 16))
		st.Temperature = int(wire.Int16LE(payload, 18))
		st.Power = model.PowerFromVI(st.Voltage, st.Current)
		if st.Voltage > 0 {
			d.sawVolts = true
		}
		out.Changed = true
	default:
		return nil
	}

	if d.mdl == "" {
		if p, ok := protocol.LookupModel(cfg.DeviceName); ok {
			d.mdl = p.Model
		} else {
			d.mdl = "Ninebot One"
		}
	}
	st.Model = d.mdl
	st.Name = cfg.DeviceName
	st.Serial = d.serial
	st.Version = d.version
	return out
}

func (d *Decoder) BuildCommand(cmd protocol.Command) [][]byte {
	switch cmd.Op {
	case protocol.OpBeep:
		return [][]byte{request(cmdWrite, regBeep, []byte{0x01, 0x00})}
	case protocol.OpLock:
		return [][]byte{request(cmdWrite, regLock, []byte{0x01, 0x00})}
	case protocol.OpUnlock:
		return [][]byte{request(cmdWrite, regLock, []byte{0x00, 0x00})}
	case protocol.OpSetLimitedSpeed, protocol.OpSetMaxSpeed:
		return [][]byte{request(cmdWrite, regLimit, []byte{byte(cmd.Arg), byte(cmd.Arg >> 8)})}
	case protocol.OpSetCruiseMode:
		return [][]byte{request(cmdWrite, regCruise, []byte{byte(cmd.Arg), 0x00})}
	case protocol.OpSetLedMode:
		return [][]byte{request(cmdWrite, regLed, []byte{byte(cmd.Arg), 0x00})}
	case protocol.OpRequestSerial:
		return [][]byte{request(cmdRead, regSerial, []byte{14})}
	}
	return nil
}

func request(cmd, arg byte, payload []byte) []byte {
	body := make([]byte, 0, 4+len(payload))
	body = append(body, byte(len(payload)), srcApp, cmd, arg)
	body = append(body, payload...)
	ck := wire.Sum16(body) ^ 0xFFFF
	out := append([]byte{0x55, 0xAA}, body...)
	return append(out, byte(ck), byte(ck>>8))
}

func versionString(v uint16) string {
	return fmt.Sprintf("%d.%d.%d", v>>8, (v>>4)&0x0F, v&0x0F)
}

func asciiField(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}
