// Package ninebotz decodes the Ninebot Z family protocol. Frames carry a
// CAN-like message (source, destination, command, parameter, length-prefixed
// payload) behind a 5A A5 header, closed by a 16-bit additive checksum XORed
// with 0xFFFF. Payload bytes after the first are XORed against a 16-byte key
// negotiated at link start, and a strictly ordered handshake walks the wheel
// through identification, parameters and both BMS packs before the decoder
// reports ready.
package ninebotz

import (
	"fmt"
	"sync"
	"time"

	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/wire"
)

// Bus addresses.
const (
	addrApp    = 0x3A
	addrWheel  = 0x11
	addrBms1   = 0x22
	addrBms2   = 0x23
	addrKeyGen = 0x00
)

// Commands.
const (
	cmdRead  = 0x01
	cmdWrite = 0x03
	cmdReply = 0x04
	cmdKey   = 0x5B
)

// Registers (read/write parameter byte).
const (
	regSerial   = 0x10
	regVersion  = 0x1A
	regParams1  = 0x20
	regParams2  = 0x2C
	regParams3  = 0x40
	regLive     = 0xB0
	regBeep     = 0x60
	regLight    = 0x62
	regLock     = 0x70
	regLimit    = 0x72
	regCalib    = 0x74
	regBmsSn    = 0x10
	regBmsLife  = 0x30
	regBmsCells = 0x40
)

const (
	keyLen     = 16
	zCellCount = 16
	maxPayload = 64
	maxBuffer  = 512
)

// Stage is the handshake-progress tag. It only moves forward, one step per
// recognized response.
type Stage uint8

const (
	StageInit Stage = iota
	StageWaitKey
	StageSerialNumber
	StageVersion
	StageParams1
	StageParams2
	StageParams3
	StageBms1Sn
	StageBms1Life
	StageBms1Cells
	StageBms2Sn
	StageBms2Life
	StageBms2Cells
	StageReady
)

func (s Stage) String() string {
	names := [...]string{
		"init", "wait-key", "serial-number", "version",
		"params1", "params2", "params3",
		"bms1-sn", "bms1-life", "bms1-cells",
		"bms2-sn", "bms2-life", "bms2-cells", "ready",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "invalid"
}

type Decoder struct {
	mu sync.Mutex

	buf     []byte
	stage   Stage
	key     [keyLen]byte
	haveKey bool

	serial   string
	version  string
	mdl      string
	bms1     model.BmsSnapshot
	bms2     model.BmsSnapshot
	sawVolts bool
}

func New() *Decoder { return &Decoder{} }

func (d *Decoder) Family() protocol.WheelType { return protocol.NinebotZ }

// The Z family answers polls only; the keep-alive tick re-sends the request
// for the current stage (the live-data poll once the handshake is done).
func (d *Decoder) KeepAliveInterval() time.Duration { return 250 * time.Millisecond }

func (d *Decoder) InitCommands() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stage == StageInit {
		d.stage = StageWaitKey
	}
	return [][]byte{d.stageRequest()}
}

// KeepAliveWrite re-issues the outstanding request for the current stage.
func (d *Decoder) KeepAliveWrite() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stageRequest()
}

func (d *Decoder) Stage() Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage
}

func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
	d.stage = StageInit
	d.key = [keyLen]byte{}
	d.haveKey = false
	d.serial, d.version, d.mdl = "", "", ""
	d.bms1 = model.BmsSnapshot{}
	d.bms2 = model.BmsSnapshot{}
	d.sawVolts = false
}

// Ready is gated on the terminal handshake stage; by then serial, version
// and both BMS packs have been observed.
func (d *Decoder) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage == StageReady
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
		msg, ok := d.nextMessage()
		if !ok {
			break
		}
		if res := d.consume(msg, prior, cfg); res != nil {
			out = res
			prior = res.State
		}
	}
	return out
}

// message is one parsed and decrypted bus message.
type message struct {
	src, dst, cmd, arg byte
	payload            []byte
}

func (d *Decoder) nextMessage() (message, bool) {
	for {
		start := indexHeader(d.buf)
		if start < 0 {
			if n := len(d.buf); n > 0 && d.buf[n-1] == 0x5A {
				d.buf = d.buf[n-1:]
			} else {
				d.buf = nil
			}
			return message{}, false
		}
		d.buf = d.buf[start:]
		if len(d.buf) < 3 {
			return message{}, false
		}
		plen := int(d.buf[2])
		if plen > maxPayload {
			d.buf = d.buf[2:]
			continue
		}
		total := 2 + 5 + plen + 2 // header, len+src+dst+cmd+arg, payload, checksum
		if len(d.buf) < total {
			return message{}, false
		}
		frame := d.buf[:total]
		body := frame[2 : total-2]
		want := wire.Sum16(body) ^ 0xFFFF
		got := wire.Uint16LE(frame, total-2)
		if got != want {
			d.buf = d.buf[2:]
			continue
		}
		d.buf = d.buf[total:]

		msg := message{src: body[1], dst: body[2], cmd: body[3], arg: body[4]}
		payload := append([]byte(nil), body[5:]...)
		if msg.cmd != cmdKey && d.haveKey {
			crypt(payload, d.key[:])
		}
		msg.payload = payload
		return msg, true
	}
}

func indexHeader(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0x5A && b[i+1] == 0xA5 {
			return i
		}
	}
	return -1
}

// consume handles one message: handshake responses advance the stage tag in
// order, anything out of order is ignored rather than guessed at.
func (d *Decoder) consume(m message, prior *model.VehicleState, cfg protocol.Config) *protocol.DecodedData {
	if m.dst != addrApp {
		return nil
	}

	st := prior.Clone()
	st.UpdatedAt = time.Now()
	out := &protocol.DecodedData{State: st}

	advance := func(next Stage) {
		d.stage = next
		if req := d.stageRequest(); req != nil {
			out.Commands = append(out.Commands, req)
		}
	}

	switch {
	case m.cmd == cmdKey:
		if d.stage != StageWaitKey || len(m.payload) < keyLen {
			return nil
		}
		copy(d.key[:], m.payload[:keyLen])
		d.haveKey = true
		advance(StageSerialNumber)
	case m.cmd == cmdReply && m.src == addrWheel && m.arg == regSerial:
		if d.stage != StageSerialNumber || len(m.payload) < 14 {
			return nil
		}
		d.serial = asciiField(m.payload[:14])
		advance(StageVersion)
	case m.cmd == cmdReply && m.src == addrWheel && m.arg == regVersion:
		if d.stage != StageVersion || len(m.payload) < 2 {
			return nil
		}
		v := wire.Uint16LE(m.payload, 0)
		d.version = fmt.Sprintf("%d.%d.%d", v>>8, (v>>4)&0x0F, v&0x0F)
		advance(StageParams1)
	case m.cmd == cmdReply && m.src == addrWheel && m.arg == regParams1:
		if d.stage != StageParams1 || len(m.payload) < 6 {
			return nil
		}
		st.TiltbackSpeed = int(wire.Uint16LE(m.payload, 0))
		advance(StageParams2)
	case m.cmd == cmdReply && m.src == addrWheel && m.arg == regParams2:
		if d.stage != StageParams2 || len(m.payload) < 6 {
			return nil
		}
		st.LightMode = int(m.payload[0])
		st.LedMode = int(m.payload[1])
		st.PedalHardness = int(m.payload[2])
		st.AlarmOffLevel = int(m.payload[3])
		advance(StageParams3)
	case m.cmd == cmdReply && m.src == addrWheel && m.arg == regParams3:
		if d.stage != StageParams3 || len(m.payload) < 6 {
			return nil
		}
		advance(StageBms1Sn)
	case m.cmd == cmdReply && m.src == addrBms1:
		if !d.bmsReply(&d.bms1, m, StageBms1Sn, StageBms2Sn) {
			return nil
		}
		out.Commands = append(out.Commands, d.stageRequest())
	case m.cmd == cmdReply && m.src == addrBms2:
		if !d.bmsReply(&d.bms2, m, StageBms2Sn, StageReady) {
			return nil
		}
		out.Commands = append(out.Commands, d.stageRequest())
	case m.cmd == cmdReply && m.src == addrWheel && m.arg == regLive:
		if len(m.payload) < 20 {
			return nil
		}
		st.Voltage = int(wire.Uint16LE(m.payload, 0))
		st.Current = int(wire.Int16LE(m.payload, 2))
		st.Speed = int(wire.Int16LE(m.payload, 4))
		st.Temperature = int(wire.Int16LE(m.payload, 6))
		st.TripDistance = int64(wire.Uint32LE(m.payload, 8))
		st.TotalDistance = int64(wire.Uint32LE(m.payload, 12))
		st.PWM = int(wire.Int16LE(m.payload, 16))
		st.Temperature2 = int(wire.Int16LE(m.payload, 18))
		st.Power = model.PowerFromVI(st.Voltage, st.Current)
		st.Battery = protocol.BatteryPercent(st.Voltage, protocol.ClassFor(cfg.DeviceName, protocol.Class67), cfg.BetterPercents)
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
			d.mdl = "Ninebot Z"
		}
	}
	st.Model = d.mdl
	st.Name = cfg.DeviceName
	st.Serial = d.serial
	st.Version = d.version
	b1, b2 := d.bms1, d.bms2
	st.BMS1, st.BMS2 = &b1, &b2
	return out
}

// bmsReply walks one pack's SN -> life -> cells sub-sequence. first is the
// pack's SN stage; next is the stage after its cells page.
func (d *Decoder) bmsReply(b *model.BmsSnapshot, m message, first, next Stage) bool {
	switch m.arg {
	case regBmsSn:
		if d.stage != first || len(m.payload) < 14 {
			return false
		}
		b.Serial = asciiField(m.payload[:14])
		d.stage = first + 1
	case regBmsLife:
		if d.stage != first+1 || len(m.payload) < 10 {
			return false
		}
		b.RatedCapacity = int(wire.Uint16LE(m.payload, 0)) * 10
		b.ActualCapacity = int(wire.Uint16LE(m.payload, 2)) * 10
		b.FullCycles = int(wire.Uint16LE(m.payload, 4))
		b.ChargeCycles = int(wire.Uint16LE(m.payload, 6))
		b.Health = int(m.payload[8])
		d.stage = first + 2
	case regBmsCells:
		if d.stage != first+2 || len(m.payload) < zCellCount*2 {
			return false
		}
		b.CellCount = zCellCount
		for i := 0; i < zCellCount; i++ {
			b.SetCell(i, int(wire.Uint16LE(m.payload, i*2)))
		}
		b.RecalcCellStats()
		d.stage = next
	default:
		return false
	}
	return true
}

func (d *Decoder) stageRequest() []byte {
	switch d.stage {
	case StageWaitKey:
		return d.encode(addrKeyGen, cmdKey, 0, []byte{0x00})
	case StageSerialNumber:
		return d.encode(addrWheel, cmdRead, regSerial, []byte{14})
	case StageVersion:
		return d.encode(addrWheel, cmdRead, regVersion, []byte{2})
	case StageParams1:
		return d.encode(addrWheel, cmdRead, regParams1, []byte{6})
	case StageParams2:
		return d.encode(addrWheel, cmdRead, regParams2, []byte{6})
	case StageParams3:
		return d.encode(addrWheel, cmdRead, regParams3, []byte{6})
	case StageBms1Sn:
		return d.encode(addrBms1, cmdRead, regBmsSn, []byte{14})
	case StageBms1Life:
		return d.encode(addrBms1, cmdRead, regBmsLife, []byte{10})
	case StageBms1Cells:
		return d.encode(addrBms1, cmdRead, regBmsCells, []byte{zCellCount * 2})
	case StageBms2Sn:
		return d.encode(addrBms2, cmdRead, regBmsSn, []byte{14})
	case StageBms2Life:
		return d.encode(addrBms2, cmdRead, regBmsLife, []byte{10})
	case StageBms2Cells:
		return d.encode(addrBms2, cmdRead, regBmsCells, []byte{zCellCount * 2})
	case StageReady:
		return d.encode(addrWheel, cmdRead, regLive, []byte{20})
	}
	return nil
}

func (d *Decoder) BuildCommand(cmd protocol.Command) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch cmd.Op {
	case protocol.OpBeep:
		return [][]byte{d.encode(addrWheel, cmdWrite, regBeep, []byte{0x01})}
	case protocol.OpLightOn:
		return [][]byte{d.encode(addrWheel, cmdWrite, regLight, []byte{0x01})}
	case protocol.OpLightOff:
		return [][]byte{d.encode(addrWheel, cmdWrite, regLight, []byte{0x00})}
	case protocol.OpLock:
		return [][]byte{d.encode(addrWheel, cmdWrite, regLock, []byte{0x01})}
	case protocol.OpUnlock:
		return [][]byte{d.encode(addrWheel, cmdWrite, regLock, []byte{0x00})}
	case protocol.OpSetLimitedSpeed, protocol.OpSetMaxSpeed:
		return [][]byte{d.encode(addrWheel, cmdWrite, regLimit, []byte{byte(cmd.Arg), byte(cmd.Arg >> 8)})}
	case protocol.OpCalibrate:
		return [][]byte{d.encode(addrWheel, cmdWrite, regCalib, []byte{0x01})}
	case protocol.OpRequestBms:
		return [][]byte{
			d.encode(addrBms1, cmdRead, regBmsCells, []byte{zCellCount * 2}),
			d.encode(addrBms2, cmdRead, regBmsCells, []byte{zCellCount * 2}),
		}
	}
	return nil
}

// encode builds one outbound bus message. Payloads are encrypted with the
// negotiated key once it exists; the key request itself is always plaintext.
func (d *Decoder) encode(dst, cmd, arg byte, payload []byte) []byte {
	p := append([]byte(nil), payload...)
	if cmd != cmdKey && d.haveKey {
		crypt(p, d.key[:])
	}
	body := make([]byte, 0, 5+len(p))
	body = append(body, byte(len(p)), addrApp, dst, cmd, arg)
	body = append(body, p...)
	ck := wire.Sum16(body) ^ 0xFFFF
	out := make([]byte, 0, len(body)+4)
	out = append(out, 0x5A, 0xA5)
	out = append(out, body...)
	out = append(out, byte(ck), byte(ck>>8))
	return out
}

// crypt XORs buf in place against the rolling key, always excluding the
// first byte. Applying it twice restores the original.
func crypt(buf, key []byte) {
	for i := 1; i < len(buf); i++ {
		buf[i] ^= key[(i-1)%len(key)]
	}
}

func asciiField(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}
