// Package kingsong decodes the KingSong frame protocol: fixed 20-byte
// frames behind an AA 55 header with a frame-type selector at byte 16.
package kingsong

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/wire"
)

const frameLen = 20

// Frame-type selector values (byte 16).
const (
	typeLive     = 0xA9
	typeDistance = 0xB9
	typeName     = 0xB3
	typeSerial   = 0xB4
	typeVersion  = 0xB5
	typeBms1Cell = 0xF1
	typeBms2Cell = 0xF2
	typeBms1Info = 0xF5
	typeBms2Info = 0xF6
)

// Outbound command selectors.
const (
	cmdRequestName   = 0x9B
	cmdRequestSerial = 0x63
	cmdBeep          = 0x88
	cmdLight         = 0x73
	cmdLed           = 0x6C
	cmdPedalHardness = 0x87
	cmdStrobe        = 0x53
	cmdMaxSpeed      = 0x85
	cmdAlarms        = 0x84
	cmdCalibrate     = 0x89
	cmdPowerOff      = 0x40
	cmdLock          = 0x6D
)

const cellsPerPage = 7

type Decoder struct {
	mu       sync.Mutex
	name     string
	mdl      string
	serial   string
	version  string
	bms1     model.BmsSnapshot
	bms2     model.BmsSnapshot
	sawVolts bool
}

func New() *Decoder { return &Decoder{} }

func (d *Decoder) Family() protocol.WheelType { return protocol.KingSong }

// KingSong wheels push live frames unsolicited; identification is requested
// once at init instead of on a cadence.
func (d *Decoder) KeepAliveInterval() time.Duration { return 0 }

func (d *Decoder) InitCommands() [][]byte {
	return [][]byte{request(cmdRequestName), request(cmdRequestSerial)}
}

func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.name, d.mdl, d.serial, d.version = "", "", "", ""
	d.bms1 = model.BmsSnapshot{}
	d.bms2 = model.BmsSnapshot{}
	d.sawVolts = false
}

func (d *Decoder) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sawVolts && d.mdl != ""
}

func (d *Decoder) Decode(raw []byte, prior *model.VehicleState, cfg protocol.Config) *protocol.DecodedData {
	if len(raw) < frameLen || raw[0] != 0xAA || raw[1] != 0x55 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	st := prior.Clone()
	st.UpdatedAt = time.Now()
	out := &protocol.DecodedData{State: st}

	switch raw[16] {
	case typeLive:
		st.Voltage = int(wire.Uint16BE(raw, 2))
		st.Speed = int(wire.Int16BE(raw, 4))
		if p, ok := protocol.LookupModel(cfg.DeviceName); ok && p.Speed1875 {
			// Motor-rev units; 18.75 hundredths of km/h per unit.
			st.Speed = st.Speed * 75 / 4
		}
		st.TotalDistance = int64(wire.Uint32BE(raw, 6))
		st.Current = int(wire.Int16LE(raw, 10))
		st.Temperature = int(wire.Int16BE(raw, 12))
		st.PedalHardness = int(raw[14])
		st.Power = model.PowerFromVI(st.Voltage, st.Current)
		st.Battery = protocol.BatteryPercent(st.Voltage, protocol.ClassFor(cfg.DeviceName, protocol.Class67), cfg.BetterPercents)
		if st.Voltage > 0 {
			d.sawVolts = true
		}
		out.Changed = true
	case typeDistance:
		st.TripDistance = int64(wire.Uint32BE(raw, 2))
		st.Temperature2 = int(wire.Int16BE(raw, 6))
		st.TiltbackSpeed = int(raw[12])
		st.AlarmOffLevel = int(raw[13])
		st.LightMode = int(raw[14])
		out.Changed = true
	case typeName:
		d.name = asciiField(raw[2:16])
		d.mdl = modelFromName(d.name, cfg.DeviceName)
	case typeSerial:
		d.serial = asciiField(raw[2:16])
	case typeVersion:
		d.version = versionString(raw[2], raw[3], raw[4])
	case typeBms1Cell:
		out.Changed = d.cellPage(&d.bms1, raw, cfg)
	case typeBms2Cell:
		out.Changed = d.cellPage(&d.bms2, raw, cfg)
	case typeBms1Info:
		bmsInfo(&d.bms1, raw)
		out.Changed = true
	case typeBms2Info:
		bmsInfo(&d.bms2, raw)
		out.Changed = true
	default:
		return nil
	}

	if d.mdl == "" {
		d.mdl = modelFromName("", cfg.DeviceName)
	}
	st.Name, st.Model, st.Serial, st.Version = d.name, d.mdl, d.serial, d.version
	b1, b2 := d.bms1, d.bms2
	st.BMS1, st.BMS2 = &b1, &b2
	return out
}

// cellPage stores one 7-cell voltage page. Cells occupy bytes 2..15 so the
// selector at byte 16 stays clear; the page index rides behind it at byte 17.
// The page index byte is untrusted; writes outside the fixed array are
// dropped.
func (d *Decoder) cellPage(b *model.BmsSnapshot, raw []byte, cfg protocol.Config) bool {
	if b.CellCount == 0 {
		b.CellCount = protocol.ClassFor(cfg.DeviceName, protocol.Class67).Cells()
	}
	page := int(raw[17])
	wrote := false
	for i := 0; i < cellsPerPage; i++ {
		mv := int(wire.Uint16LE(raw, 2+i*2))
		if b.SetCell(page*cellsPerPage+i, mv) {
			wrote = true
		}
	}
	if wrote {
		b.RecalcCellStats()
	}
	return wrote
}

func bmsInfo(b *model.BmsSnapshot, raw []byte) {
	b.RatedCapacity = int(wire.Uint16LE(raw, 2)) * 10
	b.ActualCapacity = int(wire.Uint16LE(raw, 4)) * 10
	b.FullCycles = int(wire.Uint16LE(raw, 6))
	b.Health = int(raw[8])
	b.Temperature = int(wire.Int16BE(raw, 9))
	if n := int(raw[11]); n > 0 && n <= model.MaxCells {
		b.CellCount = n
	}
}

func (d *Decoder) BuildCommand(cmd protocol.Command) [][]byte {
	switch cmd.Op {
	case protocol.OpBeep:
		return [][]byte{request(cmdBeep)}
	case protocol.OpLightOn:
		return [][]byte{requestArg(cmdLight, 0x12)}
	case protocol.OpLightOff:
		return [][]byte{requestArg(cmdLight, 0x13)}
	case protocol.OpSetLightMode:
		return [][]byte{requestArg(cmdLight, byte(0x12+cmd.Arg))}
	case protocol.OpSetLedMode:
		return [][]byte{requestArg(cmdLed, byte(cmd.Arg))}
	case protocol.OpSetStrobeMode:
		return [][]byte{requestArg(cmdStrobe, byte(cmd.Arg))}
	case protocol.OpSetPedalHardness:
		return [][]byte{requestArg(cmdPedalHardness, byte(cmd.Arg))}
	case protocol.OpSetMaxSpeed, protocol.OpSetTiltbackSpeed:
		return [][]byte{requestArg(cmdMaxSpeed, byte(cmd.Arg))}
	case protocol.OpSetAlarm1Speed:
		return [][]byte{alarmFrame(0, byte(cmd.Arg))}
	case protocol.OpSetAlarm2Speed:
		return [][]byte{alarmFrame(1, byte(cmd.Arg))}
	case protocol.OpSetAlarm3Speed:
		return [][]byte{alarmFrame(2, byte(cmd.Arg))}
	case protocol.OpCalibrate:
		return [][]byte{request(cmdCalibrate)}
	case protocol.OpPowerOff:
		return [][]byte{request(cmdPowerOff)}
	case protocol.OpLock:
		return [][]byte{requestArg(cmdLock, 0x01)}
	case protocol.OpUnlock:
		return [][]byte{requestArg(cmdLock, 0x00)}
	case protocol.OpRequestSerial:
		return [][]byte{request(cmdRequestSerial)}
	}
	return nil
}

// request builds the fixed 20-byte command frame for a selector.
func request(selector byte) []byte {
	return requestArg(selector, 0)
}

func requestArg(selector, arg byte) []byte {
	f := make([]byte, frameLen)
	f[0], f[1] = 0xAA, 0x55
	f[2] = arg
	f[16] = selector
	f[17], f[18], f[19] = 0x14, 0x5A, 0x5A
	return f
}

func alarmFrame(slot, speed byte) []byte {
	f := requestArg(cmdAlarms, speed)
	f[3] = slot
	return f
}

func asciiField(b []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
}

func versionString(maj, min, patch byte) string {
	return fmt.Sprintf("%d.%d.%d", maj, min, patch)
}

func modelFromName(wheelName, deviceName string) string {
	if p, ok := protocol.LookupModel(wheelName); ok {
		return p.Model
	}
	if p, ok := protocol.LookupModel(deviceName); ok {
		return p.Model
	}
	if fields := strings.Fields(wheelName); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
