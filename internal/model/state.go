// Package model holds the vehicle telemetry snapshot types shared by the
// protocol decoders and the connection manager. Snapshots are immutable by
// convention: decoders build a fresh copy per decode and never mutate one
// that has been handed out.
package model

import "time"

// VehicleState is one telemetry snapshot. All telemetry fields are stored as
// fixed-point integers in hundredths of their display unit (km/h, V, A, W,
// degrees C, degrees); unit conversions are derived, never stored.
type VehicleState struct {
	Speed        int // hundredths of km/h, signed
	Voltage      int // hundredths of V
	Current      int // hundredths of A, signed
	PhaseCurrent int // hundredths of A, signed
	Power        int // hundredths of W, signed
	Temperature  int // hundredths of degC, controller probe
	Temperature2 int // hundredths of degC, motor/secondary probe
	Battery      int // percent 0..100
	PWM          int // hundredths of a percent duty
	Roll         int // hundredths of a degree
	Pitch        int // hundredths of a degree

	TotalDistance int64 // meters, wheel lifetime counter
	TripDistance  int64 // meters, since power-on

	PedalHardness int
	LightMode     int
	LedMode       int
	TiltbackSpeed int // km/h, wheel-reported limit
	AlarmOffLevel int

	Name     string
	Model    string
	Version  string
	Serial   string
	WheelMac string

	BMS1 *BmsSnapshot
	BMS2 *BmsSnapshot

	UpdatedAt time.Time
}

// Clone returns a shallow-plus-BMS copy suitable for building the next
// snapshot from the prior one.
func (s *VehicleState) Clone() *VehicleState {
	if s == nil {
		return &VehicleState{}
	}
	out := *s
	if s.BMS1 != nil {
		b := *s.BMS1
		out.BMS1 = &b
	}
	if s.BMS2 != nil {
		b := *s.BMS2
		out.BMS2 = &b
	}
	return &out
}

func (s *VehicleState) SpeedKmh() float64     { return float64(s.Speed) / 100 }
func (s *VehicleState) VoltageVolts() float64 { return float64(s.Voltage) / 100 }
func (s *VehicleState) CurrentAmps() float64  { return float64(s.Current) / 100 }
func (s *VehicleState) PowerWatts() float64   { return float64(s.Power) / 100 }
func (s *VehicleState) TemperatureC() float64 { return float64(s.Temperature) / 100 }

// PowerFromVI derives power when the wheel does not report it directly.
func PowerFromVI(voltage, current int) int {
	return int(int64(voltage) * int64(current) / 100)
}
