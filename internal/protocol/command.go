package protocol

// Op enumerates the semantic command surface. Each decoder encodes the
// subset its protocol supports; the rest silently produce no writes.
type Op uint8

const (
	OpNone Op = iota
	OpBeep
	OpLightOn
	OpLightOff
	OpToggleLight
	OpSetLightMode
	OpSetLightBrightness
	OpLedOn
	OpLedOff
	OpSetLedMode
	OpSetLedColor
	OpSetPedalHardness
	OpSetPedalMode
	OpSetPedalTilt
	OpCalibrate
	OpPowerOff
	OpLock
	OpUnlock
	OpSetMaxSpeed
	OpSetLimitedSpeed
	OpLimitedModeOn
	OpLimitedModeOff
	OpSetAlarm1Speed
	OpSetAlarm2Speed
	OpSetAlarm3Speed
	OpSetAlarmOffLevel
	OpAlarmsOn
	OpAlarmsOff
	OpSetTiltbackSpeed
	OpSetFanMode
	OpFanOn
	OpFanOff
	OpSetVolume
	OpMuteOn
	OpMuteOff
	OpSetRideMode
	OpSetHandleButton
	OpSetCruiseMode
	OpSetTransportMode
	OpSetDrlMode
	OpSetStrobeMode
	OpRequestSerial
	OpRequestVersion
	OpRequestBms
	OpResetTrip
)

// Command is one caller intent: an operation plus its optional argument
// (speed in km/h, level index, volume percent, RGB value and so on).
type Command struct {
	Op  Op
	Arg int
}
