package protocol

import "strings"

// ModelProfile is one row of the fixed device-name table. Lookups are
// deterministic case-insensitive substring matches, first row wins; this is
// a table, not a heuristic.
type ModelProfile struct {
	Match string
	Type  WheelType
	Model string
	Class VoltageClass
	// LegacyDistanceDiv10 marks one discontinued model whose distance
	// counters arrive in tens of meters.
	LegacyDistanceDiv10 bool
	// Speed1875 marks the model class whose live speed field arrives in
	// motor-rev units of 18.75 hundredths of km/h.
	Speed1875 bool
}

var modelTable = []ModelProfile{
	// KingSong
	{Match: "KS-S22", Type: KingSong, Model: "KS-S22", Class: Class126},
	{Match: "KS-S18", Type: KingSong, Model: "KS-S18", Class: Class84},
	{Match: "KS-16X", Type: KingSong, Model: "KS-16X", Class: Class84},
	{Match: "KS-16S", Type: KingSong, Model: "KS-16S", Class: Class67},
	{Match: "KS-18L", Type: KingSong, Model: "KS-18L", Class: Class84, Speed1875: true},
	{Match: "KS-18XL", Type: KingSong, Model: "KS-18XL", Class: Class84, Speed1875: true},
	{Match: "KS-14", Type: KingSong, Model: "KS-14", Class: Class67},

	// Begode / Gotway
	{Match: "MCM2", Type: Begode, Model: "MCM2", Class: Class67, LegacyDistanceDiv10: true},
	{Match: "MCM5", Type: Begode, Model: "MCM5", Class: Class84},
	{Match: "MSUPER", Type: Begode, Model: "MSuper", Class: Class84},
	{Match: "MSP", Type: Begode, Model: "MSP", Class: Class100},
	{Match: "NIKOLA+", Type: Begode, Model: "Nikola Plus", Class: Class100},
	{Match: "NIKOLA", Type: Begode, Model: "Nikola", Class: Class84},
	{Match: "EX.N", Type: Begode, Model: "EX.N", Class: Class100},
	{Match: "EX20S", Type: Begode, Model: "EX20S", Class: Class126},
	{Match: "MASTER", Type: Begode, Model: "Master", Class: Class126},
	{Match: "MONSTER", Type: Begode, Model: "Monster", Class: Class100},
	{Match: "T4", Type: Begode, Model: "T4", Class: Class84},

	// Veteran
	{Match: "SHERMAN MAX", Type: Veteran, Model: "Sherman Max", Class: Class100},
	{Match: "SHERMAN-S", Type: Veteran, Model: "Sherman S", Class: Class126},
	{Match: "SHERMAN", Type: Veteran, Model: "Sherman", Class: Class100},
	{Match: "ABRAMS", Type: Veteran, Model: "Abrams", Class: Class100},
	{Match: "LYNX", Type: Veteran, Model: "Lynx", Class: Class126},
	{Match: "PATTON", Type: Veteran, Model: "Patton", Class: Class126},

	// InMotion
	{Match: "V5F", Type: InMotion, Model: "V5F", Class: Class67},
	{Match: "V8F", Type: InMotion, Model: "V8F", Class: Class84},
	{Match: "V8", Type: InMotion, Model: "V8", Class: Class84},
	{Match: "V10", Type: InMotion, Model: "V10", Class: Class84},
	{Match: "V11", Type: InMotion, Model: "V11", Class: Class84},
	{Match: "V12", Type: InMotion, Model: "V12", Class: Class100},
	{Match: "V13", Type: InMotion, Model: "V13", Class: Class151},

	// Ninebot
	{Match: "NINEBOT Z", Type: NinebotZ, Model: "Ninebot Z10", Class: Class67},
	{Match: "Z10", Type: NinebotZ, Model: "Ninebot Z10", Class: Class67},
	{Match: "Z8", Type: NinebotZ, Model: "Ninebot Z8", Class: Class67},
	{Match: "Z6", Type: NinebotZ, Model: "Ninebot Z6", Class: Class67},
	{Match: "NINEBOT ONE E+", Type: Ninebot, Model: "Ninebot One E+", Class: Class67},
	{Match: "NINEBOT ONE", Type: Ninebot, Model: "Ninebot One", Class: Class67},
	{Match: "NINEBOT", Type: Ninebot, Model: "Ninebot One", Class: Class67},
}

// LookupModel resolves a device name against the fixed table.
func LookupModel(deviceName string) (ModelProfile, bool) {
	name := strings.ToUpper(strings.TrimSpace(deviceName))
	if name == "" {
		return ModelProfile{}, false
	}
	for _, p := range modelTable {
		if strings.Contains(name, p.Match) {
			return p, true
		}
	}
	return ModelProfile{}, false
}

// ClassFor returns the voltage class for a device name, falling back to the
// family default when the name is absent from the table.
func ClassFor(deviceName string, fallback VoltageClass) VoltageClass {
	if p, ok := LookupModel(deviceName); ok {
		return p.Class
	}
	return fallback
}
