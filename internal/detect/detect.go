// Package detect resolves a wheel-type tag from advertised GATT identifiers
// and the device name. The name keyword table always wins over service
// heuristics; KingSong and Begode share the FFE0/FFE1 pair and stay
// ambiguous without a name. All comparisons are case-insensitive.
package detect

import (
	"strings"

	"github.com/openeuc/wheelcore/internal/protocol"
)

// Well-known service/characteristic UUIDs per family.
const (
	uuidUartService = "0000ffe0-0000-1000-8000-00805f9b34fb"
	uuidUartChar    = "0000ffe1-0000-1000-8000-00805f9b34fb"

	uuidVeteranChar = "0000ffe9-0000-1000-8000-00805f9b34fb"

	uuidInmotionService = "0000ffe5-0000-1000-8000-00805f9b34fb"
	uuidInmotionWrite   = "0000ffe9-0000-1000-8000-00805f9b34fb"
	uuidInmotionRead    = "0000ffe4-0000-1000-8000-00805f9b34fb"

	uuidNinebotService = "0000fee7-0000-1000-8000-00805f9b34fb"
	uuidNinebotChar    = "0000fec6-0000-1000-8000-00805f9b34fb"

	uuidNusService = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	uuidNusWrite   = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	uuidNusNotify  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// Service is one discovered GATT service with its characteristics.
type Service struct {
	UUID            string
	Characteristics []string
}

// Services is the transport's discovery descriptor.
type Services []Service

// Confidence grades a detection.
type Confidence uint8

const (
	ConfidenceLow Confidence = iota
	ConfidenceHigh
)

// Kind tags the detection outcome.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDetected
	KindAmbiguous
)

// Result is the detector verdict.
type Result struct {
	Kind       Kind
	Type       protocol.WheelType
	IDs        []string
	Confidence Confidence
	Candidates []protocol.WheelType
	Reason     string
}

// nameKeywords maps device-name substrings to families; first match wins,
// so longer or more specific keywords come first.
var nameKeywords = []struct {
	keyword string
	family  protocol.WheelType
}{
	{"KS-", protocol.KingSong},
	{"KINGSONG", protocol.KingSong},
	{"GOTWAY", protocol.Begode},
	{"BEGODE", protocol.Begode},
	{"GW", protocol.Begode},
	{"MCM", protocol.Begode},
	{"MSUPER", protocol.Begode},
	{"MSP", protocol.Begode},
	{"NIKOLA", protocol.Begode},
	{"EXN", protocol.Begode},
	{"T4", protocol.Begode},
	{"MASTER", protocol.Begode},
	{"VETERAN", protocol.Veteran},
	{"SHERMAN", protocol.Veteran},
	{"ABRAMS", protocol.Veteran},
	{"PATTON", protocol.Veteran},
	{"LYNX", protocol.Veteran},
	{"LK", protocol.Veteran},
	{"INMOTION", protocol.InMotion},
	{"V5F", protocol.InMotion},
	{"V8", protocol.InMotion},
	{"V10", protocol.InMotion},
	{"V11", protocol.InMotion},
	{"V12", protocol.InMotion},
	{"V13", protocol.InMotion},
	{"NINEBOT Z", protocol.NinebotZ},
	{"Z10", protocol.NinebotZ},
	{"Z8", protocol.NinebotZ},
	{"Z6", protocol.NinebotZ},
	{"NINEBOT", protocol.Ninebot},
	{"SEGWAY", protocol.Ninebot},
}

// uuidTable is the per-family identifier set used both for service
// heuristics and the reverse lookup.
var uuidTable = map[protocol.WheelType][]string{
	protocol.KingSong: {uuidUartService, uuidUartChar},
	protocol.Begode:   {uuidUartService, uuidUartChar},
	protocol.Veteran:  {uuidUartService, uuidVeteranChar},
	protocol.InMotion: {uuidInmotionService, uuidInmotionWrite, uuidInmotionRead},
	protocol.Ninebot:  {uuidNinebotService, uuidNinebotChar},
	protocol.NinebotZ: {uuidNusService, uuidNusWrite, uuidNusNotify},
}

// Detect resolves a wheel type. Priority: name keyword, then a unique
// service/characteristic combination, then Ambiguous for shared patterns,
// then Unknown with a diagnostic reason.
func Detect(services Services, deviceName string) Result {
	if t, ok := byName(deviceName); ok {
		return Result{
			Kind:       KindDetected,
			Type:       t,
			IDs:        uuidTable[t],
			Confidence: ConfidenceHigh,
		}
	}

	candidates := byServices(services)
	switch len(candidates) {
	case 0:
		reason := "no recognized service identifiers"
		if len(services) == 0 {
			reason = "no services discovered"
		}
		return Result{Kind: KindUnknown, Reason: reason}
	case 1:
		t := candidates[0]
		return Result{
			Kind:       KindDetected,
			Type:       t,
			IDs:        uuidTable[t],
			Confidence: ConfidenceHigh,
		}
	default:
		return Result{Kind: KindAmbiguous, Candidates: candidates}
	}
}

// UUIDsForType is the pure reverse lookup; nothing for Unknown.
func UUIDsForType(t protocol.WheelType) []string {
	ids := uuidTable[t]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func byName(deviceName string) (protocol.WheelType, bool) {
	name := strings.ToUpper(strings.TrimSpace(deviceName))
	if name == "" {
		return protocol.Unknown, false
	}
	for _, row := range nameKeywords {
		if strings.Contains(name, row.keyword) {
			return row.family, true
		}
	}
	return protocol.Unknown, false
}

func byServices(services Services) []protocol.WheelType {
	var out []protocol.WheelType
	for _, t := range []protocol.WheelType{
		protocol.KingSong, protocol.Begode, protocol.Veteran,
		protocol.InMotion, protocol.NinebotZ, protocol.Ninebot,
	} {
		if hasAll(services, uuidTable[t]) {
			out = append(out, t)
		}
	}
	return out
}

// hasAll reports whether every identifier in ids appears among the services
// or their characteristics, case-insensitively.
func hasAll(services Services, ids []string) bool {
	for _, id := range ids {
		if !hasOne(services, id) {
			return false
		}
	}
	return true
}

func hasOne(services Services, id string) bool {
	for _, s := range services {
		if strings.EqualFold(s.UUID, id) {
			return true
		}
		for _, c := range s.Characteristics {
			if strings.EqualFold(c, id) {
				return true
			}
		}
	}
	return false
}
