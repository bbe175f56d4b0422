// Package protocol defines the contract shared by all wheel-family decoders:
// the decoder interface, the semantic command surface, user configuration,
// battery curves, and the fixed device-name tables.
package protocol

import (
	"time"

	"github.com/openeuc/wheelcore/internal/model"
)

// WheelType tags one manufacturer protocol family.
type WheelType uint8

const (
	Unknown WheelType = iota
	KingSong
	Begode
	Veteran
	InMotion
	NinebotZ
	Ninebot
)

func (t WheelType) String() string {
	switch t {
	case KingSong:
		return "kingsong"
	case Begode:
		return "begode"
	case Veteran:
		return "veteran"
	case InMotion:
		return "inmotion"
	case NinebotZ:
		return "ninebot-z"
	case Ninebot:
		return "ninebot"
	default:
		return "unknown"
	}
}

// ParseWheelType resolves a config/CLI tag. Unrecognized tags map to Unknown.
func ParseWheelType(s string) WheelType {
	for _, t := range []WheelType{KingSong, Begode, Veteran, InMotion, NinebotZ, Ninebot} {
		if t.String() == s {
			return t
		}
	}
	return Unknown
}

// Config carries the caller-supplied knobs a decoder consults per decode.
type Config struct {
	// DeviceName is the advertised BLE name; voltage class, cell count and
	// legacy scaling rules are substring lookups against it.
	DeviceName string
	// BetterPercents selects the piecewise battery curve over the legacy
	// linear one.
	BetterPercents bool
}

// DecodedData is the result of one successful decode call.
type DecodedData struct {
	// State is the candidate replacement snapshot.
	State *model.VehicleState
	// Commands are raw protocol writes the decoder wants dispatched, in order.
	Commands [][]byte
	// Changed reports that meaningful telemetry changed; drives UI refresh
	// and readiness promotion checks.
	Changed bool
}

// Decoder is the per-family protocol strategy. Implementations own private
// mutable caches (partial frames, key material, text fields) guarded by an
// internal lock; every method is safe for concurrent use from the inbound
// data path and the outbound command path.
type Decoder interface {
	// Decode consumes one inbound notification payload. nil means "not my
	// packet or not enough data yet" and is a normal outcome, never an error.
	Decode(raw []byte, prior *model.VehicleState, cfg Config) *DecodedData

	// BuildCommand translates a semantic command into zero or more raw
	// writes. An empty result means the family has no encoding for it.
	BuildCommand(cmd Command) [][]byte

	// InitCommands returns the writes to send immediately after the
	// transport link is up.
	InitCommands() [][]byte

	// KeepAliveInterval is the outbound poll cadence; zero or negative means
	// the wheel pushes data unsolicited and no keep-alive timer runs.
	KeepAliveInterval() time.Duration

	// Ready reports that identifying telemetry has arrived: a nonzero pack
	// voltage has been observed and a model string resolved. Family E
	// instead reports ready once its handshake reaches the terminal stage,
	// which implies both were seen along the way.
	Ready() bool

	// Reset clears all accumulated state. Safe before first use, idempotent.
	Reset()

	// Family returns the decoder's wheel-type tag.
	Family() WheelType
}
