package config

import (
	"time"

	"github.com/openeuc/wheelcore/internal/protocol"
)

// Protocol builds the decoder-facing knobs from the wheel section.
func (c Config) Protocol() protocol.Config {
	return protocol.Config{
		DeviceName:     c.Wheel.Name,
		BetterPercents: c.Wheel.BetterPercents,
	}
}

// PinnedType is the configured protocol family, Unknown when auto-detecting.
func (c Config) PinnedType() protocol.WheelType {
	return protocol.ParseWheelType(c.Wheel.Type)
}

func (c Config) DataTimeout() time.Duration {
	return time.Duration(c.Wheel.DataTimeoutSec) * time.Second
}

func (c Config) SettleWindow() time.Duration {
	return time.Duration(c.Reconnect.SettleWindowSec) * time.Second
}
