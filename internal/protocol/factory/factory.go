// Package factory maps a wheel-type tag to a fresh decoder instance.
package factory

import (
	"github.com/openeuc/wheelcore/internal/protocol"
	"github.com/openeuc/wheelcore/internal/protocol/begode"
	"github.com/openeuc/wheelcore/internal/protocol/inmotion"
	"github.com/openeuc/wheelcore/internal/protocol/kingsong"
	"github.com/openeuc/wheelcore/internal/protocol/ninebot"
	"github.com/openeuc/wheelcore/internal/protocol/ninebotz"
	"github.com/openeuc/wheelcore/internal/protocol/veteran"
)

// New returns a fresh decoder for the tag, or nil for Unknown and
// unrecognized tags.
func New(t protocol.WheelType) protocol.Decoder {
	switch t {
	case protocol.KingSong:
		return kingsong.New()
	case protocol.Begode:
		return begode.New()
	case protocol.Veteran:
		return veteran.New()
	case protocol.InMotion:
		return inmotion.New()
	case protocol.NinebotZ:
		return ninebotz.New()
	case protocol.Ninebot:
		return ninebot.New()
	default:
		return nil
	}
}
