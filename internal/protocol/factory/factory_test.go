package factory

import (
	"testing"

	"github.com/openeuc/wheelcore/internal/protocol"
)

func TestEveryFamilyHasADecoder(t *testing.T) {
	families := []protocol.WheelType{
		protocol.KingSong, protocol.Begode, protocol.Veteran,
		protocol.InMotion, protocol.NinebotZ, protocol.Ninebot,
	}
	for _, f := range families {
		d := New(f)
		if d == nil {
			t.Fatalf("no decoder for %v", f)
		}
		if d.Family() != f {
			t.Fatalf("decoder for %v reports family %v", f, d.Family())
		}
		if d.Ready() {
			t.Fatalf("fresh %v decoder must not be ready", f)
		}
		d.Reset() // must be safe before first decode
	}
	if New(protocol.Unknown) != nil {
		t.Fatalf("Unknown must have no decoder")
	}
}
