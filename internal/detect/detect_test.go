package detect

import (
	"testing"

	"github.com/openeuc/wheelcore/internal/protocol"
)

func uartServices() Services {
	return Services{{UUID: uuidUartService, Characteristics: []string{uuidUartChar}}}
}

func TestNameWinsOverAmbiguousServices(t *testing.T) {
	// FFE0/FFE1 matches both KingSong and Begode; the name must decide.
	res := Detect(uartServices(), "KS-16X_1234")
	if res.Kind != KindDetected || res.Type != protocol.KingSong || res.Confidence != ConfidenceHigh {
		t.Fatalf("got %+v", res)
	}
	res = Detect(uartServices(), "GotWay_MSP")
	if res.Kind != KindDetected || res.Type != protocol.Begode {
		t.Fatalf("got %+v", res)
	}
}

func TestSharedServicesWithoutNameAreAmbiguous(t *testing.T) {
	res := Detect(uartServices(), "")
	if res.Kind != KindAmbiguous {
		t.Fatalf("got %+v", res)
	}
	if len(res.Candidates) != 2 || res.Candidates[0] != protocol.KingSong || res.Candidates[1] != protocol.Begode {
		t.Fatalf("candidates: %v", res.Candidates)
	}
}

func TestUniqueServiceComboDetectsWithoutName(t *testing.T) {
	svcs := Services{{UUID: uuidNusService, Characteristics: []string{uuidNusWrite, uuidNusNotify}}}
	res := Detect(svcs, "")
	if res.Kind != KindDetected || res.Type != protocol.NinebotZ || res.Confidence != ConfidenceHigh {
		t.Fatalf("got %+v", res)
	}
}

func TestCaseInsensitiveMatching(t *testing.T) {
	svcs := Services{{UUID: "0000FEE7-0000-1000-8000-00805F9B34FB", Characteristics: []string{"0000FEC6-0000-1000-8000-00805F9B34FB"}}}
	res := Detect(svcs, "")
	if res.Kind != KindDetected || res.Type != protocol.Ninebot {
		t.Fatalf("got %+v", res)
	}
	if got, _ := byName("ninebot z10"); got != protocol.NinebotZ {
		t.Fatalf("lower-case name lookup: %v", got)
	}
}

func TestUnknownCarriesDiagnosticReason(t *testing.T) {
	res := Detect(nil, "")
	if res.Kind != KindUnknown || res.Reason != "no services discovered" {
		t.Fatalf("got %+v", res)
	}
	svcs := Services{{UUID: "0000180f-0000-1000-8000-00805f9b34fb"}}
	res = Detect(svcs, "MYSTERY DEVICE")
	if res.Kind != KindUnknown || res.Reason != "no recognized service identifiers" {
		t.Fatalf("got %+v", res)
	}
}

func TestReverseLookup(t *testing.T) {
	if ids := UUIDsForType(protocol.Unknown); len(ids) != 0 {
		t.Fatalf("Unknown must map to no identifiers, got %v", ids)
	}
	ids := UUIDsForType(protocol.KingSong)
	if len(ids) != 2 || ids[0] != uuidUartService {
		t.Fatalf("KingSong identifiers: %v", ids)
	}
	// The returned slice is a copy; mutating it must not poison the table.
	ids[0] = "mutated"
	if UUIDsForType(protocol.KingSong)[0] != uuidUartService {
		t.Fatalf("reverse lookup table was mutated")
	}
}
