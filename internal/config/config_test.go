package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openeuc/wheelcore/internal/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wheelcored.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[wheel]
addr = "AA:BB:CC:DD:EE:FF"
name = "KS-16X"

[transport]
port = "/dev/rfcomm0"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Kind != "serial" || cfg.Transport.Baud != 115200 {
		t.Fatalf("transport defaults: %+v", cfg.Transport)
	}
	if cfg.Wheel.DataTimeoutSec != 15 {
		t.Fatalf("data timeout default: %d", cfg.Wheel.DataTimeoutSec)
	}
	if cfg.DataTimeout() != 15*time.Second {
		t.Fatalf("data timeout: %v", cfg.DataTimeout())
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Key != "wheel:state" {
		t.Fatalf("redis defaults: %+v", cfg.Redis)
	}
	if cfg.PinnedType() != protocol.Unknown {
		t.Fatalf("empty type must mean auto-detect")
	}
	if p := cfg.Protocol(); p.DeviceName != "KS-16X" {
		t.Fatalf("protocol config: %+v", p)
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing addr", `
[transport]
port = "/dev/rfcomm0"
`},
		{"unknown wheel type", `
[wheel]
addr = "AA:BB"
type = "solowheel"

[transport]
port = "/dev/rfcomm0"
`},
		{"missing serial port", `
[wheel]
addr = "AA:BB"
`},
		{"unknown transport kind", `
[wheel]
addr = "AA:BB"

[transport]
kind = "carrier-pigeon"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestPinnedType(t *testing.T) {
	path := writeConfig(t, `
[wheel]
addr = "AA:BB"
type = "veteran"

[transport]
port = "/dev/rfcomm0"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PinnedType() != protocol.Veteran {
		t.Fatalf("pinned type: %v", cfg.PinnedType())
	}
}

func TestTemplateRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wheelcored.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("overwrite without flag must fail")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template must load cleanly: %v", err)
	}
	if cfg.Wheel.Name != "KS-16X" {
		t.Fatalf("template wheel name: %q", cfg.Wheel.Name)
	}
}
