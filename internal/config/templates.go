package config

import (
	"fmt"
	"os"
)

func Template() string {
	return daemonTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(daemonTemplate), 0o600)
}

const daemonTemplate = `[wheel]
addr = "AA:BB:CC:DD:EE:FF"
name = "KS-16X"
# type pins the protocol family ("kingsong", "begode", "veteran",
# "inmotion", "ninebot-z", "ninebot"); empty means auto-detect.
type = ""
better_percents = true
data_timeout_sec = 15

[transport]
kind = "serial"
port = "/dev/rfcomm0"
baud = 115200

[reconnect]
enabled = true
connect_on_start = true
settle_window_sec = 30

[redis]
enabled = false
addr = "localhost:6379"
channel = "wheel"
key = "wheel:state"

[feed]
enabled = false
addr = ":8080"
`
