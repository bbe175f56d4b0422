package publish

import (
	"errors"
	"testing"

	"github.com/openeuc/wheelcore/internal/conn"
	"github.com/openeuc/wheelcore/internal/model"
)

func TestVehicleFields(t *testing.T) {
	st := &model.VehicleState{
		Speed:         2550,
		Voltage:       8412,
		Current:       -150,
		Power:         -12600,
		Temperature:   2650,
		Battery:       87,
		PWM:           4200,
		TotalDistance: 123456,
		TripDistance:  7890,
		Name:          "KS-16X",
		Model:         "KS-16X",
	}
	f := vehicleFields(st)
	cases := map[string]string{
		"speed_kmh":        "25.50",
		"voltage_v":        "84.12",
		"current_a":        "-1.50",
		"power_w":          "-126.00",
		"temperature_c":    "26.50",
		"battery_pct":      "87",
		"pwm_pct":          "42.00",
		"total_distance_m": "123456",
		"trip_distance_m":  "7890",
		"model":            "KS-16X",
	}
	for k, want := range cases {
		if f[k] != want {
			t.Fatalf("%s = %q, want %q", k, f[k], want)
		}
	}
}

func TestStateFields(t *testing.T) {
	f := stateFields(conn.State{
		Status: conn.StatusConnectionLost,
		Addr:   "AA:BB",
		Reason: "data timeout",
		Err:    errors.New("read: EOF"),
	})
	if f["conn_status"] != "connection-lost" {
		t.Fatalf("status: %q", f["conn_status"])
	}
	if f["conn_reason"] != "data timeout" || f["conn_error"] != "read: EOF" {
		t.Fatalf("fields: %+v", f)
	}

	f = stateFields(conn.State{Status: conn.StatusDisconnected})
	if f["conn_error"] != "" {
		t.Fatalf("error field must clear: %+v", f)
	}
}
