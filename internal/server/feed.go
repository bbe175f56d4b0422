// Package server exposes a websocket feed of telemetry and connection-state
// snapshots. It renders nothing; clients get JSON frames and decide what to
// do with them.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/openeuc/wheelcore/internal/conn"
	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/observe"
)

type Config struct {
	Addr string
	Log  zerolog.Logger
}

// Feed broadcasts one JSON frame per observable update to every connected
// websocket client. Slow clients drop frames rather than stall the rest.
type Feed struct {
	cfg Config
	log zerolog.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader

	vehicle *observe.Value[*model.VehicleState]
	states  *observe.Value[conn.State]
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON shape sent to clients.
type Frame struct {
	Vehicle    *VehicleJSON    `json:"vehicle,omitempty"`
	Connection *ConnectionJSON `json:"connection,omitempty"`
	Stamp      int64           `json:"stamp"`
}

type VehicleJSON struct {
	SpeedKmh      float64 `json:"speed_kmh"`
	VoltageV      float64 `json:"voltage_v"`
	CurrentA      float64 `json:"current_a"`
	PowerW        float64 `json:"power_w"`
	TemperatureC  float64 `json:"temperature_c"`
	BatteryPct    int     `json:"battery_pct"`
	PwmPct        float64 `json:"pwm_pct"`
	TotalDistance int64   `json:"total_distance_m"`
	TripDistance  int64   `json:"trip_distance_m"`
	Name          string  `json:"name,omitempty"`
	Model         string  `json:"model,omitempty"`
	Version       string  `json:"version,omitempty"`
	Serial        string  `json:"serial,omitempty"`
}

type ConnectionJSON struct {
	Status string `json:"status"`
	Addr   string `json:"addr,omitempty"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

func New(cfg Config, vehicle *observe.Value[*model.VehicleState], states *observe.Value[conn.State]) *Feed {
	return &Feed{
		cfg:     cfg,
		log:     cfg.Log,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		vehicle: vehicle,
		states:  states,
	}
}

// Run serves the feed until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handleWS)

	go f.followObservables(ctx)

	srv := &http.Server{Addr: f.cfg.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	f.log.Info().Str("addr", f.cfg.Addr).Msg("feed listening")
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (f *Feed) followObservables(ctx context.Context) {
	vehicleCh, cancelVehicle := f.vehicle.Subscribe(16)
	defer cancelVehicle()
	stateCh, cancelState := f.states.Subscribe(16)
	defer cancelState()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-vehicleCh:
			if !ok {
				return
			}
			if st != nil {
				f.broadcast(vehicleFrame(st))
			}
		case st, ok := <-stateCh:
			if !ok {
				return
			}
			f.broadcast(connectionFrame(st))
		}
	}
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: ws, send: make(chan []byte, 64)}
	f.clientsMu.Lock()
	f.clients[client] = struct{}{}
	total := len(f.clients)
	f.clientsMu.Unlock()
	f.log.Info().Int("clients", total).Msg("feed client connected")

	// Current snapshots first so a fresh client starts complete.
	if data, err := json.Marshal(connectionFrame(f.states.Get())); err == nil {
		client.send <- data
	}
	if st := f.vehicle.Get(); st != nil {
		if data, err := json.Marshal(vehicleFrame(st)); err == nil {
			client.send <- data
		}
	}

	go func() {
		defer ws.Close()
		for msg := range client.send {
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			f.clientsMu.Lock()
			delete(f.clients, client)
			remaining := len(f.clients)
			f.clientsMu.Unlock()
			close(client.send)
			f.log.Info().Int("clients", remaining).Msg("feed client disconnected")
		}()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *Feed) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	for client := range f.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip this frame.
		}
	}
}

func vehicleFrame(st *model.VehicleState) Frame {
	return Frame{
		Vehicle: &VehicleJSON{
			SpeedKmh:      st.SpeedKmh(),
			VoltageV:      st.VoltageVolts(),
			CurrentA:      st.CurrentAmps(),
			PowerW:        st.PowerWatts(),
			TemperatureC:  st.TemperatureC(),
			BatteryPct:    st.Battery,
			PwmPct:        float64(st.PWM) / 100,
			TotalDistance: st.TotalDistance,
			TripDistance:  st.TripDistance,
			Name:          st.Name,
			Model:         st.Model,
			Version:       st.Version,
			Serial:        st.Serial,
		},
		Stamp: time.Now().UnixMilli(),
	}
}

func connectionFrame(st conn.State) Frame {
	cj := &ConnectionJSON{
		Status: st.Status.String(),
		Addr:   st.Addr,
		Name:   st.Name,
		Reason: st.Reason,
	}
	if st.Err != nil {
		cj.Error = st.Err.Error()
	}
	return Frame{Connection: cj, Stamp: time.Now().UnixMilli()}
}
