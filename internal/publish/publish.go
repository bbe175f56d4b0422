// Package publish mirrors the manager's observables into redis: the latest
// snapshot lands in a hash, and every update is announced on a pubsub
// channel so dashboards can follow along without polling.
package publish

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openeuc/wheelcore/internal/conn"
	"github.com/openeuc/wheelcore/internal/model"
	"github.com/openeuc/wheelcore/internal/observe"
)

type Config struct {
	Addr    string
	Channel string
	Key     string
	Log     zerolog.Logger
}

type Publisher struct {
	rdb *redis.Client
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("publish: redis ping %s: %w", cfg.Addr, err)
	}
	return &Publisher{rdb: rdb, cfg: cfg, log: cfg.Log}, nil
}

// Run follows both observables until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context, vehicle *observe.Value[*model.VehicleState], states *observe.Value[conn.State]) {
	vehicleCh, cancelVehicle := vehicle.Subscribe(16)
	defer cancelVehicle()
	stateCh, cancelState := states.Subscribe(16)
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
				p.publishVehicle(ctx, st)
			}
		case st, ok := <-stateCh:
			if !ok {
				return
			}
			p.publishState(ctx, st)
		}
	}
}

func (p *Publisher) Close() error {
	return p.rdb.Close()
}

func (p *Publisher) publishVehicle(ctx context.Context, st *model.VehicleState) {
	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, p.cfg.Key, vehicleFields(st))
	pipe.Publish(ctx, p.cfg.Channel, "vehicle")
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn().Err(err).Msg("vehicle publish failed")
	}
}

func (p *Publisher) publishState(ctx context.Context, st conn.State) {
	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, p.cfg.Key, stateFields(st))
	pipe.Publish(ctx, p.cfg.Channel, "connection:"+st.Status.String())
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn().Err(err).Msg("state publish failed")
	}
}

// vehicleFields flattens a snapshot into hash fields. Fixed-point values are
// rendered in display units.
func vehicleFields(st *model.VehicleState) map[string]string {
	return map[string]string{
		"speed_kmh":        formatCenti(st.Speed),
		"voltage_v":        formatCenti(st.Voltage),
		"current_a":        formatCenti(st.Current),
		"power_w":          formatCenti(st.Power),
		"temperature_c":    formatCenti(st.Temperature),
		"battery_pct":      strconv.Itoa(st.Battery),
		"pwm_pct":          formatCenti(st.PWM),
		"total_distance_m": strconv.FormatInt(st.TotalDistance, 10),
		"trip_distance_m":  strconv.FormatInt(st.TripDistance, 10),
		"name":             st.Name,
		"model":            st.Model,
		"version":          st.Version,
		"serial":           st.Serial,
	}
}

func stateFields(st conn.State) map[string]string {
	fields := map[string]string{
		"conn_status": st.Status.String(),
		"conn_addr":   st.Addr,
		"conn_name":   st.Name,
		"conn_reason": st.Reason,
	}
	if st.Err != nil {
		fields["conn_error"] = st.Err.Error()
	} else {
		fields["conn_error"] = ""
	}
	return fields
}

// formatCenti renders a fixed-point hundredths value as a decimal string.
func formatCenti(v int) string {
	return strconv.FormatFloat(float64(v)/100, 'f', 2, 64)
}
