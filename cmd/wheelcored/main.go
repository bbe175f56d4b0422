package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/openeuc/wheelcore/internal/config"
	"github.com/openeuc/wheelcore/internal/conn"
	"github.com/openeuc/wheelcore/internal/detect"
	"github.com/openeuc/wheelcore/internal/logging"
	"github.com/openeuc/wheelcore/internal/publish"
	"github.com/openeuc/wheelcore/internal/server"
	"github.com/openeuc/wheelcore/internal/transport/serialbt"
)

// bridgeHandler forwards transport callbacks to the manager; it exists to
// break the construction cycle between the two.
type bridgeHandler struct {
	mgr *conn.Manager
}

func (h *bridgeHandler) HandleServicesDiscovered(s detect.Services) {
	h.mgr.HandleServicesDiscovered(s)
}

func (h *bridgeHandler) HandleData(raw []byte) {
	h.mgr.HandleData(raw)
}

func (h *bridgeHandler) HandleDisconnected(err error) {
	h.mgr.HandleDisconnected(err)
}

func main() {
	configPath := flag.String("config", "wheelcored.toml", "path to config file")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log.Info().Str("path", *configPath).Msg("loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := &bridgeHandler{}
	transport := serialbt.New(serialbt.Config{
		Port: cfg.Transport.Port,
		Baud: cfg.Transport.Baud,
		Log:  logging.New("serialbt"),
	}, handler)

	mgr := conn.NewManager(conn.ManagerConfig{
		Transport:   transport,
		Log:         logging.New("conn"),
		Protocol:    cfg.Protocol(),
		PinnedType:  cfg.PinnedType(),
		DataTimeout: cfg.DataTimeout(),
	})
	handler.mgr = mgr

	if cfg.Feed.Enabled {
		feed := server.New(server.Config{
			Addr: cfg.Feed.Addr,
			Log:  logging.New("feed"),
		}, mgr.Vehicle(), mgr.States())
		go func() {
			if err := feed.Run(ctx); err != nil {
				log.Error().Err(err).Msg("feed stopped")
			}
		}()
	}

	if cfg.Redis.Enabled {
		pub, err := publish.New(publish.Config{
			Addr:    cfg.Redis.Addr,
			Channel: cfg.Redis.Channel,
			Key:     cfg.Redis.Key,
			Log:     logging.New("publish"),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis publisher init failed")
		}
		defer pub.Close()
		go pub.Run(ctx, mgr.Vehicle(), mgr.States())
	}

	if cfg.Reconnect.Enabled {
		rec := conn.NewReconnector(conn.ReconnectorConfig{
			Client:         mgr,
			Log:            logging.New("reconnect"),
			Addr:           cfg.Wheel.Addr,
			Name:           cfg.Wheel.Name,
			ConnectOnStart: cfg.Reconnect.ConnectOnStart,
			SettleWindow:   cfg.SettleWindow(),
		})
		rec.Start(ctx)
		defer rec.Stop()
	} else {
		if err := mgr.Connect(ctx, cfg.Wheel.Addr, cfg.Wheel.Name); err != nil {
			log.Error().Err(err).Msg("initial connect failed")
		}
	}

	log.Info().Str("wheel", cfg.Wheel.Addr).Msg("wheelcored running")
	<-ctx.Done()

	log.Info().Msg("shutting down")
	mgr.Disconnect()
	if err := transport.Close(); err != nil {
		log.Warn().Err(err).Msg("transport close")
	}
}
