package app

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/1ureka/facelink/internal/capture"
	"github.com/1ureka/facelink/internal/config"
	"github.com/1ureka/facelink/internal/engine"
	"github.com/1ureka/facelink/internal/relay"
	"github.com/1ureka/facelink/internal/render"
	"github.com/1ureka/facelink/internal/util"
)

const statsInterval = 5 * time.Second

// Run builds every collaborator from cfg and runs the call until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	stats := &util.MediaStats{}

	api, err := engine.NewAPI(engine.Options{
		STUNServers: cfg.STUNServers,
		DisableMDNS: cfg.DisableMDNS,
	})
	if err != nil {
		return err
	}

	sink, err := newSink(cfg, stats)
	if err != nil {
		return err
	}

	deps := Deps{
		Engines:       api.Factory(),
		Relay:         newRelay(cfg),
		Sink:          sink,
		Stats:         stats,
		StatsInterval: statsInterval,
		GatherTimeout: cfg.GatherTimeout,
		AutoConnect:   cfg.AutoConnect,
	}

	stream, err := capture.Acquire(cfg.Constraints, sources(cfg))
	switch {
	case err == nil:
		deps.Stream = stream
	case errors.Is(err, capture.ErrDeviceUnavailable):
		util.LogWarning("local media: %v", err)
	default:
		return err
	}

	return NewCall(deps).Run(ctx)
}

// sources lists only the devices cfg actually enables.
func sources(cfg *config.Config) capture.Sources {
	var src capture.Sources
	if cfg.HasCamera() {
		src.Video = cfg.VideoPath
	}
	if cfg.HasMicrophone() {
		src.Audio = cfg.AudioPath
	}
	return src
}

func newRelay(cfg *config.Config) relay.Relay {
	if cfg.Relay == config.RelayPanel {
		return relay.NewPanel(cfg.PanelAddr)
	}
	return relay.NewTerminal(os.Stdin, os.Stdout)
}

func newSink(cfg *config.Config, stats *util.MediaStats) (render.Sink, error) {
	if cfg.OutDir == "" {
		return render.NewLogSink(stats), nil
	}
	return render.NewDiskSink(cfg.OutDir, stats)
}
