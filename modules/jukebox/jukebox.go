package jukebox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taperfan/showgo/pkg/player"
	"github.com/taperfan/showgo/pkg/shows"
	"github.com/taperfan/showgo/pkg/trackstream"
)

// Jukebox is the module that owns one resilient player for the process:
// it fetches the configured show's track list at startup, seeds the
// player from configuration, and tears everything down on shutdown.
type Jukebox struct {
	services.Service
	cfg    *Config
	logger *slog.Logger

	shows  *shows.Client
	player *player.Player
}

var module = "jukebox"

// New creates and returns a new Jukebox.
func New(cfg Config, logger slog.Logger) (*Jukebox, error) {
	l := logger.With("module", module)

	p, err := player.New(cfg.Player, l, player.Options{
		Source:     trackstream.New(cfg.Stream),
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return nil, err
	}

	j := &Jukebox{
		cfg:    &cfg,
		logger: l,
		shows:  shows.New(l),
		player: p,
	}

	j.Service = services.NewBasicService(j.starting, j.running, j.stopping)

	return j, nil
}

func (j *Jukebox) starting(ctx context.Context) error {
	if j.cfg.ShowURL == "" {
		return fmt.Errorf("a show URL is required")
	}

	tracks, err := j.shows.Fetch(ctx, j.cfg.ShowURL, j.cfg.Quality)
	if err != nil {
		j.logger.Error("error fetching show", "err", err, "url", j.cfg.ShowURL)
		return err
	}
	j.shows.CheckRanges(ctx, tracks)

	return j.player.LoadShow(tracks, j.cfg.StartIndex, j.cfg.AutoPlay)
}

func (j *Jukebox) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (j *Jukebox) stopping(_ error) error {
	j.logger.Info("stopping")
	return j.player.Close()
}

// Player exposes the command/status surface for embedding callers.
func (j *Jukebox) Player() *player.Player {
	return j.player
}
