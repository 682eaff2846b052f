package jukebox

import (
	"flag"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/taperfan/showgo/pkg/player"
	"github.com/taperfan/showgo/pkg/trackstream"
)

type Config struct {
	ShowURL    string `yaml:"show-url,omitempty"`    // track-source document for the show to play
	Quality    string `yaml:"quality,omitempty"`     // preferred recording quality when a track offers several
	StartIndex int    `yaml:"start-index,omitempty"` // track to begin with
	AutoPlay   bool   `yaml:"auto-play,omitempty"`   // start streaming as soon as the show is loaded

	Stream trackstream.Config `yaml:"stream,omitempty"`
	Player player.Config      `yaml:"player,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.ShowURL, util.PrefixConfig(prefix, "show-url"), "",
		"URL of the show document listing the tracks to play, in order.")
	f.StringVar(&cfg.Quality, util.PrefixConfig(prefix, "quality"), "",
		"Preferred recording quality (e.g. sbd, aud) when tracks offer per-quality URLs.")
	f.IntVar(&cfg.StartIndex, util.PrefixConfig(prefix, "start-index"), 0,
		"Index of the track to start from.")
	f.BoolVar(&cfg.AutoPlay, util.PrefixConfig(prefix, "auto-play"), true,
		"Begin playback immediately once the show loads.")

	cfg.Stream.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "stream"), f)
	cfg.Player.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "player"), f)
}
