package player

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// engineController is the slice of the engine the playlist drives.
type engineController interface {
	Load(t Track, startPos time.Duration)
}

// Playlist holds the ordered track sequence for a show and the current
// index. The sequence is replaced atomically on a new show load and is
// never mutated element-by-element while a track is active.
type Playlist struct {
	logger  *slog.Logger
	engine  engineController
	metrics *metrics

	wrap                 bool
	advanceOnUnavailable bool

	mu     sync.Mutex
	tracks []Track
	index  int
}

// NewPlaylist creates an empty playlist bound to an engine.
func NewPlaylist(cfg Config, logger *slog.Logger, engine engineController, m *metrics) *Playlist {
	if m == nil {
		m = newMetrics(nil)
	}
	return &Playlist{
		logger:               logger.With("module", "playlist"),
		engine:               engine,
		metrics:              m,
		wrap:                 cfg.Wraparound,
		advanceOnUnavailable: cfg.AdvanceOnUnavailable,
	}
}

// LoadShow atomically replaces the playlist with tracks, sets the
// current index, and, when autoPlay is set, starts the first track.
func (p *Playlist) LoadShow(tracks []Track, startIndex int, autoPlay bool) error {
	if len(tracks) == 0 {
		return fmt.Errorf("show has no tracks")
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return fmt.Errorf("start index %d out of range for %d tracks", startIndex, len(tracks))
	}

	copied := make([]Track, len(tracks))
	copy(copied, tracks)
	for i := range copied {
		copied[i].Index = i
	}

	p.mu.Lock()
	p.tracks = copied
	p.index = startIndex
	t := copied[startIndex]
	p.mu.Unlock()

	p.logger.Info("show loaded", "tracks", len(copied), "start", startIndex, "auto_play", autoPlay)
	if autoPlay {
		p.engine.Load(t, 0)
	}
	return nil
}

// Next moves to the following track. At the last index this is a no-op
// unless wraparound is configured.
func (p *Playlist) Next() {
	p.step(1, false)
}

// Previous moves to the preceding track. At index zero this is a no-op
// unless wraparound is configured.
func (p *Playlist) Previous() {
	p.step(-1, false)
}

func (p *Playlist) step(delta int, auto bool) {
	p.mu.Lock()
	if len(p.tracks) == 0 {
		p.mu.Unlock()
		return
	}
	next := p.index + delta
	if next < 0 || next >= len(p.tracks) {
		if !p.wrap {
			p.mu.Unlock()
			return
		}
		next = (next + len(p.tracks)) % len(p.tracks)
	}
	p.index = next
	t := p.tracks[next]
	p.mu.Unlock()

	if auto {
		p.metrics.tracksAdvanced.Inc()
	}
	p.logger.Info("track change", "index", t.Index, "title", t.Title, "set", t.Set, "auto", auto)
	p.engine.Load(t, 0)
}

// Handle consumes engine events: natural track completion advances the
// sequence, and a vanished track may advance it when configured. At the
// last track the playlist holds in Stopped rather than wrapping, unless
// wraparound is on.
func (p *Playlist) Handle(ev Event) {
	switch {
	case ev.Kind == EventTrackFinished:
		p.autoAdvance()
	case ev.Kind == EventStateChanged && ev.To == StateError && ev.ErrKind == ErrorStreamUnavailable:
		if p.advanceOnUnavailable {
			p.logger.Warn("track unavailable, advancing", "err", ev.ErrMsg)
			p.autoAdvance()
		}
	}
}

func (p *Playlist) autoAdvance() {
	p.mu.Lock()
	atEnd := p.index >= len(p.tracks)-1
	p.mu.Unlock()
	if atEnd && !p.wrap {
		// The engine is already Stopped (or Error); hold here.
		p.logger.Info("end of show")
		return
	}
	p.step(1, true)
}

// CurrentIndex returns the index of the active track.
func (p *Playlist) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// TotalTracks returns the number of tracks in the loaded show.
func (p *Playlist) TotalTracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracks)
}

// CurrentTrack returns a copy of the active track, or false when no
// show is loaded.
func (p *Playlist) CurrentTrack() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tracks) == 0 {
		return Track{}, false
	}
	return p.tracks[p.index], true
}
