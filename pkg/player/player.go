package player

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Options carries the collaborators for a Player. Source is required;
// Output defaults to the process speaker and Decoder to mp3.
type Options struct {
	Source     Source
	Output     Output
	Decoder    Decoder
	Registerer prometheus.Registerer
}

// Player is the facade over the playback engine, recovery supervisor,
// playlist controller, volume control, and status publisher. Every
// method returns immediately and is safe to call from a UI thread while
// the engine's worker streams; reads come from the pull-based Status
// surface.
type Player struct {
	logger *slog.Logger
	cfg    Config

	engine     *Engine
	supervisor *Supervisor
	playlist   *Playlist
	volume     *VolumeControl
	status     *StatusPublisher
	output     Output

	mu        sync.Mutex
	sessionID string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New assembles a Player. The default volume is seeded from cfg once,
// here; later volume changes are never written back to configuration.
func New(cfg Config, logger *slog.Logger, opts Options) (*Player, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("a stream source is required")
	}
	if opts.Output == nil {
		opts.Output = NewSpeakerOutput()
	}
	cfg = cfg.withDefaults()

	m := newMetrics(opts.Registerer)
	engine := NewEngine(cfg, logger, opts.Source, opts.Output, opts.Decoder, m)
	supervisor := NewSupervisor(cfg, logger, engine, m)
	playlist := NewPlaylist(cfg, logger, engine, m)
	volume := NewVolumeControl(cfg.DefaultVolume, logger, engine)

	p := &Player{
		logger:     logger.With("module", "player"),
		cfg:        cfg,
		engine:     engine,
		supervisor: supervisor,
		playlist:   playlist,
		volume:     volume,
		status:     NewStatusPublisher(engine, playlist, volume),
		output:     opts.Output,
		done:       make(chan struct{}),
	}

	supervisor.Start()
	p.wg.Add(1)
	go p.dispatch()
	return p, nil
}

// dispatch fans engine events out to the supervisor and the playlist.
// A single goroutine keeps delivery in transition order. Events from a
// superseded load generation are discarded here so a stale failure or
// finish notification cannot act on the session that replaced it.
func (p *Player) dispatch() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.engine.Events():
			if ev.Gen != p.engine.generation() {
				continue
			}
			p.supervisor.Handle(ev)
			p.playlist.Handle(ev)
		case <-p.done:
			return
		}
	}
}

// LoadShow replaces the playlist with a new show and starts a fresh
// playback session. With autoPlay unset the show is staged but nothing
// streams until PlayPause or navigation.
func (p *Player) LoadShow(tracks []Track, startIndex int, autoPlay bool) error {
	p.supervisor.CancelPending()
	st := p.engine.State()
	if st != StateIdle && st != StateStopped {
		p.engine.Stop()
	}

	if err := p.playlist.LoadShow(tracks, startIndex, autoPlay); err != nil {
		return err
	}

	p.mu.Lock()
	p.sessionID = uuid.New().String()
	id := p.sessionID
	p.mu.Unlock()
	p.logger.Info("session started", "session", id, "tracks", len(tracks), "auto_play", autoPlay)
	return nil
}

// PlayPause toggles playback. From Idle, Stopped, or Error it starts
// the current playlist track instead, resuming at the preserved
// position after a failure so a parked session can be retried manually.
func (p *Player) PlayPause() {
	switch p.engine.State() {
	case StateIdle, StateStopped:
		if t, ok := p.playlist.CurrentTrack(); ok {
			p.supervisor.CancelPending()
			p.engine.Load(t, 0)
		}
	case StateError:
		if t, ok := p.playlist.CurrentTrack(); ok {
			pos := p.engine.Position()
			p.supervisor.CancelPending()
			p.engine.Load(t, pos)
		}
	default:
		p.engine.PlayPause()
	}
}

// Stop halts playback, releases the stream, and cancels any pending
// recovery attempt.
func (p *Player) Stop() {
	p.supervisor.CancelPending()
	p.engine.Stop()
}

// Seek moves to an absolute position in the current track.
func (p *Player) Seek(pos time.Duration) {
	p.engine.Seek(pos)
}

// Skip moves by a relative amount, negative to rewind. The target is
// clamped to the track bounds.
func (p *Player) Skip(delta time.Duration) {
	p.engine.Seek(p.engine.Position() + delta)
}

// NextTrack advances to the following track, bounded at the end of the
// show unless wraparound is configured.
func (p *Player) NextTrack() {
	p.supervisor.CancelPending()
	p.playlist.Next()
}

// PreviousTrack returns to the preceding track, bounded at the start.
func (p *Player) PreviousTrack() {
	p.supervisor.CancelPending()
	p.playlist.Previous()
}

// SetVolume stores and applies a volume, clamped to [0,100].
func (p *Player) SetVolume(v int) { p.volume.Set(v) }

// GetVolume returns the stored volume, unaffected by mute.
func (p *Player) GetVolume() int { return p.volume.Get() }

// SetMuted mutes or unmutes without altering the stored volume.
func (p *Player) SetMuted(muted bool) { p.volume.SetMuted(muted) }

// IsMuted reports the mute flag.
func (p *Player) IsMuted() bool { return p.volume.Muted() }

// Status returns the pull-based accessor surface.
func (p *Player) Status() *StatusPublisher { return p.status }

// Snapshot returns a point-in-time view of the whole session.
func (p *Player) Snapshot() Status { return p.status.Snapshot() }

// Close stops playback, the supervisor, and the dispatch loop, and
// releases the output device.
func (p *Player) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.supervisor.Stop()
		p.engine.Stop()
		close(p.done)
		p.wg.Wait()
		err = p.output.Release()
	})
	return err
}
