package player

import "time"

// Status is a point-in-time snapshot of the session, cheap enough to
// assemble for pollers running at several hertz.
type Status struct {
	State      State         `json:"state"`
	ErrKind    ErrorKind     `json:"error_kind,omitempty"`
	ErrMsg     string        `json:"error,omitempty"`
	Position   time.Duration `json:"position"`
	Duration   time.Duration `json:"duration"`
	TrackIndex int           `json:"track_index"`
	Tracks     int           `json:"tracks"`
	TrackTitle string        `json:"track_title,omitempty"`
	SetName    string        `json:"set_name,omitempty"`
	Volume     int           `json:"volume"`
	Muted      bool          `json:"muted"`
}

// StatusPublisher is the pull-only accessor surface over the session.
// No push delivery happens here; an event layer can sit on top without
// changing these contracts.
type StatusPublisher struct {
	engine   *Engine
	playlist *Playlist
	volume   *VolumeControl
}

// NewStatusPublisher composes the read side of the player.
func NewStatusPublisher(engine *Engine, playlist *Playlist, volume *VolumeControl) *StatusPublisher {
	return &StatusPublisher{engine: engine, playlist: playlist, volume: volume}
}

func (s *StatusPublisher) State() State            { return s.engine.State() }
func (s *StatusPublisher) Position() time.Duration { return s.engine.Position() }
func (s *StatusPublisher) Duration() time.Duration { return s.engine.Duration() }
func (s *StatusPublisher) CurrentTrackIndex() int  { return s.playlist.CurrentIndex() }
func (s *StatusPublisher) TotalTracks() int        { return s.playlist.TotalTracks() }
func (s *StatusPublisher) Volume() int             { return s.volume.Get() }
func (s *StatusPublisher) Muted() bool             { return s.volume.Muted() }

// Snapshot gathers every accessor into one Status.
func (s *StatusPublisher) Snapshot() Status {
	st := Status{
		State:      s.engine.State(),
		ErrKind:    s.engine.ErrKind(),
		ErrMsg:     s.engine.ErrMessage(),
		Position:   s.engine.Position(),
		Duration:   s.engine.Duration(),
		TrackIndex: s.playlist.CurrentIndex(),
		Tracks:     s.playlist.TotalTracks(),
		Volume:     s.volume.Get(),
		Muted:      s.volume.Muted(),
	}
	if t, ok := s.playlist.CurrentTrack(); ok {
		st.TrackTitle = t.Title
		st.SetName = t.Set
	}
	return st
}
