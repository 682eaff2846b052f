package jukebox

import (
	"encoding/json"
	"net/http"

	"github.com/taperfan/showgo/pkg/player"
)

// nowPlaying is the wire shape of the status snapshot, with durations
// in seconds for polling UI clients.
type nowPlaying struct {
	State           string  `json:"state"`
	ErrorKind       string  `json:"error_kind,omitempty"`
	Error           string  `json:"error,omitempty"`
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	TrackIndex      int     `json:"track_index"`
	Tracks          int     `json:"tracks"`
	TrackTitle      string  `json:"track_title,omitempty"`
	SetName         string  `json:"set_name,omitempty"`
	Volume          int     `json:"volume"`
	Muted           bool    `json:"muted"`
}

// Handler serves the now-playing snapshot. Safe to poll at a few hertz;
// each request reads the pull-based status surface without touching the
// streaming worker.
func (j *Jukebox) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		snap := j.player.Snapshot()
		resp := nowPlaying{
			State:           snap.State.String(),
			Error:           snap.ErrMsg,
			PositionSeconds: snap.Position.Seconds(),
			DurationSeconds: snap.Duration.Seconds(),
			TrackIndex:      snap.TrackIndex,
			Tracks:          snap.Tracks,
			TrackTitle:      snap.TrackTitle,
			SetName:         snap.SetName,
			Volume:          snap.Volume,
			Muted:           snap.Muted,
		}
		if snap.ErrKind != player.ErrorNone {
			resp.ErrorKind = snap.ErrKind.String()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			j.logger.Error("error encoding now-playing response", "err", err)
		}
	})
}
