package jukebox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taperfan/showgo/pkg/player"
)

type nullSource struct{}

func (nullSource) Open(context.Context, string, int64) (io.ReadCloser, int64, error) {
	return nil, 0, fmt.Errorf("no stream available")
}

func TestHandlerNowPlaying(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := player.New(player.Config{}, logger, player.Options{Source: nullSource{}})
	if err != nil {
		t.Fatalf("player.New: %v", err)
	}
	defer p.Close()

	tracks := []player.Track{
		{Title: "Scarlet Begonias", Set: "Set 2", URL: "https://host/a.mp3"},
		{Title: "Fire on the Mountain", Set: "Set 2", URL: "https://host/b.mp3"},
	}
	if err := p.LoadShow(tracks, 0, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}

	j := &Jukebox{logger: logger, player: p}
	rec := httptest.NewRecorder()
	j.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nowplaying", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type %q", ct)
	}

	var resp nowPlaying
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.State != "idle" {
		t.Errorf("state %q, want idle", resp.State)
	}
	if resp.Tracks != 2 || resp.TrackIndex != 0 {
		t.Errorf("track counts %d/%d", resp.TrackIndex, resp.Tracks)
	}
	if resp.TrackTitle != "Scarlet Begonias" || resp.SetName != "Set 2" {
		t.Errorf("track fields %q / %q", resp.TrackTitle, resp.SetName)
	}
	if resp.Volume != 75 {
		t.Errorf("volume %d, want the seed default", resp.Volume)
	}
	if resp.ErrorKind != "" {
		t.Errorf("error kind %q on a healthy session", resp.ErrorKind)
	}
}
