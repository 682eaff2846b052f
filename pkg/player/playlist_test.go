package player

import (
	"sync"
	"testing"
	"time"
)

type loadCall struct {
	track Track
	pos   time.Duration
}

type loadRecorder struct {
	mu    sync.Mutex
	loads []loadCall
}

func (r *loadRecorder) Load(t Track, pos time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, loadCall{track: t, pos: pos})
}

func (r *loadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loads)
}

func (r *loadRecorder) last() loadCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[len(r.loads)-1]
}

func showOf(titles ...string) []Track {
	out := make([]Track, len(titles))
	for i, title := range titles {
		out[i] = Track{Title: title, URL: "https://host/" + title + ".mp3"}
	}
	return out
}

func TestPlaylistLoadShowValidation(t *testing.T) {
	rec := &loadRecorder{}
	p := NewPlaylist(testConfig(), testLogger(), rec, nil)

	if err := p.LoadShow(nil, 0, false); err == nil {
		t.Error("empty show accepted")
	}
	if err := p.LoadShow(showOf("a", "b"), 2, false); err == nil {
		t.Error("out-of-range start index accepted")
	}
	if err := p.LoadShow(showOf("a", "b"), -1, false); err == nil {
		t.Error("negative start index accepted")
	}
	if rec.count() != 0 {
		t.Errorf("rejected loads still reached the engine: %d", rec.count())
	}
}

func TestPlaylistLoadShowStagesWithoutAutoPlay(t *testing.T) {
	rec := &loadRecorder{}
	p := NewPlaylist(testConfig(), testLogger(), rec, nil)

	if err := p.LoadShow(showOf("a", "b", "c"), 1, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}
	if got := p.TotalTracks(); got != 3 {
		t.Errorf("total tracks %d, want 3", got)
	}
	if got := p.CurrentIndex(); got != 1 {
		t.Errorf("current index %d, want 1", got)
	}
	if rec.count() != 0 {
		t.Errorf("staged show started %d loads", rec.count())
	}

	tr, ok := p.CurrentTrack()
	if !ok || tr.Title != "b" || tr.Index != 1 {
		t.Errorf("current track %+v", tr)
	}
}

func TestPlaylistLoadShowAutoPlayStartsFirst(t *testing.T) {
	rec := &loadRecorder{}
	p := NewPlaylist(testConfig(), testLogger(), rec, nil)

	if err := p.LoadShow(showOf("a", "b"), 0, true); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("loads %d, want 1", rec.count())
	}
	if call := rec.last(); call.track.Title != "a" || call.pos != 0 {
		t.Errorf("unexpected load %+v", call)
	}
}

func TestPlaylistNavigationBounded(t *testing.T) {
	rec := &loadRecorder{}
	p := NewPlaylist(testConfig(), testLogger(), rec, nil)
	if err := p.LoadShow(showOf("a", "b", "c"), 0, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}

	p.Previous()
	if got := p.CurrentIndex(); got != 0 {
		t.Errorf("previous at the first track moved to %d", got)
	}
	if rec.count() != 0 {
		t.Error("bounded previous started a load")
	}

	p.Next()
	p.Next()
	if got := p.CurrentIndex(); got != 2 {
		t.Fatalf("index after two next %d, want 2", got)
	}
	loads := rec.count()

	p.Next()
	if got := p.CurrentIndex(); got != 2 {
		t.Errorf("next at the last track moved to %d", got)
	}
	if rec.count() != loads {
		t.Error("bounded next started a load")
	}
}

func TestPlaylistNavigationWraparound(t *testing.T) {
	cfg := testConfig()
	cfg.Wraparound = true
	rec := &loadRecorder{}
	p := NewPlaylist(cfg, testLogger(), rec, nil)
	if err := p.LoadShow(showOf("a", "b", "c"), 0, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}

	p.Previous()
	if got := p.CurrentIndex(); got != 2 {
		t.Errorf("previous from the first track wrapped to %d, want 2", got)
	}
	p.Next()
	if got := p.CurrentIndex(); got != 0 {
		t.Errorf("next from the last track wrapped to %d, want 0", got)
	}
}

func TestPlaylistAutoAdvanceOnTrackFinished(t *testing.T) {
	rec := &loadRecorder{}
	p := NewPlaylist(testConfig(), testLogger(), rec, nil)
	if err := p.LoadShow(showOf("a", "b"), 0, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}

	p.Handle(Event{Kind: EventTrackFinished})
	if got := p.CurrentIndex(); got != 1 {
		t.Fatalf("index after finish %d, want 1", got)
	}
	if call := rec.last(); call.track.Title != "b" || call.pos != 0 {
		t.Errorf("unexpected load %+v", call)
	}

	// Finishing the last track holds rather than wrapping.
	p.Handle(Event{Kind: EventTrackFinished})
	if got := p.CurrentIndex(); got != 1 {
		t.Errorf("index after final finish %d, want 1", got)
	}
	if rec.count() != 1 {
		t.Errorf("end of show started another load: %d", rec.count())
	}
}

func TestPlaylistAdvanceOnUnavailable(t *testing.T) {
	ev := Event{
		Kind:    EventStateChanged,
		To:      StateError,
		ErrKind: ErrorStreamUnavailable,
	}

	rec := &loadRecorder{}
	p := NewPlaylist(testConfig(), testLogger(), rec, nil)
	if err := p.LoadShow(showOf("a", "b"), 0, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}
	p.Handle(ev)
	if got := p.CurrentIndex(); got != 0 {
		t.Errorf("unavailable track advanced without being configured to: index %d", got)
	}

	cfg := testConfig()
	cfg.AdvanceOnUnavailable = true
	rec = &loadRecorder{}
	p = NewPlaylist(cfg, testLogger(), rec, nil)
	if err := p.LoadShow(showOf("a", "b"), 0, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}
	p.Handle(ev)
	if got := p.CurrentIndex(); got != 1 {
		t.Errorf("index after unavailable advance %d, want 1", got)
	}
	if call := rec.last(); call.track.Title != "b" {
		t.Errorf("unexpected load %+v", call)
	}
}

func TestPlaylistReplacementResetsIndexes(t *testing.T) {
	rec := &loadRecorder{}
	p := NewPlaylist(testConfig(), testLogger(), rec, nil)
	if err := p.LoadShow(showOf("a", "b", "c"), 2, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}

	// Caller-supplied indexes are overwritten with positions.
	tracks := showOf("x", "y")
	tracks[0].Index = 9
	tracks[1].Index = 9
	if err := p.LoadShow(tracks, 0, false); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}
	if got := p.TotalTracks(); got != 2 {
		t.Errorf("total tracks %d, want 2", got)
	}
	tr, _ := p.CurrentTrack()
	if tr.Index != 0 || tr.Title != "x" {
		t.Errorf("current track %+v", tr)
	}
}
