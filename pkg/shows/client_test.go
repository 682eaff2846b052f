package shows

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const showJSON = `{
  "show": "1977-05-08 Barton Hall",
  "tracks": [
    {
      "title": "New Minglewood Blues",
      "set": "Set 1",
      "url": "https://host/t1.mp3",
      "urls": {"hi": "https://host/t1-hi.mp3", "lo": "https://host/t1-lo.mp3"},
      "duration_seconds": 271.5
    },
    {
      "title": "Loser",
      "set": "Set 1",
      "url": "https://host/t2.mp3"
    }
  ]
}`

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept header %q", got)
		}
		w.Write([]byte(showJSON))
	}))
	defer server.Close()

	c := New(testLogger())
	tracks, err := c.Fetch(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(tracks) != 2 {
		t.Fatalf("track count %d, want 2", len(tracks))
	}
	first := tracks[0]
	if first.Title != "New Minglewood Blues" || first.Set != "Set 1" || first.Index != 0 {
		t.Errorf("first track %+v", first)
	}
	if first.URL != "https://host/t1.mp3" {
		t.Errorf("default URL %q", first.URL)
	}
	if first.Duration != 271500*time.Millisecond {
		t.Errorf("duration %v", first.Duration)
	}
	if tracks[1].Duration != 0 {
		t.Errorf("missing duration parsed as %v", tracks[1].Duration)
	}
}

func TestFetchQualitySelection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(showJSON))
	}))
	defer server.Close()

	c := New(testLogger())
	tracks, err := c.Fetch(context.Background(), server.URL, "hi")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if tracks[0].URL != "https://host/t1-hi.mp3" {
		t.Errorf("quality URL %q", tracks[0].URL)
	}
	// Tracks without per-quality URLs fall back to the default.
	if tracks[1].URL != "https://host/t2.mp3" {
		t.Errorf("fallback URL %q", tracks[1].URL)
	}
}

func TestFetchErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
	}{
		{"server error", "boom", http.StatusInternalServerError},
		{"bad json", "{not json", http.StatusOK},
		{"no tracks", `{"show":"x","tracks":[]}`, http.StatusOK},
		{"missing url", `{"show":"x","tracks":[{"title":"a"}]}`, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.code)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			if _, err := New(testLogger()).Fetch(context.Background(), server.URL, ""); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestCheckRangesProbesEveryTrack(t *testing.T) {
	var heads atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe used method %s", r.Method)
		}
		heads.Add(1)
		w.Header().Set("Accept-Ranges", "bytes")
	}))
	defer server.Close()

	doc := `{"show":"x","tracks":[
		{"title":"a","url":"` + server.URL + `/a"},
		{"title":"b","url":"` + server.URL + `/b"},
		{"title":"c","url":"` + server.URL + `/c"}
	]}`
	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(doc))
	}))
	defer index.Close()

	c := New(testLogger())
	tracks, err := c.Fetch(context.Background(), index.URL, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// Probes log findings but never fail the load, with or without
	// range support on the host.
	c.CheckRanges(context.Background(), tracks)
	if got := heads.Load(); got != 3 {
		t.Errorf("probe count %d, want 3", got)
	}
}
