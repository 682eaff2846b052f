// Package shows fetches the ordered track list for a concert recording
// from a track-source host. The payload is treated as opaque data: an
// ordered list of titles, set names, and range-capable stream URLs.
package shows

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taperfan/showgo/pkg/player"
)

const (
	fetchTimeout  = 15 * time.Second
	probeTimeout  = 5 * time.Second
	probeParallel = 4
)

type showDocument struct {
	Show   string `json:"show"`
	Tracks []struct {
		Title           string            `json:"title"`
		Set             string            `json:"set"`
		URL             string            `json:"url"`
		URLs            map[string]string `json:"urls,omitempty"`
		DurationSeconds float64           `json:"duration_seconds,omitempty"`
	} `json:"tracks"`
}

// Client retrieves show track lists.
type Client struct {
	logger *slog.Logger
	http   *http.Client
}

// New creates a Client.
func New(logger *slog.Logger) *Client {
	return &Client{
		logger: logger.With("module", "shows"),
		http:   &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch retrieves the show document at showURL and returns its tracks
// in order. When a track offers per-quality URLs, quality selects among
// them, falling back to the track's default URL.
func (c *Client) Fetch(ctx context.Context, showURL, quality string) ([]player.Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, showURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create show request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch show: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("show %s returned status %d", showURL, resp.StatusCode)
	}

	var doc showDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse show document: %w", err)
	}
	if len(doc.Tracks) == 0 {
		return nil, fmt.Errorf("show %s has no tracks", showURL)
	}

	tracks := make([]player.Track, 0, len(doc.Tracks))
	for i, t := range doc.Tracks {
		url := t.URL
		if quality != "" {
			if u, ok := t.URLs[quality]; ok {
				url = u
			}
		}
		if url == "" {
			return nil, fmt.Errorf("track %d (%s) has no stream URL", i, t.Title)
		}
		tracks = append(tracks, player.Track{
			Title:    t.Title,
			Set:      t.Set,
			URL:      url,
			Index:    i,
			Duration: time.Duration(t.DurationSeconds * float64(time.Second)),
		})
	}

	c.logger.Info("show fetched", "show", doc.Show, "tracks", len(tracks), "quality", quality)
	return tracks, nil
}

// CheckRanges probes each track with a HEAD request and logs the ones
// whose host does not advertise byte-range support. Seek and mid-track
// recovery degrade to restart-from-zero on such tracks; playback still
// works, so probe failures are reported, not fatal.
func (c *Client) CheckRanges(ctx context.Context, tracks []player.Track) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(probeParallel)

	for _, t := range tracks {
		t := t
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(pctx, http.MethodHead, t.URL, nil)
			if err != nil {
				return nil
			}
			resp, err := c.http.Do(req)
			if err != nil {
				c.logger.Warn("track probe failed", "index", t.Index, "title", t.Title, "err", err)
				return nil
			}
			resp.Body.Close()
			if resp.Header.Get("Accept-Ranges") != "bytes" {
				c.logger.Warn("track host does not advertise range support",
					"index", t.Index, "title", t.Title)
			}
			return nil
		})
	}
	_ = g.Wait()
}
