package player

import "time"

// Track is one playable audio file within a show. Tracks are immutable
// once created; the engine treats URL as an opaque, range-capable HTTP
// resource.
type Track struct {
	Title    string
	Set      string
	URL      string
	Index    int
	Duration time.Duration // 0 when unknown until streamed
}
