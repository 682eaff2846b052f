package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"go.uber.org/atomic"
)

// Source turns a track URL into a byte stream starting at offset. It
// returns the stream, the total size of the resource in bytes (-1 when
// unknown), or an error.
type Source interface {
	Open(ctx context.Context, url string, offset int64) (io.ReadCloser, int64, error)
}

// Decoder turns a byte stream into playable samples. The default is
// beep's mp3 decoder; tests substitute synthetic streams.
type Decoder func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

func mp3Decoder(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	return mp3.Decode(rc)
}

const pumpBatch = 512

// Engine owns decode, output, and the playback state machine for one
// session at a time. All public methods are safe to call from a control
// thread while the worker goroutine streams; none of them block on
// network I/O. A new Load supersedes and tears down any in-flight
// stream, so state transitions stay totally ordered per session.
type Engine struct {
	logger  *slog.Logger
	cfg     Config
	source  Source
	decode  Decoder
	output  Output
	metrics *metrics

	mu         sync.Mutex
	gen        uint64 // load generation; stale workers are ignored
	track      *Track
	intentPlay bool
	cancel     context.CancelFunc
	errMsg     string

	state   atomic.Int32
	errKind atomic.Int32

	basePos  atomic.Duration // resume offset of the current stream
	samples  atomic.Int64    // samples delivered to the output since basePos
	rate     atomic.Int64    // samples per second, 0 until decoded
	duration atomic.Duration // 0 when unknown
	size     atomic.Int64    // resource size in bytes, -1 when unknown
	lastData atomic.Time     // last byte received from the source
	genLive  atomic.Uint64   // mirror of gen for lock-free staleness checks
	prebufN  atomic.Int64    // samples to accumulate before leaving Buffering

	vol  *effects.Volume
	ctrl *beep.Ctrl

	events chan Event
}

// NewEngine creates an engine bound to an output device. The decoder
// defaults to mp3 when nil.
func NewEngine(cfg Config, logger *slog.Logger, source Source, output Output, decode Decoder, m *metrics) *Engine {
	if decode == nil {
		decode = mp3Decoder
	}
	if m == nil {
		m = newMetrics(nil)
	}
	e := &Engine{
		logger:  logger.With("module", "engine"),
		cfg:     cfg.withDefaults(),
		source:  source,
		decode:  decode,
		output:  output,
		metrics: m,
		events:  make(chan Event, 128),
	}
	e.vol = &effects.Volume{Base: 2, Silent: true}
	e.ctrl = &beep.Ctrl{Streamer: e.vol, Paused: true}
	e.size.Store(-1)
	return e
}

// Events exposes the internal notification stream. Consumed by the
// facade's dispatch loop; external callers poll instead.
func (e *Engine) Events() <-chan Event { return e.events }

// State returns the last known playback state.
func (e *Engine) State() State { return State(e.state.Load()) }

// ErrKind returns the classification of the last failure, ErrorNone
// outside of the Error state.
func (e *Engine) ErrKind() ErrorKind { return ErrorKind(e.errKind.Load()) }

// ErrMessage returns the human-readable message of the last failure.
func (e *Engine) ErrMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errMsg
}

// Position returns the current playback position. Valid mid-Buffering;
// it advances only while samples are actually delivered to the output.
func (e *Engine) Position() time.Duration {
	rate := e.rate.Load()
	if rate == 0 {
		return e.basePos.Load()
	}
	return e.basePos.Load() + time.Duration(e.samples.Load())*time.Second/time.Duration(rate)
}

// Duration returns the known duration of the current track, 0 when
// unknown.
func (e *Engine) Duration() time.Duration { return e.duration.Load() }

// Track returns the track the session is bound to, nil when idle.
func (e *Engine) Track() *Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.track
}

// LastDataAt reports when the source last produced data. The recovery
// supervisor uses it for stall detection.
func (e *Engine) LastDataAt() time.Time { return e.lastData.Load() }

// SetGain applies an output level to the device chain. Driven by the
// volume controller; the engine itself never persists levels.
func (e *Engine) SetGain(gain float64, silent bool) {
	e.output.Lock()
	e.vol.Volume = gain
	e.vol.Silent = silent
	e.output.Unlock()
}

// Load begins playback of t at startPos, superseding any in-flight
// stream for this session. Rapid repeated calls are safe; the latest
// call wins. Returns immediately, the fetch happens on the worker.
func (e *Engine) Load(t Track, startPos time.Duration) {
	e.load(t, startPos, true)
}

// LoadPaused is Load with the play intent withheld: the track buffers
// and then holds in Paused until PlayPause.
func (e *Engine) LoadPaused(t Track, startPos time.Duration) {
	e.load(t, startPos, false)
}

func (e *Engine) load(t Track, startPos time.Duration, intent bool) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.genLive.Store(gen)
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	tr := t
	// Reloading the same track with no metadata duration keeps whatever
	// the decoder revealed, so seeks stay byte-mapped.
	if e.track == nil || e.track.URL != t.URL {
		e.size.Store(-1)
		e.duration.Store(t.Duration)
	} else if t.Duration > 0 {
		e.duration.Store(t.Duration)
	}
	e.track = &tr
	e.intentPlay = intent
	e.errMsg = ""
	e.errKind.Store(int32(ErrorNone))
	e.basePos.Store(startPos)
	e.samples.Store(0)
	e.rate.Store(0)
	e.lastData.Store(time.Now())
	ev := e.transitionLocked(StateLoading)
	e.mu.Unlock()
	e.emit(ev)

	e.logger.Info("loading track", "title", t.Title, "set", t.Set, "index", t.Index, "position", startPos)
	go e.run(ctx, gen, tr, startPos)
}

// PlayPause toggles Playing and Paused. During Loading or Buffering it
// queues the intent instead; in any other state it is a no-op.
func (e *Engine) PlayPause() {
	e.mu.Lock()
	var ev Event
	switch e.State() {
	case StatePlaying:
		e.intentPlay = false
		e.setPausedLocked(true)
		ev = e.transitionLocked(StatePaused)
	case StatePaused:
		e.intentPlay = true
		e.setPausedLocked(false)
		ev = e.transitionLocked(StatePlaying)
	case StateLoading, StateBuffering:
		e.intentPlay = !e.intentPlay
		e.mu.Unlock()
		return
	default:
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.emit(ev)
}

// Seek moves playback to pos, clamped to the known duration. Valid in
// Playing and Paused; the stream is reopened at the mapped byte offset
// and the session re-enters Buffering. With an unknown duration the
// stream restarts from the beginning.
func (e *Engine) Seek(pos time.Duration) {
	e.mu.Lock()
	st := e.State()
	if st != StatePlaying && st != StatePaused || e.track == nil {
		e.mu.Unlock()
		return
	}
	t := *e.track
	intent := e.intentPlay
	if pos < 0 {
		pos = 0
	}
	if d := e.duration.Load(); d > 0 && pos > d {
		pos = d
	} else if d == 0 {
		pos = 0
	}
	e.mu.Unlock()
	e.load(t, pos, intent)
}

// Stop releases the stream and the output chain. Valid from any state.
// The last known position is preserved for display.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.gen++
	e.genLive.Store(e.gen)
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.intentPlay = false
	e.setPausedLocked(true)
	ev := e.transitionLocked(StateStopped)
	e.mu.Unlock()
	e.output.Clear()
	e.emit(ev)
}

// Exhaust parks the session in Error(ResourceExhausted), preserving the
// position for a manual retry. Called by the recovery supervisor when
// the retry budget runs out.
func (e *Engine) Exhaust(msg string) {
	e.mu.Lock()
	e.gen++
	e.genLive.Store(e.gen)
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.errMsg = msg
	e.errKind.Store(int32(ErrorResourceExhausted))
	ev := e.transitionLocked(StateError)
	e.mu.Unlock()
	e.output.Clear()
	e.metrics.errors.WithLabelValues(ErrorResourceExhausted.String()).Inc()
	e.emit(ev)
}

// AbortStalled tears down a session stuck in Buffering and reports it
// as a transport error. The supervisor calls this when the no-data
// window elapses; the resulting Error event drives a normal recovery.
func (e *Engine) AbortStalled() {
	e.mu.Lock()
	if e.State() != StateBuffering {
		e.mu.Unlock()
		return
	}
	e.gen++
	e.genLive.Store(e.gen)
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.errMsg = "no stream data within the stall window"
	e.errKind.Store(int32(ErrorNetworkTransient))
	ev := e.transitionLocked(StateError)
	e.mu.Unlock()
	e.output.Clear()
	e.metrics.stalls.Inc()
	e.metrics.errors.WithLabelValues(ErrorNetworkTransient.String()).Inc()
	e.emit(ev)
}

// transitionLocked applies a state change and returns the event to emit
// once the lock is released. Events are emitted outside the lock so a
// worker never blocks holding it. The event carries the current load
// generation; consumers drop events whose generation has been
// superseded.
func (e *Engine) transitionLocked(to State) Event {
	from := State(e.state.Load())
	e.state.Store(int32(to))
	e.metrics.transitions.WithLabelValues(to.String()).Inc()
	e.logger.Debug("state", "from", from, "to", to)
	return Event{
		Kind:     EventStateChanged,
		From:     from,
		To:       to,
		ErrKind:  ErrorKind(e.errKind.Load()),
		ErrMsg:   e.errMsg,
		Track:    e.track,
		Position: e.Position(),
		Gen:      e.gen,
	}
}

// generation returns the current load generation. Event consumers and
// deferred timers compare against it before acting on a session.
func (e *Engine) generation() uint64 { return e.genLive.Load() }

// setPausedLocked flips the output control. The output lock is distinct
// from e.mu and ordered after it.
func (e *Engine) setPausedLocked(paused bool) {
	e.output.Lock()
	e.ctrl.Paused = paused
	e.output.Unlock()
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event buffer full, dropping", "kind", ev.Kind, "to", ev.To)
	}
}

// run is the background worker for one load generation: it opens the
// stream, decodes, and paces samples into the output channel. All
// suspension points live here.
func (e *Engine) run(ctx context.Context, gen uint64, t Track, startPos time.Duration) {
	offset := e.byteOffset(startPos, e.duration.Load(), e.size.Load())
	rc, size, err := e.source.Open(ctx, t.URL, offset)
	if err != nil {
		e.fail(gen, classifyOpenErr(err), err)
		return
	}

	// A resume into a track whose size was still unknown opens from zero
	// first, then reopens at the mapped offset once the size is known.
	if offset == 0 && startPos > 0 {
		if mapped := e.byteOffset(startPos, e.duration.Load(), size); mapped > 0 {
			rc.Close()
			offset = mapped
			rc, size, err = e.source.Open(ctx, t.URL, offset)
			if err != nil {
				e.fail(gen, classifyOpenErr(err), err)
				return
			}
		} else {
			// Position cannot be mapped to bytes; restart honestly from zero.
			e.basePos.Store(0)
		}
	}

	streamer, format, err := e.decode(&dataReader{rc: rc, last: &e.lastData})
	if err != nil {
		rc.Close()
		e.fail(gen, classifyStreamErr(err), err)
		return
	}
	defer streamer.Close()

	if err := e.output.Acquire(format); err != nil {
		e.fail(gen, ErrorDecodeFailure, err)
		return
	}

	prebufN := format.SampleRate.N(e.cfg.Prebuffer)
	if prebufN < 1 {
		prebufN = 1
	}
	// The channel must fit a full pump batch past the prebuffer threshold
	// so the worker reaches its fill check before blocking on a send.
	chCap := prebufN * 2
	if chCap < pumpBatch*2 {
		chCap = pumpBatch * 2
	}
	ch := make(chan [2]float64, chCap)

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.rate.Store(int64(format.SampleRate))
	e.size.Store(size)
	if e.duration.Load() == 0 {
		// The metadata did not know this track's length; the decoder may.
		// Learning it upgrades later seeks and resumes to mapped offsets.
		if n := streamer.Len(); n > 0 {
			e.duration.Store(format.SampleRate.D(n))
		}
	}
	e.prebufN.Store(int64(prebufN))
	ev := e.transitionLocked(StateBuffering)
	out := &outputStreamer{e: e, gen: gen, ch: ch}
	e.output.Lock()
	e.vol.Streamer = out
	e.ctrl.Paused = true // hold the device while prebuffering
	e.output.Unlock()
	e.output.Clear()
	e.output.Play(e.ctrl)
	e.mu.Unlock()
	e.emit(ev)

	buf := make([][2]float64, pumpBatch)
	for {
		n, ok := streamer.Stream(buf)
		for i := 0; i < n; i++ {
			select {
			case ch <- buf[i]:
			case <-ctx.Done():
				return
			}
		}
		if n > 0 {
			e.maybeResume(gen, len(ch), false)
		}
		if !ok {
			if err := streamer.Err(); err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
				e.fail(gen, classifyStreamErr(err), err)
				return
			}
			// Natural end of the track: let the tail drain even if the
			// prebuffer threshold was never reached.
			e.maybeResume(gen, len(ch), true)
			close(ch)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// byteOffset maps a position to a byte offset assuming constant bitrate.
// Returns 0 when size or duration is unknown.
func (e *Engine) byteOffset(pos, duration time.Duration, size int64) int64 {
	if pos <= 0 || duration <= 0 || size <= 0 {
		return 0
	}
	off := int64(float64(size) * (pos.Seconds() / duration.Seconds()))
	if off >= size {
		off = size - 1
	}
	return off
}

// maybeResume leaves Buffering once enough audio has accumulated,
// honoring a pause queued while buffering.
func (e *Engine) maybeResume(gen uint64, filled int, force bool) {
	if !force && int64(filled) < e.prebufN.Load() {
		return
	}
	e.mu.Lock()
	if gen != e.gen || e.State() != StateBuffering {
		e.mu.Unlock()
		return
	}
	var ev Event
	if e.intentPlay {
		e.setPausedLocked(false)
		ev = e.transitionLocked(StatePlaying)
	} else {
		e.setPausedLocked(true)
		ev = e.transitionLocked(StatePaused)
	}
	e.mu.Unlock()
	e.emit(ev)
}

// starved is signalled by the output when it runs dry while Playing.
// Re-enters Buffering until the pump refills the channel.
func (e *Engine) starved(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.State() != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.setPausedLocked(true)
	ev := e.transitionLocked(StateBuffering)
	e.mu.Unlock()
	e.emit(ev)
}

// trackFinished is signalled by the output once the sample channel is
// closed and fully drained.
func (e *Engine) trackFinished(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	t := e.track
	e.intentPlay = false
	e.setPausedLocked(true)
	ev := e.transitionLocked(StateStopped)
	pos := e.Position()
	e.mu.Unlock()
	e.output.Clear()
	e.emit(ev)
	e.emit(Event{Kind: EventTrackFinished, Track: t, Position: pos, Gen: gen})
	if t != nil {
		e.logger.Info("track finished", "title", t.Title, "index", t.Index)
	}
}

// fail records a failure for the given generation. Superseded workers
// and canceled contexts are ignored so only the live stream can move
// the session to Error.
func (e *Engine) fail(gen uint64, kind ErrorKind, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.errMsg = err.Error()
	e.errKind.Store(int32(kind))
	e.setPausedLocked(true)
	ev := e.transitionLocked(StateError)
	e.mu.Unlock()
	e.output.Clear()
	e.metrics.errors.WithLabelValues(kind.String()).Inc()
	e.logger.Warn("playback failure", "kind", kind, "err", err)
	e.emit(ev)
}

// noteSamples advances the position counter for delivered samples.
func (e *Engine) noteSamples(gen uint64, n int) {
	if gen != e.genLive.Load() {
		return
	}
	e.samples.Add(int64(n))
}

// dataReader stamps the last time the source produced bytes, feeding
// stall detection.
type dataReader struct {
	rc   io.ReadCloser
	last *atomic.Time
}

func (r *dataReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.last.Store(time.Now())
	}
	return n, err
}

func (r *dataReader) Close() error { return r.rc.Close() }

// outputStreamer feeds the device from the worker's sample channel.
// Reads are non-blocking: an empty channel yields silence rather than
// blocking the device mutex, and the starvation is reported to the
// engine from a fresh goroutine because this method runs under the
// device lock.
type outputStreamer struct {
	e        *Engine
	gen      uint64
	ch       <-chan [2]float64
	finished bool
}

func (o *outputStreamer) Stream(samples [][2]float64) (int, bool) {
	n := 0
	starved := false
	for i := range samples {
		if o.finished {
			break
		}
		select {
		case s, ok := <-o.ch:
			if !ok {
				o.finished = true
				go o.e.trackFinished(o.gen)
			} else {
				samples[i] = s
				n++
			}
		default:
			starved = true
		}
		if starved {
			break
		}
	}
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	if n > 0 {
		o.e.noteSamples(o.gen, n)
	}
	if starved && n == 0 && !o.finished {
		go o.e.starved(o.gen)
	}
	return len(samples), true
}

func (o *outputStreamer) Err() error { return nil }

type httpStatus interface {
	HTTPStatus() int
}

// classifyOpenErr maps connection failures to the retry taxonomy:
// missing or forbidden tracks are never retried, everything else on the
// way to a stream is presumed transient.
func classifyOpenErr(err error) ErrorKind {
	var sc httpStatus
	if errors.As(err, &sc) {
		switch sc.HTTPStatus() {
		case 401, 403, 404, 410:
			return ErrorStreamUnavailable
		}
	}
	return ErrorNetworkTransient
}

// classifyStreamErr separates mid-stream transport failures, which are
// recoverable, from corrupt or unsupported audio, which is not.
func classifyStreamErr(err error) ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return ErrorNetworkTransient
	}
	return ErrorDecodeFailure
}
