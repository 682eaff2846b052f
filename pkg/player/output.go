package player

import (
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/pkg/errors"
)

// Output is the physical audio sink. Exactly one engine may hold an
// acquired Output at a time; callers obtain and release the device
// explicitly rather than touching global speaker state.
type Output interface {
	// Acquire prepares the device for the given format. It fails if the
	// device is already held by another owner.
	Acquire(format beep.Format) error
	// Play starts pulling samples from s until Clear is called.
	Play(s beep.Streamer)
	// Lock and Unlock guard mutation of streamers the device is pulling.
	Lock()
	Unlock()
	// Clear stops pulling and drops the current streamer.
	Clear()
	// Release gives the device up so another owner can acquire it.
	Release() error
}

const speakerBuffer = 200 * time.Millisecond

// SpeakerOutput drives the process-wide beep speaker. The speaker is
// global underneath; holding it behind this handle keeps ownership with
// the single engine that acquired it. Re-acquiring with a new sample
// rate re-initializes the device.
type SpeakerOutput struct {
	acquired bool
	rate     beep.SampleRate
}

func NewSpeakerOutput() *SpeakerOutput {
	return &SpeakerOutput{}
}

func (o *SpeakerOutput) Acquire(format beep.Format) error {
	if o.acquired && format.SampleRate == o.rate {
		return nil
	}
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBuffer)); err != nil {
		return errors.Wrap(err, "failed to initialize audio output")
	}
	o.acquired = true
	o.rate = format.SampleRate
	return nil
}

func (o *SpeakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (o *SpeakerOutput) Lock()                { speaker.Lock() }
func (o *SpeakerOutput) Unlock()              { speaker.Unlock() }
func (o *SpeakerOutput) Clear()               { speaker.Clear() }

func (o *SpeakerOutput) Release() error {
	if !o.acquired {
		return nil
	}
	speaker.Clear()
	o.acquired = false
	return nil
}
