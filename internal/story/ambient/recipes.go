package ambient

import (
	"time"

	"storyloom/internal/domain/story"
	"storyloom/internal/story/audio"
)

const (
	// VoiceGain is applied to each voice before the master bus.
	VoiceGain = 0.15
	// TargetVolume is the master level a mood fades in to.
	TargetVolume = 0.08
)

// sweep modulates a voice's filter cutoff with a slow sine.
type sweep struct {
	rate  float64
	depth float64
}

type voice struct {
	wave   audio.Waveform
	hz     float64
	start  time.Duration
	cutoff float64 // 0 means unfiltered
	sweep  *sweep
}

var recipes = map[story.Mood][]voice{
	story.MoodEthereal: {
		{wave: audio.Sine, hz: 220.00},
		{wave: audio.Sine, hz: 277.18, start: 100 * time.Millisecond},
		{wave: audio.Triangle, hz: 329.63, start: 200 * time.Millisecond, cutoff: 400},
		{wave: audio.Sine, hz: 415.30, start: 100 * time.Millisecond},
	},
	story.MoodSuspense: {
		{wave: audio.Sawtooth, hz: 55.00, cutoff: 200},
		{wave: audio.Triangle, hz: 110.00},
		{wave: audio.Sine, hz: 116.50},
	},
	story.MoodSciFi: {
		{wave: audio.Sawtooth, hz: 110, cutoff: 600, sweep: &sweep{rate: 0.5, depth: 200}},
		{wave: audio.Square, hz: 220, cutoff: 1200},
	},
}

// HasRecipe reports whether the mood produces sound.
func HasRecipe(m story.Mood) bool {
	_, ok := recipes[m]
	return ok
}

// handle is a node owned by a synthesizer graph.
type handle interface {
	Stop()
	Disconnect()
}

// build wires a mood's voices into bus and starts them. An unknown or silent
// mood builds nothing.
func build(dest *audio.Destination, bus *audio.Gain, m story.Mood) ([]handle, error) {
	var handles []handle
	for _, v := range recipes[m] {
		osc := dest.NewOscillator(v.wave, v.hz)
		gain := dest.NewGain(VoiceGain)
		handles = append(handles, osc, gain)

		var out interface{ Connect(audio.Sink) error } = osc
		if v.cutoff > 0 {
			lp := dest.NewLowPass(v.cutoff)
			handles = append(handles, lp)
			if err := osc.Connect(lp); err != nil {
				return handles, err
			}
			if v.sweep != nil {
				lfo := dest.NewOscillator(audio.Sine, v.sweep.rate)
				depth := dest.NewGain(v.sweep.depth)
				handles = append(handles, lfo, depth)
				if err := lfo.Connect(depth); err != nil {
					return handles, err
				}
				if err := lp.Cutoff.Modulate(depth); err != nil {
					return handles, err
				}
				lfo.Start(v.start)
			}
			out = lp
		}
		if err := out.Connect(gain); err != nil {
			return handles, err
		}
		if err := gain.Connect(bus); err != nil {
			return handles, err
		}
		osc.Start(v.start)
	}
	return handles, nil
}

// release stops and disconnects every handle once. Handles that are already
// stopped or detached are tolerated.
func release(handles []handle) {
	for _, h := range handles {
		h.Stop()
		h.Disconnect()
	}
}
