package audio

import (
	"fmt"
	"math"
	"time"
)

// Waveform is the periodic shape an Oscillator produces.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("waveform(%d)", int(w))
	}
}

// sample evaluates the waveform at phase in [0,1).
func (w Waveform) sample(phase float64) float64 {
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*phase - 1
	case Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Oscillator is a periodic source. It is silent until started and drains
// once stopped.
type Oscillator struct {
	node
	Type      Waveform
	Frequency *Param

	phase   float64
	delay   int
	started bool
	stopped bool
}

// NewOscillator creates an unconnected, unstarted oscillator on d's graph.
func (d *Destination) NewOscillator(w Waveform, hz float64) *Oscillator {
	return &Oscillator{
		node:      node{g: d},
		Type:      w,
		Frequency: newParam(d, hz),
	}
}

// Start begins output after the given offset of rendered audio.
func (o *Oscillator) Start(after time.Duration) {
	o.g.mu.Lock()
	defer o.g.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true
	o.delay = o.g.sampleRate.N(after)
}

// Stop ends output. Stopping twice is harmless.
func (o *Oscillator) Stop() {
	o.g.mu.Lock()
	defer o.g.mu.Unlock()
	o.release()
}

func (o *Oscillator) Connect(dst Sink) error {
	return connect(o, dst)
}

func (o *Oscillator) Disconnect() {
	disconnect(o)
}

func (o *Oscillator) Stream(samples [][2]float64) (int, bool) {
	if o.stopped {
		return 0, false
	}
	freqs := o.Frequency.render(len(samples))
	rate := float64(o.g.sampleRate)
	for i := range samples {
		if !o.started || o.delay > 0 {
			if o.started {
				o.delay--
			}
			samples[i] = [2]float64{}
			continue
		}
		v := o.Type.sample(o.phase)
		samples[i] = [2]float64{v, v}
		o.phase += freqs[i] / rate
		o.phase -= math.Floor(o.phase)
	}
	return len(samples), true
}

func (o *Oscillator) Err() error {
	return nil
}

func (o *Oscillator) core() *node {
	return &o.node
}

func (o *Oscillator) release() {
	o.stopped = true
}
