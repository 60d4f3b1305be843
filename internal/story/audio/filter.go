package audio

import "math"

// LowPass is a second-order low-pass biquad whose cutoff may be modulated.
type LowPass struct {
	node
	Cutoff *Param
	Q      float64

	b0, b1, b2, a1, a2 float64
	lastCutoff         float64
	x1, x2, y1, y2     [2]float64
	stopped            bool
}

// NewLowPass creates a Butterworth low-pass at the given cutoff.
func (d *Destination) NewLowPass(cutoff float64) *LowPass {
	return &LowPass{
		node:       node{g: d},
		Cutoff:     newParam(d, cutoff),
		Q:          math.Sqrt2 / 2,
		lastCutoff: -1,
	}
}

func (f *LowPass) Connect(dst Sink) error {
	return connect(f, dst)
}

func (f *LowPass) Disconnect() {
	disconnect(f)
}

// Stop detaches the filter from rendering. Stopping twice is harmless.
func (f *LowPass) Stop() {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	f.release()
}

func (f *LowPass) Stream(samples [][2]float64) (int, bool) {
	if f.stopped {
		return 0, false
	}
	in := f.sumInputs(len(samples))
	cut := f.Cutoff.render(len(samples))
	for i := range samples {
		if math.Abs(cut[i]-f.lastCutoff) > 0.01 {
			f.design(cut[i])
		}
		for ch := 0; ch < 2; ch++ {
			x := in[i][ch]
			y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
			f.x2[ch], f.x1[ch] = f.x1[ch], x
			f.y2[ch], f.y1[ch] = f.y1[ch], y
			samples[i][ch] = y
		}
	}
	return len(samples), true
}

func (f *LowPass) Err() error {
	return nil
}

// design recomputes the RBJ cookbook coefficients for cutoff.
func (f *LowPass) design(cutoff float64) {
	f.lastCutoff = cutoff
	nyquist := float64(f.g.sampleRate) / 2
	if cutoff < 10 {
		cutoff = 10
	}
	if cutoff > nyquist-1 {
		cutoff = nyquist - 1
	}
	w0 := 2 * math.Pi * cutoff / float64(f.g.sampleRate)
	alpha := math.Sin(w0) / (2 * f.Q)
	cos := math.Cos(w0)
	a0 := 1 + alpha
	f.b0 = (1 - cos) / 2 / a0
	f.b1 = (1 - cos) / a0
	f.b2 = (1 - cos) / 2 / a0
	f.a1 = -2 * cos / a0
	f.a2 = (1 - alpha) / a0
}

func (f *LowPass) core() *node {
	return &f.node
}

func (f *LowPass) release() {
	f.stopped = true
}
