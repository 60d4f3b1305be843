package audio

import "time"

// Param is an automatable node parameter. Its value is a base level with at
// most one linear ramp in flight, plus the output of an optional modulator
// node added sample by sample.
type Param struct {
	g     *Destination
	value float64

	rampFrom float64
	rampTo   float64
	rampPos  int
	rampLen  int

	mod    Node
	modBuf [][2]float64
	vals   []float64
}

func newParam(g *Destination, v float64) *Param {
	return &Param{g: g, value: v}
}

// Value returns the current base value, ignoring modulation.
func (p *Param) Value() float64 {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return p.value
}

// SetValue jumps to v immediately, cancelling any ramp in flight.
func (p *Param) SetValue(v float64) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.value = v
	p.rampLen = 0
}

// RampTo moves linearly from the current value to v over d of rendered audio.
// A non-positive d behaves like SetValue.
func (p *Param) RampTo(v float64, d time.Duration) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	n := p.g.sampleRate.N(d)
	if n <= 0 {
		p.value = v
		p.rampLen = 0
		return
	}
	p.rampFrom = p.value
	p.rampTo = v
	p.rampPos = 0
	p.rampLen = n
}

func (p *Param) ramping() bool {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return p.rampLen > 0
}

// Modulate routes mod's output into the parameter. Pass nil to remove it.
func (p *Param) Modulate(mod Node) error {
	if mod != nil && mod.core().g != p.g {
		return ErrCrossGraph
	}
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.mod = mod
	return nil
}

// render computes n per-sample values. Caller holds the graph lock.
func (p *Param) render(n int) []float64 {
	if cap(p.vals) < n {
		p.vals = make([]float64, n)
	}
	vals := p.vals[:n]

	var mod [][2]float64
	if p.mod != nil {
		if cap(p.modBuf) < n {
			p.modBuf = make([][2]float64, n)
		}
		mod = p.modBuf[:n]
		for i := range mod {
			mod[i] = [2]float64{}
		}
		m, ok := p.mod.Stream(mod)
		if !ok || m < n {
			p.mod.core().parent = nil
			p.mod = nil
		}
	}

	for i := range vals {
		if p.rampLen > 0 {
			p.rampPos++
			t := float64(p.rampPos) / float64(p.rampLen)
			p.value = p.rampFrom + (p.rampTo-p.rampFrom)*t
			if p.rampPos >= p.rampLen {
				p.value = p.rampTo
				p.rampLen = 0
			}
		}
		vals[i] = p.value
		if mod != nil {
			vals[i] += mod[i][0]
		}
	}
	return vals
}
