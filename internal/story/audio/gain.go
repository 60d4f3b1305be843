package audio

// Gain scales the sum of its inputs by an automatable level.
type Gain struct {
	node
	Level *Param

	stopped bool
}

// NewGain creates a gain stage at the given level.
func (d *Destination) NewGain(level float64) *Gain {
	return &Gain{
		node:  node{g: d},
		Level: newParam(d, level),
	}
}

func (g *Gain) Connect(dst Sink) error {
	return connect(g, dst)
}

func (g *Gain) Disconnect() {
	disconnect(g)
}

// Stop detaches the stage from rendering. Stopping twice is harmless.
func (g *Gain) Stop() {
	g.g.mu.Lock()
	defer g.g.mu.Unlock()
	g.release()
}

// Inputs returns the number of nodes feeding the stage.
func (g *Gain) Inputs() int {
	g.g.mu.Lock()
	defer g.g.mu.Unlock()
	return len(g.inputs)
}

func (g *Gain) Stream(samples [][2]float64) (int, bool) {
	if g.stopped {
		return 0, false
	}
	in := g.sumInputs(len(samples))
	levels := g.Level.render(len(samples))
	for i := range samples {
		samples[i][0] = in[i][0] * levels[i]
		samples[i][1] = in[i][1] * levels[i]
	}
	return len(samples), true
}

func (g *Gain) Err() error {
	return nil
}

func (g *Gain) core() *node {
	return &g.node
}

func (g *Gain) release() {
	g.stopped = true
}
