package audio

import (
	"sync"

	"github.com/faiface/beep"
)

// Destination is the root of a graph. It mixes its inputs, never drains and
// serialises every pull against graph mutations.
type Destination struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	inputs     []Node
	scratch    [][2]float64
	closed     bool
}

// NewDestination returns an empty graph root.
func NewDestination(sr beep.SampleRate) *Destination {
	return &Destination{sampleRate: sr}
}

func (d *Destination) SampleRate() beep.SampleRate {
	return d.sampleRate
}

// Stream renders the graph into samples. It always fills the buffer.
func (d *Destination) Stream(samples [][2]float64) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.render(samples)
	return len(samples), true
}

func (d *Destination) Err() error {
	return nil
}

// Read pulls n samples from the graph. Capture sinks are driven this way.
func (d *Destination) Read(n int) [][2]float64 {
	out := make([][2]float64, n)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.render(out)
	return out
}

// Inputs returns the number of nodes connected directly to the destination.
func (d *Destination) Inputs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inputs)
}

// Close stops and detaches everything connected to the destination.
func (d *Destination) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.inputs {
		c := n.core()
		c.parent = nil
		n.release()
	}
	d.inputs = nil
	d.closed = true
}

func (d *Destination) render(out [][2]float64) {
	for i := range out {
		out[i] = [2]float64{}
	}
	d.inputs, d.scratch = mixInputs(d.inputs, out, d.scratch)
}

func (d *Destination) graph() *Destination {
	return d
}

func (d *Destination) attach(n Node) {
	if d.closed {
		return
	}
	d.inputs = append(d.inputs, n)
}

func (d *Destination) detach(n Node) {
	d.inputs = removeNode(d.inputs, n)
}
