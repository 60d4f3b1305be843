package audio

import (
	"errors"

	"github.com/faiface/beep"
)

// ErrCrossGraph is returned when connecting nodes that belong to different
// destinations.
var ErrCrossGraph = errors.New("audio: nodes belong to different graphs")

// Node is a processing element of a graph.
type Node interface {
	beep.Streamer
	core() *node
	release()
}

// Sink accepts node inputs: processing nodes with inputs, and destinations.
type Sink interface {
	graph() *Destination
	attach(Node)
	detach(Node)
}

// node carries the wiring shared by every node type. Fields are guarded by
// the owning graph's lock.
type node struct {
	g      *Destination
	parent Sink
	inputs []Node
	buf    [][2]float64
	mix    [][2]float64
}

func (n *node) graph() *Destination {
	return n.g
}

func (n *node) attach(in Node) {
	n.inputs = append(n.inputs, in)
}

func (n *node) detach(in Node) {
	n.inputs = removeNode(n.inputs, in)
}

func connect(src Node, dst Sink) error {
	g := src.core().g
	if dst.graph() != g {
		return ErrCrossGraph
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c := src.core()
	if c.parent != nil {
		c.parent.detach(src)
	}
	dst.attach(src)
	c.parent = dst
	return nil
}

func disconnect(src Node) {
	g := src.core().g
	g.mu.Lock()
	defer g.mu.Unlock()
	c := src.core()
	if c.parent == nil {
		return
	}
	c.parent.detach(src)
	c.parent = nil
}

// mixInputs adds every input into out and drops inputs that have drained.
func mixInputs(inputs []Node, out, scratch [][2]float64) ([]Node, [][2]float64) {
	if cap(scratch) < len(out) {
		scratch = make([][2]float64, len(out))
	}
	scratch = scratch[:len(out)]

	kept := inputs[:0]
	for _, in := range inputs {
		for i := range scratch {
			scratch[i] = [2]float64{}
		}
		n, ok := in.Stream(scratch)
		for i := 0; i < n; i++ {
			out[i][0] += scratch[i][0]
			out[i][1] += scratch[i][1]
		}
		if !ok || n < len(out) {
			in.core().parent = nil
			continue
		}
		kept = append(kept, in)
	}
	for i := len(kept); i < len(inputs); i++ {
		inputs[i] = nil
	}
	return kept, scratch
}

// sumInputs renders the node's inputs into its scratch buffer.
func (n *node) sumInputs(size int) [][2]float64 {
	if cap(n.buf) < size {
		n.buf = make([][2]float64, size)
	}
	out := n.buf[:size]
	for i := range out {
		out[i] = [2]float64{}
	}
	n.inputs, n.mix = mixInputs(n.inputs, out, n.mix)
	return out
}

func removeNode(list []Node, target Node) []Node {
	for i, n := range list {
		if n == target {
			copy(list[i:], list[i+1:])
			list[len(list)-1] = nil
			return list[:len(list)-1]
		}
	}
	return list
}
