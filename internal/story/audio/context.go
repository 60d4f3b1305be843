// Package audio is the shared audio-processing graph: one process-wide
// Context feeding the output device, plus the oscillator, filter, gain and
// buffer-source nodes that the ambient synthesizer, the scene player and the
// exporter build their subgraphs from.
//
// Nodes are beep.Streamers. A graph is pulled by its Destination, which holds
// the graph lock for the duration of every pull; all structural and parameter
// changes take the same lock.
package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/sirupsen/logrus"
)

// SampleRate matches the narration audio delivered by the speech backends.
const SampleRate beep.SampleRate = 24000

// ErrClosed is returned by Resume once the context has been closed.
var ErrClosed = errors.New("audio context closed")

// State is the runtime state of a Context.
type State int

const (
	Suspended State = iota
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Backend moves rendered samples to an output device.
type Backend interface {
	Start(sr beep.SampleRate, s beep.Streamer) error
	Stop()
}

// SpeakerBackend plays through the system speaker via beep.
type SpeakerBackend struct {
	BufferSize time.Duration
}

func (b SpeakerBackend) Start(sr beep.SampleRate, s beep.Streamer) error {
	size := b.BufferSize
	if size <= 0 {
		size = time.Second / 10
	}
	if err := speaker.Init(sr, sr.N(size)); err != nil {
		return err
	}
	speaker.Play(s)
	return nil
}

func (b SpeakerBackend) Stop() {
	speaker.Clear()
}

// Context owns the interactive output graph.
type Context struct {
	sampleRate beep.SampleRate
	backend    Backend
	dest       *Destination

	mu       sync.Mutex
	state    State
	starting chan struct{}
	startErr error
}

var (
	shared     *Context
	sharedOnce sync.Once
)

// GetContext returns the process-wide context, creating it on first use.
// It starts suspended; nothing reaches the speaker until Resume succeeds.
func GetContext() *Context {
	sharedOnce.Do(func() {
		shared = NewContext(SpeakerBackend{})
	})
	return shared
}

// NewContext creates a context over the given backend. Most callers want
// GetContext; this exists for tools and tests that need an isolated graph.
func NewContext(b Backend) *Context {
	return &Context{
		sampleRate: SampleRate,
		backend:    b,
		dest:       NewDestination(SampleRate),
		state:      Suspended,
	}
}

func (c *Context) SampleRate() beep.SampleRate {
	return c.sampleRate
}

// Destination is the interactive output sink.
func (c *Context) Destination() *Destination {
	return c.dest
}

// NewCaptureDestination returns an auxiliary sink at the context sample rate.
// It is never attached to the backend; its owner pulls it with Read.
func (c *Context) NewCaptureDestination() *Destination {
	return NewDestination(c.sampleRate)
}

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume brings the context into the running state, starting the backend if
// needed. It blocks until the backend is live or ctx is done; concurrent
// callers share one start attempt.
func (c *Context) Resume(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Running:
		c.mu.Unlock()
		return nil
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	}
	if c.starting == nil {
		c.starting = make(chan struct{})
		go c.start(c.starting)
	}
	wait := c.starting
	c.mu.Unlock()

	select {
	case <-wait:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == Running {
			return nil
		}
		return c.startErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Context) start(done chan struct{}) {
	err := c.backend.Start(c.sampleRate, c.dest)

	c.mu.Lock()
	if err != nil {
		logrus.WithError(err).Warn("audio backend failed to start")
		c.startErr = err
		c.starting = nil
	} else if c.state == Suspended {
		c.state = Running
		c.startErr = nil
	}
	c.mu.Unlock()
	close(done)
}

// Close stops the backend and tears down every node connected to the
// interactive destination.
func (c *Context) Close() {
	c.mu.Lock()
	prev := c.state
	c.state = Closed
	c.mu.Unlock()

	if prev == Running {
		c.backend.Stop()
	}
	c.dest.Close()
}
