// Package ambient synthesizes looping-free background music from a fixed
// palette of moods. Each mood is a small graph of oscillators, filters and
// gain stages mixed into one master bus.
package ambient

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"storyloom/internal/domain/story"
	"storyloom/internal/story/audio"
	"storyloom/internal/story/clock"
)

const (
	FadeIn  = 2 * time.Second
	FadeOut = 1 * time.Second
)

// Synth owns at most one mood graph at a time. A new mood is only built
// once the previous graph has faded out and been released.
type Synth struct {
	dest   *audio.Destination
	clk    clock.Clock
	master *audio.Gain

	mu        sync.Mutex
	mood      story.Mood
	handles   []handle
	gen       uint64
	teardowns int
	level     float64
	fading    bool
}

// New connects a silent master bus to dest.
func New(dest *audio.Destination, clk clock.Clock) *Synth {
	if clk == nil {
		clk = clock.New()
	}
	master := dest.NewGain(0)
	if err := master.Connect(dest); err != nil {
		logrus.WithError(err).Warn("Failed to connect ambient master bus")
	}
	return &Synth{
		dest:   dest,
		clk:    clk,
		master: master,
		mood:   story.MoodNone,
		level:  TargetVolume,
	}
}

// Play fades out whatever is playing and, after the fade, builds the recipe
// for m. The returned channel closes once the new graph is live, or once
// the request has been superseded by a later Play or Stop.
func (s *Synth) Play(m story.Mood) <-chan struct{} {
	return s.schedule(m)
}

// Stop fades the master bus out over one second and then releases the
// current graph. It is safe to call when nothing is playing.
func (s *Synth) Stop() <-chan struct{} {
	return s.schedule(story.MoodNone)
}

// SetVolume sets the master level. While a fade-out is pending the level is
// only recorded, and the next fade-in ramps to it instead of TargetVolume.
func (s *Synth) SetVolume(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
	if !s.fading {
		s.master.Level.SetValue(level)
	}
}

// Mood returns the mood whose graph is currently built.
func (s *Synth) Mood() story.Mood {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mood
}

// ActiveNodes counts the nodes owned by the current graph.
func (s *Synth) ActiveNodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Voices counts the voice buses connected to the master.
func (s *Synth) Voices() int {
	return s.master.Inputs()
}

// Close releases the current graph immediately and detaches the master bus.
// Pending fades are abandoned.
func (s *Synth) Close() {
	s.mu.Lock()
	s.gen++
	s.teardown()
	s.mu.Unlock()
	s.master.Stop()
	s.master.Disconnect()
}

func (s *Synth) schedule(m story.Mood) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.fading = true
	s.master.Level.RampTo(0, FadeOut)
	s.mu.Unlock()

	logrus.WithField("mood", m).Debug("Ambient fade out")

	s.clk.AfterFunc(FadeOut, func() {
		defer close(done)
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}
		s.teardown()
		s.fading = false
		if !HasRecipe(m) {
			return
		}
		handles, err := build(s.dest, s.master, m)
		if err != nil {
			logrus.WithError(err).WithField("mood", m).Warn("Failed to build ambient graph")
			release(handles)
			return
		}
		s.handles = handles
		s.mood = m
		s.master.Level.SetValue(0)
		s.master.Level.RampTo(s.level, FadeIn)
		logrus.WithFields(logrus.Fields{"mood": m, "nodes": len(handles)}).Debug("Ambient graph started")
	})
	return done
}

// teardown releases the current graph. Caller holds s.mu.
func (s *Synth) teardown() {
	if len(s.handles) == 0 {
		return
	}
	release(s.handles)
	s.handles = nil
	s.mood = story.MoodNone
	s.teardowns++
}
