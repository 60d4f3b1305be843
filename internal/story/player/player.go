// Package player schedules interactive story playback: one scene at a time,
// with narration, enter/active/exit transition stages and timed advance.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"storyloom/internal/domain/story"
	"storyloom/internal/story/ambient"
	"storyloom/internal/story/clock"
)

var (
	ErrEmptyStory = errors.New("story has no scenes")
	ErrClosed     = errors.New("player closed")
)

// FallbackDuration paces scenes that have no narration.
const FallbackDuration = 3 * time.Second

// Stage is the transition stage of the current scene.
type Stage int

const (
	Enter Stage = iota
	Active
	Exit
)

func (s Stage) String() string {
	switch s {
	case Enter:
		return "enter"
	case Active:
		return "active"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type State struct {
	Index    int
	Playing  bool
	Finished bool
	Muted    bool
	Stage    Stage
}

type EventKind int

const (
	SceneStarted EventKind = iota
	StageChanged
	Advanced
	Finished
	Paused
	Resumed
	MuteChanged
)

func (k EventKind) String() string {
	switch k {
	case SceneStarted:
		return "scene-started"
	case StageChanged:
		return "stage-changed"
	case Advanced:
		return "advanced"
	case Finished:
		return "finished"
	case Paused:
		return "paused"
	case Resumed:
		return "resumed"
	case MuteChanged:
		return "mute-changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event reports a playback change. State is a snapshot taken when the event
// was raised.
type Event struct {
	Kind  EventKind
	State State
}

type Options struct {
	Clock    clock.Clock
	Narrator Narrator
	Ambience Ambience
	Observer func(Event)

	// FallbackDuration overrides the pacing of scenes without narration.
	FallbackDuration time.Duration
	// Volume is the ambient level restored on resume and unmute.
	Volume float64
}

// Player is a state machine over the scenes of one story. All scheduled work
// carries the generation it was scheduled under and is dropped once any
// other request has superseded it.
type Player struct {
	story *story.Story
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	gen    uint64
	timers []clock.Timer
	source Source
	closed bool
}

func New(s *story.Story, opts Options) *Player {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.FallbackDuration <= 0 {
		opts.FallbackDuration = FallbackDuration
	}
	if opts.Volume <= 0 {
		opts.Volume = ambient.TargetVolume
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		story:  s,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns a snapshot of the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins the story from the first scene and starts its music.
func (p *Player) Start() error {
	if len(p.story.Scenes) == 0 {
		return ErrEmptyStory
	}
	p.playMood()
	return p.PlayScene(0)
}

// Restart plays the story again from the first scene.
func (p *Player) Restart() error {
	p.mu.Lock()
	wasFinished := p.state.Finished
	p.mu.Unlock()
	if wasFinished {
		p.playMood()
	}
	return p.PlayScene(0)
}

// PlayScene cancels whatever is in flight and plays scene i from its start.
func (p *Player) PlayScene(i int) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if i < 0 || i >= len(p.story.Scenes) {
		p.mu.Unlock()
		return fmt.Errorf("play scene %d of %d: %w", i, len(p.story.Scenes), story.ErrSceneIndex)
	}
	old := p.cancelLocked()
	gen := p.gen
	p.state.Index = i
	p.state.Stage = Enter
	p.state.Playing = true
	p.state.Finished = false
	scene := p.story.Scenes[i]
	p.addTimerLocked(clock.NextFrame(p.opts.Clock, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if gen != p.gen {
			return
		}
		p.addTimerLocked(clock.NextFrame(p.opts.Clock, func() {
			p.activate(gen)
		}))
	}))
	snap := p.state
	p.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	logrus.WithFields(logrus.Fields{"scene": i, "id": scene.ID}).Debug("Playing scene")
	p.emit(Event{Kind: SceneStarted, State: snap})
	p.emit(Event{Kind: StageChanged, State: snap})

	if scene.Narration == nil || p.opts.Narrator == nil {
		p.scheduleFallback(gen, i)
		return nil
	}
	if err := p.opts.Narrator.Resume(p.ctx); err != nil {
		logrus.WithError(err).Warn("Audio output unavailable, pacing scene by timer")
		p.scheduleFallback(gen, i)
		return nil
	}
	if !p.current(gen) {
		return nil
	}
	src, err := p.opts.Narrator.Play(scene.Narration, func() { p.advance(gen, i) })
	if err != nil {
		logrus.WithError(err).Warn("Failed to start narration, pacing scene by timer")
		p.scheduleFallback(gen, i)
		return nil
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		src.Stop()
		return nil
	}
	p.source = src
	p.mu.Unlock()
	return nil
}

// TogglePlay pauses or resumes. Resuming restarts the current scene from the
// beginning; after the story has finished it restarts the story.
func (p *Player) TogglePlay() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	st := p.state
	if st.Playing {
		old := p.cancelLocked()
		p.state.Playing = false
		snap := p.state
		p.mu.Unlock()

		if old != nil {
			old.Stop()
		}
		p.setVolume(0)
		p.emit(Event{Kind: Paused, State: snap})
		return nil
	}
	p.mu.Unlock()

	if st.Finished {
		return p.Restart()
	}
	p.setVolume(p.volumeFor(st.Muted))
	p.emit(Event{Kind: Resumed, State: st})
	return p.PlayScene(st.Index)
}

// Next plays the following scene. It does nothing on the last scene.
func (p *Player) Next() error {
	st := p.State()
	if st.Index+1 >= len(p.story.Scenes) {
		return nil
	}
	return p.PlayScene(st.Index + 1)
}

// Prev plays the preceding scene. It does nothing on the first scene.
func (p *Player) Prev() error {
	st := p.State()
	if st.Index <= 0 {
		return nil
	}
	return p.PlayScene(st.Index - 1)
}

// ToggleMute flips the ambient mute. Narration is unaffected.
func (p *Player) ToggleMute() bool {
	p.mu.Lock()
	p.state.Muted = !p.state.Muted
	snap := p.state
	p.mu.Unlock()

	if snap.Playing {
		p.setVolume(p.volumeFor(snap.Muted))
	}
	p.emit(Event{Kind: MuteChanged, State: snap})
	return snap.Muted
}

// Close cancels all scheduled work, stops narration and fades out the
// ambient music. The player cannot be reused.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	old := p.cancelLocked()
	p.state.Playing = false
	p.mu.Unlock()

	p.cancel()
	if old != nil {
		old.Stop()
	}
	if p.opts.Ambience != nil {
		p.opts.Ambience.Stop()
	}
}

func (p *Player) advance(gen uint64, i int) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.source = nil

	// Narration shorter than two frames still passes through the active stage.
	var activated *State
	if p.state.Stage == Enter {
		p.state.Stage = Active
		snap := p.state
		activated = &snap
	}

	if i+1 >= len(p.story.Scenes) {
		p.cancelLocked()
		p.state.Finished = true
		p.state.Playing = false
		snap := p.state
		p.mu.Unlock()

		if activated != nil {
			p.emit(Event{Kind: StageChanged, State: *activated})
		}
		p.emit(Event{Kind: Advanced, State: snap})
		p.emit(Event{Kind: Finished, State: snap})
		logrus.Debug("Story finished")
		if p.opts.Ambience != nil {
			p.opts.Ambience.Stop()
		}
		return
	}

	half := p.story.Scenes[i+1].TransitionDuration() / 2
	p.state.Stage = Exit
	snap := p.state
	if half > 0 {
		p.addTimerLocked(p.opts.Clock.AfterFunc(half, func() {
			if p.current(gen) {
				_ = p.PlayScene(i + 1)
			}
		}))
	}
	p.mu.Unlock()

	if activated != nil {
		p.emit(Event{Kind: StageChanged, State: *activated})
	}
	p.emit(Event{Kind: Advanced, State: snap})
	p.emit(Event{Kind: StageChanged, State: snap})
	if half <= 0 && p.current(gen) {
		_ = p.PlayScene(i + 1)
	}
}

func (p *Player) scheduleFallback(gen uint64, i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.addTimerLocked(p.opts.Clock.AfterFunc(p.opts.FallbackDuration, func() {
		p.advance(gen, i)
	}))
}

// activate moves an entering scene to the active stage. A scene that has
// already begun its exit stays there.
func (p *Player) activate(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state.Stage != Enter {
		p.mu.Unlock()
		return
	}
	p.state.Stage = Active
	snap := p.state
	p.mu.Unlock()
	p.emit(Event{Kind: StageChanged, State: snap})
}

func (p *Player) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.gen
}

// cancelLocked invalidates all scheduled work and returns the narration
// source for the caller to stop once the lock is released.
func (p *Player) cancelLocked() Source {
	p.gen++
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = p.timers[:0]
	src := p.source
	p.source = nil
	return src
}

func (p *Player) addTimerLocked(t clock.Timer) {
	p.timers = append(p.timers, t)
}

func (p *Player) playMood() {
	if p.opts.Ambience == nil || !ambient.HasRecipe(p.story.Mood) {
		return
	}
	p.mu.Lock()
	muted := p.state.Muted
	p.mu.Unlock()
	p.opts.Ambience.Play(p.story.Mood)
	if muted {
		p.setVolume(0)
	}
}

func (p *Player) volumeFor(muted bool) float64 {
	if muted {
		return 0
	}
	return p.opts.Volume
}

func (p *Player) setVolume(v float64) {
	if p.opts.Ambience != nil {
		p.opts.Ambience.SetVolume(v)
	}
}

func (p *Player) emit(e Event) {
	if p.opts.Observer != nil {
		p.opts.Observer(e)
	}
}
