package story

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/story/audio"
)

var (
	ErrUnknownMood       = errors.New("unknown mood")
	ErrUnknownTransition = errors.New("unknown transition type")
	ErrSceneIndex        = errors.New("scene index out of range")
)

// Mood selects the ambient music recipe for a story.
type Mood string

const (
	MoodNone     Mood = "none"
	MoodEthereal Mood = "ethereal"
	MoodSuspense Mood = "suspense"
	MoodSciFi    Mood = "scifi"
)

// Moods lists every playable mood, in presentation order.
var Moods = []Mood{MoodEthereal, MoodSuspense, MoodSciFi}

// ParseMood accepts the mood names used in documents. The empty string is
// treated as none.
func ParseMood(s string) (Mood, error) {
	switch m := Mood(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MoodNone:
		return MoodNone, nil
	case MoodEthereal, MoodSuspense, MoodSciFi:
		return m, nil
	default:
		return MoodNone, fmt.Errorf("%q: %w", s, ErrUnknownMood)
	}
}

func (m *Mood) UnmarshalText(b []byte) error {
	v, err := ParseMood(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// TransitionType is the visual entry/exit animation between scenes.
type TransitionType string

const (
	Fade         TransitionType = "fade"
	SlideLeft    TransitionType = "slide-left"
	SlideRight   TransitionType = "slide-right"
	ZoomIn       TransitionType = "zoom-in"
	ZoomOut      TransitionType = "zoom-out"
	NoTransition TransitionType = "none"
)

var TransitionTypes = []TransitionType{Fade, SlideLeft, SlideRight, ZoomIn, ZoomOut, NoTransition}

func ParseTransitionType(s string) (TransitionType, error) {
	t := TransitionType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range TransitionTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownTransition)
}

func (t *TransitionType) UnmarshalText(b []byte) error {
	v, err := ParseTransitionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Transition duration bounds and default, in milliseconds.
const (
	MinTransitionMS     = 100
	MaxTransitionMS     = 5000
	DefaultTransitionMS = 1000
)

type Transition struct {
	Type     TransitionType `json:"type" yaml:"type"`
	Duration int            `json:"duration" yaml:"duration"` // milliseconds
}

// DefaultTransition is used for scenes that carry no transition settings.
func DefaultTransition() Transition {
	return Transition{Type: Fade, Duration: DefaultTransitionMS}
}

// Scene is one narrated, illustrated step of a story.
type Scene struct {
	ID          string      `json:"id" yaml:"id"`
	Text        string      `json:"text" yaml:"text"`
	ImagePrompt string      `json:"imagePrompt,omitempty" yaml:"imagePrompt,omitempty"`
	Image       string      `json:"image,omitempty" yaml:"image,omitempty"`
	RawAudio    string      `json:"rawAudio,omitempty" yaml:"rawAudio,omitempty"`
	Transition  *Transition `json:"transition,omitempty" yaml:"transition,omitempty"`

	// Narration is decoded from RawAudio and never persisted.
	Narration *audio.Buffer `json:"-" yaml:"-"`
}

// NewScene returns a scene with a fresh identifier.
func NewScene(text, imagePrompt string) *Scene {
	return &Scene{
		ID:          uuid.NewString(),
		Text:        text,
		ImagePrompt: imagePrompt,
	}
}

// TransitionSettings returns the scene's transition, or the default.
func (s *Scene) TransitionSettings() Transition {
	if s.Transition == nil {
		return DefaultTransition()
	}
	return *s.Transition
}

// TransitionDuration is the configured duration as stored. Values outside
// the editing bounds are passed through unchanged.
func (s *Scene) TransitionDuration() time.Duration {
	return time.Duration(s.TransitionSettings().Duration) * time.Millisecond
}

// NarrationDuration is zero when the scene has no decoded narration.
func (s *Scene) NarrationDuration() time.Duration {
	if s.Narration == nil {
		return 0
	}
	return s.Narration.Duration()
}

type Story struct {
	Title  string   `json:"title" yaml:"title"`
	Mood   Mood     `json:"mood,omitempty" yaml:"mood,omitempty"`
	Scenes []*Scene `json:"scenes" yaml:"scenes"`
}

// Move reorders a scene. Scene values are moved, never copied.
func (s *Story) Move(from, to int) error {
	if from < 0 || from >= len(s.Scenes) || to < 0 || to >= len(s.Scenes) {
		return fmt.Errorf("move %d -> %d of %d: %w", from, to, len(s.Scenes), ErrSceneIndex)
	}
	sc := s.Scenes[from]
	if from < to {
		copy(s.Scenes[from:to], s.Scenes[from+1:to+1])
	} else {
		copy(s.Scenes[to+1:from+1], s.Scenes[to:from])
	}
	s.Scenes[to] = sc
	return nil
}

// SetTransition sets scene i's transition, clamping ms into the editing
// bounds.
func (s *Story) SetTransition(i int, t TransitionType, ms int) error {
	if i < 0 || i >= len(s.Scenes) {
		return fmt.Errorf("set transition on scene %d of %d: %w", i, len(s.Scenes), ErrSceneIndex)
	}
	tt, err := ParseTransitionType(string(t))
	if err != nil {
		return err
	}
	ms = min(max(ms, MinTransitionMS), MaxTransitionMS)
	s.Scenes[i].Transition = &Transition{Type: tt, Duration: ms}
	return nil
}

// Slug derives a file name stem from the title: lowercased, with each run of
// whitespace replaced by a hyphen.
func (s *Story) Slug() string {
	slug := strings.Join(strings.Fields(strings.ToLower(s.Title)), "-")
	if slug == "" {
		return "story"
	}
	return slug
}
