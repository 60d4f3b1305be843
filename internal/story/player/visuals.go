package player

import (
	"fmt"
	"time"

	"storyloom/internal/domain/story"
)

// Geometry is the visual state of a scene layer. OffsetX is a fraction of
// the frame width.
type Geometry struct {
	OffsetX float64
	Scale   float64
	Opacity float64
}

// Identity is the resting geometry of an active scene.
var Identity = Geometry{Scale: 1, Opacity: 1}

type stageGeometry struct {
	enter, exit Geometry
}

var transitionGeometry = map[story.TransitionType]stageGeometry{
	story.Fade:         {enter: Geometry{Scale: 1}, exit: Geometry{Scale: 1}},
	story.NoTransition: {enter: Geometry{Scale: 1}, exit: Geometry{Scale: 1}},
	story.SlideLeft:    {enter: Geometry{OffsetX: 1, Scale: 1}, exit: Geometry{OffsetX: -1, Scale: 1}},
	story.SlideRight:   {enter: Geometry{OffsetX: -1, Scale: 1}, exit: Geometry{OffsetX: 1, Scale: 1}},
	story.ZoomIn:       {enter: Geometry{Scale: 0.5}, exit: Geometry{Scale: 1.5}},
	story.ZoomOut:      {enter: Geometry{Scale: 1.5}, exit: Geometry{Scale: 0.5}},
}

// GeometryFor maps a transition type and stage to the scene layer's
// geometry. The active stage is always Identity.
func GeometryFor(t story.TransitionType, s Stage) (Geometry, error) {
	g, ok := transitionGeometry[t]
	if !ok {
		return Geometry{}, fmt.Errorf("geometry for %q: %w", t, story.ErrUnknownTransition)
	}
	switch s {
	case Enter:
		return g.enter, nil
	case Active:
		return Identity, nil
	case Exit:
		return g.exit, nil
	default:
		return Geometry{}, fmt.Errorf("geometry for stage %d: unknown stage", int(s))
	}
}

// Motion is a slow camera move applied to a scene's image.
type Motion int

const (
	PushIn Motion = iota
	PanRight
	PullOut
	PanLeft
)

func (m Motion) String() string {
	switch m {
	case PushIn:
		return "zoom-in"
	case PanRight:
		return "pan-right"
	case PullOut:
		return "zoom-out"
	case PanLeft:
		return "pan-left"
	default:
		return fmt.Sprintf("motion(%d)", int(m))
	}
}

// CameraDuration is the length of one camera move.
const CameraDuration = 20 * time.Second

type Camera struct {
	Motion   Motion
	Duration time.Duration
}

// CameraFor returns the camera move for scene i. Moves rotate every four
// scenes.
func CameraFor(i int) Camera {
	m := Motion(i % 4)
	if m < 0 {
		m += 4
	}
	return Camera{Motion: m, Duration: CameraDuration}
}

// At returns the image geometry elapsed into the move. The move holds its
// final pose once it has run its course.
func (c Camera) At(elapsed time.Duration) Geometry {
	p := 1.0
	if c.Duration > 0 {
		p = min(max(float64(elapsed)/float64(c.Duration), 0), 1)
	}
	switch c.Motion {
	case PushIn:
		return Geometry{Scale: 1 + 0.1*p, Opacity: 1}
	case PullOut:
		return Geometry{Scale: 1.1 - 0.1*p, Opacity: 1}
	case PanRight:
		return Geometry{OffsetX: 0.05 * p, Scale: 1.1, Opacity: 1}
	case PanLeft:
		return Geometry{OffsetX: -0.05 * p, Scale: 1.1, Opacity: 1}
	default:
		return Identity
	}
}
