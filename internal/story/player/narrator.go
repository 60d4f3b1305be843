package player

import (
	"context"

	"storyloom/internal/domain/story"
	"storyloom/internal/story/audio"
)

// Source is one playback of a narration buffer. Stop must tolerate being
// called after the source has ended or been stopped.
type Source interface {
	Stop()
}

// Narrator plays scene narration.
type Narrator interface {
	// Resume blocks until the output is able to play sound.
	Resume(ctx context.Context) error
	// Play starts a fresh source over buf. onEnded runs once when the source
	// finishes or is stopped.
	Play(buf *audio.Buffer, onEnded func()) (Source, error)
}

// Ambience is the background music the player mutes, pauses and stops.
type Ambience interface {
	Play(m story.Mood) <-chan struct{}
	SetVolume(level float64)
	Stop() <-chan struct{}
}

// ContextNarrator plays narration through an audio context's destination.
type ContextNarrator struct {
	Context *audio.Context
}

func (n ContextNarrator) Resume(ctx context.Context) error {
	return n.Context.Resume(ctx)
}

func (n ContextNarrator) Play(buf *audio.Buffer, onEnded func()) (Source, error) {
	src := n.Context.Destination().NewBufferSource(buf)
	src.OnEnded(onEnded)
	if err := src.Connect(n.Context.Destination()); err != nil {
		return nil, err
	}
	src.Start()
	return src, nil
}
