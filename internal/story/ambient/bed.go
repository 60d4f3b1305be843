package ambient

import (
	"sync"

	"storyloom/internal/domain/story"
	"storyloom/internal/story/audio"
)

// Bed is a mood graph built at full level with no fades, for offline
// rendering where the whole graph is pulled frame by frame.
type Bed struct {
	bus     *audio.Gain
	handles []handle
	once    sync.Once
}

// NewBed builds the recipe for m into dest and starts it. A silent mood
// yields an empty bed.
func NewBed(dest *audio.Destination, m story.Mood) (*Bed, error) {
	bus := dest.NewGain(TargetVolume)
	if err := bus.Connect(dest); err != nil {
		return nil, err
	}
	handles, err := build(dest, bus, m)
	if err != nil {
		release(handles)
		bus.Stop()
		bus.Disconnect()
		return nil, err
	}
	return &Bed{bus: bus, handles: handles}, nil
}

// Stop releases the bed. Later calls do nothing.
func (b *Bed) Stop() {
	b.once.Do(func() {
		release(b.handles)
		b.bus.Stop()
		b.bus.Disconnect()
	})
}
