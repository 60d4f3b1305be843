package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"storyloom/internal/domain/story"
	"storyloom/internal/observe"
	"storyloom/internal/story/audio"
)

const DefaultConcurrency = 4

// Producer drives an Engine over a whole story. A failed script is fatal;
// a failed image or narration only leaves that scene without the asset.
type Producer struct {
	Engine      *Engine
	Metrics     *observe.Metrics
	Concurrency int
	// OnProgress, when set, is called after each asset request finishes.
	// Calls are serialized.
	OnProgress func(done, total int)
}

func NewProducer(engine *Engine, metrics *observe.Metrics) *Producer {
	return &Producer{Engine: engine, Metrics: metrics, Concurrency: DefaultConcurrency}
}

// Produce writes a script for topic and fills in its assets.
func (p *Producer) Produce(ctx context.Context, topic string) (*story.Story, error) {
	start := time.Now()
	s, err := p.Engine.Script.GenerateScript(ctx, topic)
	p.Metrics.RecordGeneration(ctx, "script", p.Engine.Name, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("generate script for %q: %w", topic, err)
	}
	if err := p.Assets(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Assets requests every missing image and narration in s. Scenes that
// already carry an asset are left alone. The only error is cancellation.
func (p *Producer) Assets(ctx context.Context, s *story.Story) error {
	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	var (
		mu    sync.Mutex
		done  int
		total int
	)
	for _, sc := range s.Scenes {
		if sc.Image == "" && sc.ImagePrompt != "" && p.Engine.Image != nil {
			total++
		}
		if sc.RawAudio == "" && sc.Text != "" && p.Engine.Speech != nil {
			total++
		}
	}
	finished := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if p.OnProgress != nil {
			p.OnProgress(done, total)
		}
	}

	for i, sc := range s.Scenes {
		log := logrus.WithFields(logrus.Fields{"scene": i, "id": sc.ID})

		if sc.Image == "" && sc.ImagePrompt != "" && p.Engine.Image != nil {
			eg.Go(func() error {
				defer finished()
				start := time.Now()
				img, err := p.Engine.Image.GenerateImage(egCtx, sc.ImagePrompt)
				p.Metrics.RecordGeneration(egCtx, "image", p.Engine.Name, time.Since(start), err)
				if err != nil {
					log.WithError(err).Warn("Image generation failed, scene keeps no image")
					return nil
				}
				sc.Image = img
				return nil
			})
		}

		if sc.RawAudio == "" && sc.Text != "" && p.Engine.Speech != nil {
			eg.Go(func() error {
				defer finished()
				start := time.Now()
				raw, err := p.Engine.Speech.GenerateNarrationAudio(egCtx, sc.Text)
				if err == nil {
					sc.Narration, err = audio.DecodePCM16(raw, int(audio.SampleRate), 1)
				}
				p.Metrics.RecordGeneration(egCtx, "speech", p.Engine.SpeechName, time.Since(start), err)
				if err != nil {
					log.WithError(err).Warn("Narration failed, scene falls back to a timer")
					sc.Narration = nil
					return nil
				}
				sc.RawAudio = raw
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
