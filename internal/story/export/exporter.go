// Package export renders a story offline into a single WebM file: Ken Burns
// frames with captions, narration and the mood's music bed, captured on an
// audio graph of its own and muxed by a Recorder.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/faiface/beep"
	"github.com/sirupsen/logrus"

	"storyloom/internal/domain/story"
	"storyloom/internal/observe"
	"storyloom/internal/story/ambient"
	"storyloom/internal/story/audio"
	"storyloom/internal/story/clock"
)

var (
	ErrCancelled  = errors.New("export cancelled")
	ErrEmptyStory = errors.New("story has no scenes")
)

const (
	DefaultWidth        = 1920
	DefaultHeight       = 1080
	DefaultFPS          = 30
	DefaultBitrate      = "8M"
	DefaultImageTimeout = 10 * time.Second

	// MinSceneDuration is the shortest time a scene stays on screen.
	MinSceneDuration = 4 * time.Second
	// NarrationTail is held after narration ends.
	NarrationTail = 500 * time.Millisecond
	// KenBurnsZoom is the extra scale reached by the end of a scene.
	KenBurnsZoom = 0.1
)

// Progress is reported after every frame and once more on completion.
type Progress struct {
	Fraction float64
	Scene    int
	Done     bool
}

type Exporter struct {
	Width      int
	Height     int
	FPS        int
	Bitrate    string
	SampleRate beep.SampleRate

	// ImageTimeout bounds each scene's image load. A placeholder is drawn
	// when it runs out.
	ImageTimeout time.Duration
	// RealTime paces frames at the frame rate instead of rendering as fast
	// as possible.
	RealTime bool
	Clock    clock.Clock

	OutputDir string

	// Context supplies the capture sink. Without one the export uses a
	// standalone destination at SampleRate.
	Context     *audio.Context
	NewRecorder func(Settings) Recorder
	HTTPClient  *http.Client
	OnProgress  func(Progress)
	Metrics     *observe.Metrics
}

// New returns an exporter with the default geometry writing into dir.
func New(dir string) *Exporter {
	e := &Exporter{OutputDir: dir}
	e.defaults()
	return e
}

func (e *Exporter) defaults() {
	if e.Width <= 0 {
		e.Width = DefaultWidth
	}
	if e.Height <= 0 {
		e.Height = DefaultHeight
	}
	if e.FPS <= 0 {
		e.FPS = DefaultFPS
	}
	if e.Bitrate == "" {
		e.Bitrate = DefaultBitrate
	}
	if e.SampleRate <= 0 {
		e.SampleRate = audio.SampleRate
	}
	if e.ImageTimeout <= 0 {
		e.ImageTimeout = DefaultImageTimeout
	}
	if e.Clock == nil {
		e.Clock = clock.New()
	}
	if e.NewRecorder == nil {
		e.NewRecorder = func(s Settings) Recorder { return NewFFmpegRecorder(s) }
	}
	if e.HTTPClient == nil {
		e.HTTPClient = http.DefaultClient
	}
}

// SceneDuration is how long a scene is held on screen: long enough for its
// narration plus a short tail, and never less than MinSceneDuration.
func SceneDuration(sc *story.Scene) time.Duration {
	if sc.Narration == nil {
		return MinSceneDuration
	}
	return max(MinSceneDuration, sc.NarrationDuration()+NarrationTail)
}

// FrameCount is the number of frames covering d at fps.
func FrameCount(d time.Duration, fps int) int {
	return max(int(math.Ceil(d.Seconds()*float64(fps))), 1)
}

// FileName is the name an export of s is written under.
func FileName(s *story.Story) string {
	return s.Slug() + ".webm"
}

// Export renders s and writes the result into OutputDir, returning the
// file's path. On cancellation or recorder failure nothing is written.
func (e *Exporter) Export(ctx context.Context, s *story.Story) (string, error) {
	e.defaults()
	if len(s.Scenes) == 0 {
		return "", ErrEmptyStory
	}
	started := time.Now()
	path, err := e.export(ctx, s)
	status := "ok"
	switch {
	case errors.Is(err, ErrCancelled):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	e.Metrics.RecordExport(context.WithoutCancel(ctx), time.Since(started), status)
	return path, err
}

func (e *Exporter) export(ctx context.Context, s *story.Story) (string, error) {
	log := logrus.WithFields(logrus.Fields{"title": s.Title, "scenes": len(s.Scenes)})

	var capture *audio.Destination
	if e.Context != nil {
		capture = e.Context.NewCaptureDestination()
	} else {
		capture = audio.NewDestination(e.SampleRate)
	}
	defer capture.Close()

	r, err := newRenderer(e.Width, e.Height)
	if err != nil {
		return "", fmt.Errorf("caption font: %w", err)
	}

	rec := e.NewRecorder(Settings{
		Width:      e.Width,
		Height:     e.Height,
		FPS:        e.FPS,
		SampleRate: int(capture.SampleRate()),
		Bitrate:    e.Bitrate,
	})
	if err := rec.Start(ctx); err != nil {
		return "", fmt.Errorf("start recorder: %w", err)
	}

	bed, err := ambient.NewBed(capture, s.Mood)
	if err != nil {
		log.WithError(err).Warn("Exporting without music bed")
	}
	abort := func() {
		if bed != nil {
			bed.Stop()
		}
		rec.Abort()
	}

	samplesPerFrame := int(capture.SampleRate()) / e.FPS
	interval := time.Second / time.Duration(e.FPS)
	epoch := e.Clock.Now()
	frameNo := 0
	n := float64(len(s.Scenes))

	for i, sc := range s.Scenes {
		img := e.sceneImage(ctx, i, sc)
		if ctx.Err() != nil {
			abort()
			return "", fmt.Errorf("export %q: %w", s.Title, ErrCancelled)
		}

		frames := FrameCount(SceneDuration(sc), e.FPS)
		var narration *audio.BufferSource
		if sc.Narration != nil {
			narration = capture.NewBufferSource(sc.Narration)
			if err := narration.Connect(capture); err != nil {
				log.WithError(err).WithField("scene", i).Warn("Failed to route narration")
				narration = nil
			} else {
				narration.Start()
			}
		}
		stopNarration := func() {
			if narration != nil {
				narration.Stop()
			}
		}

		for f := 0; f < frames; f++ {
			if ctx.Err() != nil {
				stopNarration()
				abort()
				return "", fmt.Errorf("export %q: %w", s.Title, ErrCancelled)
			}

			p := float64(f) / float64(frames)
			frame := r.frame(img, 1+KenBurnsZoom*p, sc.Text)
			if err := rec.WriteVideo(frame); err != nil {
				stopNarration()
				abort()
				return "", fmt.Errorf("record video: %w", err)
			}
			if err := rec.WriteAudio(audio.PCM16(capture.Read(samplesPerFrame))); err != nil {
				stopNarration()
				abort()
				return "", fmt.Errorf("record audio: %w", err)
			}
			frameNo++

			e.progress(Progress{
				Fraction: (float64(i) + float64(f+1)/float64(frames)) / n,
				Scene:    i,
			})
			if e.RealTime {
				if err := e.pace(ctx, epoch.Add(time.Duration(frameNo)*interval)); err != nil {
					stopNarration()
					abort()
					return "", fmt.Errorf("export %q: %w", s.Title, ErrCancelled)
				}
			}
		}
		stopNarration()
		e.Metrics.RecordFrames(ctx, frames)
		log.WithFields(logrus.Fields{"scene": i, "frames": frames}).Debug("Scene rendered")
	}

	if bed != nil {
		bed.Stop()
	}
	if err := rec.Stop(); err != nil {
		return "", fmt.Errorf("finalize recording: %w", err)
	}

	path := filepath.Join(e.OutputDir, FileName(s))
	if err := os.WriteFile(path, bytes.Join(rec.Fragments(), nil), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	e.progress(Progress{Fraction: 1, Scene: len(s.Scenes) - 1, Done: true})
	log.WithField("path", path).Info("Export complete")
	return path, nil
}

// sceneImage loads a scene's image within ImageTimeout, falling back to the
// placeholder.
func (e *Exporter) sceneImage(ctx context.Context, i int, sc *story.Scene) image.Image {
	if sc.Image == "" {
		return placeholder(e.Width, e.Height)
	}
	loadCtx, cancel := context.WithTimeout(ctx, e.ImageTimeout)
	defer cancel()
	img, err := loadImage(loadCtx, e.HTTPClient, sc.Image)
	if err != nil {
		logrus.WithError(err).WithField("scene", i).Warn("Using placeholder image")
		return placeholder(e.Width, e.Height)
	}
	return img
}

// pace blocks until the clock reaches deadline.
func (e *Exporter) pace(ctx context.Context, deadline time.Time) error {
	d := deadline.Sub(e.Clock.Now())
	if d <= 0 {
		return nil
	}
	ready := make(chan struct{})
	t := e.Clock.AfterFunc(d, func() { close(ready) })
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

func (e *Exporter) progress(p Progress) {
	if e.OnProgress != nil {
		e.OnProgress(p)
	}
}
