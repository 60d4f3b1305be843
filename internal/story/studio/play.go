package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"storyloom/internal/cli/scheme/colours"
	"storyloom/internal/domain/story"
	"storyloom/internal/story/ambient"
	"storyloom/internal/story/clock"
	"storyloom/internal/story/player"
)

// fadeWait bounds how long the CLI waits for music to fade before exiting.
const fadeWait = 2 * time.Second

var moodBlurbs = map[story.Mood]string{
	story.MoodEthereal: "soft sine chords drifting in one after another",
	story.MoodSuspense: "a low filtered drone with a slow beating pair above it",
	story.MoodSciFi:    "a sweeping filtered saw under a bright square tone",
}

func (s *Studio) Play(cmd *cobra.Command, args []string) error {
	st, err := story.ReadFile(args[0])
	if err != nil {
		return err
	}
	if len(st.Scenes) == 0 {
		return player.ErrEmptyStory
	}

	actx := s.NewAudioContext()
	if err := actx.Resume(s.ctx); err != nil {
		s.print(colours.Warning, "Audio output unavailable, scenes will advance on a timer: %v\n", err)
	}
	synth := ambient.New(actx.Destination(), clock.New())
	defer synth.Close()

	finished := make(chan struct{}, 1)
	var (
		mu      sync.Mutex
		started time.Time
	)
	p := player.New(st, player.Options{
		Narrator:         player.ContextNarrator{Context: actx},
		Ambience:         synth,
		FallbackDuration: s.Config.Player.Fallback,
		Volume:           s.Config.Player.Volume,
		Observer: func(e player.Event) {
			mu.Lock()
			if e.Kind == player.SceneStarted {
				started = time.Now()
			}
			elapsed := time.Since(started)
			mu.Unlock()

			s.report(st, e)
			if e.Kind == player.StageChanged {
				logrus.WithFields(stageFields(st.Scenes[e.State.Index], e.State.Index, e.State.Stage, elapsed)).Debug("Scene stage")
			}
			if e.Kind == player.Finished {
				select {
				case finished <- struct{}{}:
				default:
				}
			}
		},
	})

	s.println()
	s.print(colours.Title, "%s\n", st.Title)
	s.print(colours.Info, "Keys: p pause/resume, n next, b back, m mute, r restart, q quit\n")
	if err := p.Start(); err != nil {
		return err
	}

	err = s.control(p, finished)
	p.Close()
	s.waitFade(synth.Stop())
	return err
}

// control runs the keyboard loop. Without interactive input it returns once
// the story finishes.
func (s *Studio) control(p *player.Player, finished <-chan struct{}) error {
	stop := make(chan struct{})
	defer close(stop)
	lines := s.lines(stop)
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-finished:
			if lines == nil {
				return nil
			}
		case input, ok := <-lines:
			if !ok {
				if p.State().Finished {
					return nil
				}
				lines = nil
				continue
			}
			switch input {
			case "p", "pause", "play":
				if err := p.TogglePlay(); err != nil {
					return err
				}
			case "n", "next":
				if err := p.Next(); err != nil {
					return err
				}
			case "b", "back", "prev":
				if err := p.Prev(); err != nil {
					return err
				}
			case "m", "mute":
				p.ToggleMute()
			case "r", "restart":
				if err := p.Restart(); err != nil {
					return err
				}
			case "q", "quit":
				return nil
			case "":
			default:
				s.print(colours.Info, "Use p, n, b, m, r or q\n")
			}
		}
	}
}

func (s *Studio) report(st *story.Story, e player.Event) {
	switch e.Kind {
	case player.SceneStarted:
		s.Metrics.RecordScene(s.ctx, string(st.Mood))
		sc := st.Scenes[e.State.Index]
		s.print(colours.Scene, "\n[%d/%d] ", e.State.Index+1, len(st.Scenes))
		s.printf("%s\n", sc.Text)
		s.print(colours.Muted, "        %s, %s\n", player.CameraFor(e.State.Index).Motion, sc.TransitionSettings().Type)
	case player.Paused:
		s.print(colours.Warning, "Paused\n")
	case player.Resumed:
		s.print(colours.Success, "Resumed\n")
	case player.MuteChanged:
		if e.State.Muted {
			s.print(colours.Warning, "Music muted\n")
		} else {
			s.print(colours.Success, "Music on\n")
		}
	case player.Finished:
		s.print(colours.Success, "\nThe end.\n")
	}
}

// stageFields describes the scene layer and its camera pose at a stage.
func stageFields(sc *story.Scene, i int, stage player.Stage, elapsed time.Duration) logrus.Fields {
	f := logrus.Fields{"scene": i, "stage": stage}
	if g, err := player.GeometryFor(sc.TransitionSettings().Type, stage); err == nil {
		f["offset"] = g.OffsetX
		f["scale"] = g.Scale
		f["opacity"] = g.Opacity
	} else {
		f["error"] = err
	}
	cam := player.CameraFor(i)
	pose := cam.At(elapsed)
	f["camera"] = cam.Motion.String()
	f["camera_offset"] = pose.OffsetX
	f["camera_scale"] = pose.Scale
	return f
}

func (s *Studio) waitFade(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(fadeWait):
		logrus.Debug("Gave up waiting for the music to fade")
	}
}

func (s *Studio) Moods(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		s.print(colours.Title, "Ambient moods\n")
		for _, m := range story.Moods {
			s.print(colours.Mood, "  %-9s", m)
			s.printf(" %s\n", moodBlurbs[m])
		}
		return nil
	}

	m, err := story.ParseMood(args[0])
	if err != nil {
		return err
	}
	if !ambient.HasRecipe(m) {
		return fmt.Errorf("mood %q has no music: %w", m, story.ErrUnknownMood)
	}
	length, _ := cmd.Flags().GetDuration("for")

	actx := s.NewAudioContext()
	if err := actx.Resume(s.ctx); err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	synth := ambient.New(actx.Destination(), clock.New())
	defer synth.Close()

	synth.Play(m)
	s.print(colours.Mood, "Previewing %s. ", m)
	if length > 0 {
		s.printf("\n")
		ctx, cancel := context.WithTimeout(s.ctx, length)
		defer cancel()
		<-ctx.Done()
	} else {
		s.printf("Press Enter to stop.\n")
		stop := make(chan struct{})
		select {
		case <-s.ctx.Done():
		case <-s.lines(stop):
		}
		close(stop)
	}
	s.waitFade(synth.Stop())
	return nil
}

var _ player.Ambience = (*ambient.Synth)(nil)
