package studio

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"storyloom/internal/cli/scheme/colours"
	"storyloom/internal/domain/story"
	"storyloom/internal/story/export"
)

const barWidth = 30

func (s *Studio) Export(cmd *cobra.Command, args []string) error {
	st, err := story.ReadFile(args[0])
	if err != nil {
		return err
	}
	cfg := s.Config.Export
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.Dir
	}
	realtime, _ := cmd.Flags().GetBool("realtime")

	e := &export.Exporter{
		Width:        cfg.Width,
		Height:       cfg.Height,
		FPS:          cfg.FPS,
		Bitrate:      cfg.Bitrate,
		ImageTimeout: cfg.ImageTimeout,
		RealTime:     realtime || cfg.RealTime,
		OutputDir:    dir,
		Metrics:      s.Metrics,
		NewRecorder:  s.NewRecorder,
		OnProgress: func(p export.Progress) {
			s.printf("\r  %s %3.0f%%  scene %d", bar(p.Fraction), p.Fraction*100, p.Scene+1)
		},
	}
	if e.NewRecorder == nil {
		binary := cfg.FFmpeg
		e.NewRecorder = func(set export.Settings) export.Recorder {
			r := export.NewFFmpegRecorder(set)
			if binary != "" {
				r.Binary = binary
			}
			return r
		}
	}

	s.print(colours.Info, "Exporting %q at %dx%d, %d fps\n", st.Title, e.Width, e.Height, e.FPS)
	path, err := e.Export(s.ctx, st)
	s.println()
	if errors.Is(err, export.ErrCancelled) {
		s.print(colours.Warning, "Export cancelled, nothing was written\n")
		return nil
	}
	if err != nil {
		return err
	}
	s.print(colours.Success, "Video saved to %s\n", path)
	return nil
}

func bar(fraction float64) string {
	n := min(max(int(fraction*barWidth), 0), barWidth)
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", barWidth-n) + "]"
}
