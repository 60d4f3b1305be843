package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrRecorderClosed = errors.New("recorder is not running")

// Settings describe the recorded stream.
type Settings struct {
	Width      int
	Height     int
	FPS        int
	SampleRate int
	Bitrate    string
}

// Recorder muxes rendered frames and captured audio into one media stream.
// Fragments returns the stream in the chunks it was produced in; it is only
// complete after Stop returns.
type Recorder interface {
	Start(ctx context.Context) error
	WriteVideo(frame *image.RGBA) error
	// WriteAudio takes interleaved stereo s16le samples.
	WriteAudio(pcm []byte) error
	Stop() error
	Abort()
	Fragments() [][]byte
}

// FFmpegRecorder encodes WebM through an ffmpeg child process. Raw RGBA
// frames go to stdin, PCM to an extra pipe on fd 3, and the container is read
// back from stdout.
type FFmpegRecorder struct {
	Binary   string
	Settings Settings

	cancel context.CancelFunc
	cmd    *exec.Cmd
	video  chan []byte
	audio  chan []byte
	g      *errgroup.Group
	gctx   context.Context
	stderr bytes.Buffer

	mu        sync.Mutex
	fragments [][]byte
	stopped   bool
}

func NewFFmpegRecorder(s Settings) *FFmpegRecorder {
	return &FFmpegRecorder{Binary: "ffmpeg", Settings: s}
}

func (r *FFmpegRecorder) args() []string {
	s := r.Settings
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-framerate", strconv.Itoa(s.FPS),
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(s.SampleRate),
		"-ac", "2",
		"-i", "pipe:3",
		"-c:v", "libvpx-vp9",
		"-b:v", s.Bitrate,
		"-pix_fmt", "yuv420p",
		"-deadline", "realtime",
		"-c:a", "libopus",
		"-f", "webm",
		"pipe:1",
	}
}

func (r *FFmpegRecorder) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cmd := exec.CommandContext(ctx, r.Binary, r.args()...)
	cmd.Stderr = &r.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe error: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe error: %w", err)
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		cancel()
		return fmt.Errorf("audio pipe error: %w", err)
	}
	cmd.ExtraFiles = []*os.File{audioR}

	if err := cmd.Start(); err != nil {
		audioR.Close()
		audioW.Close()
		cancel()
		return fmt.Errorf("ffmpeg start error: %w", err)
	}
	audioR.Close()

	r.cmd = cmd
	r.video = make(chan []byte, 4)
	r.audio = make(chan []byte, 16)
	r.g, r.gctx = errgroup.WithContext(ctx)
	r.g.Go(func() error { return pump(r.video, stdin) })
	r.g.Go(func() error { return pump(r.audio, audioW) })
	r.g.Go(func() error { return r.drain(stdout) })
	return nil
}

// pump copies queued buffers to w and closes w once the queue is closed.
// A failed write ends the group so pending and later enqueues fail fast.
func pump(queue <-chan []byte, w io.WriteCloser) error {
	defer w.Close()
	for buf := range queue {
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func (r *FFmpegRecorder) drain(out io.Reader) error {
	for {
		chunk := make([]byte, 64*1024)
		n, err := out.Read(chunk)
		if n > 0 {
			r.mu.Lock()
			r.fragments = append(r.fragments, chunk[:n])
			r.mu.Unlock()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (r *FFmpegRecorder) WriteVideo(frame *image.RGBA) error {
	buf := make([]byte, len(frame.Pix))
	copy(buf, frame.Pix)
	return r.enqueue(r.video, buf)
}

func (r *FFmpegRecorder) WriteAudio(pcm []byte) error {
	return r.enqueue(r.audio, pcm)
}

func (r *FFmpegRecorder) enqueue(queue chan []byte, buf []byte) error {
	r.mu.Lock()
	stopped := r.stopped || r.cmd == nil
	r.mu.Unlock()
	if stopped {
		return ErrRecorderClosed
	}
	if r.gctx.Err() != nil {
		return fmt.Errorf("ffmpeg pipe closed: %w", context.Cause(r.gctx))
	}
	select {
	case queue <- buf:
		return nil
	case <-r.gctx.Done():
		return fmt.Errorf("ffmpeg pipe closed: %w", context.Cause(r.gctx))
	}
}

// Stop flushes the queued input and waits for ffmpeg to finish the container.
func (r *FFmpegRecorder) Stop() error {
	if !r.markStopped() {
		return ErrRecorderClosed
	}
	close(r.video)
	close(r.audio)
	err := r.g.Wait()
	if werr := r.cmd.Wait(); err == nil {
		err = werr
	}
	r.cancel()
	if err != nil {
		return fmt.Errorf("ffmpeg error: %w", r.failure(err))
	}
	return nil
}

// Abort kills ffmpeg and drops whatever it produced.
func (r *FFmpegRecorder) Abort() {
	if !r.markStopped() {
		return
	}
	r.cancel()
	close(r.video)
	close(r.audio)
	_ = r.g.Wait()
	_ = r.cmd.Wait()

	r.mu.Lock()
	r.fragments = nil
	r.mu.Unlock()
}

func (r *FFmpegRecorder) Fragments() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fragments
}

func (r *FFmpegRecorder) markStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.cmd == nil {
		return false
	}
	r.stopped = true
	return true
}

func (r *FFmpegRecorder) failure(err error) error {
	if msg := bytes.TrimSpace(r.stderr.Bytes()); len(msg) > 0 {
		return fmt.Errorf("%w, output: %s", err, msg)
	}
	return err
}
