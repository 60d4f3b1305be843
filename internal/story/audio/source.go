package audio

// BufferSource plays a decoded Buffer once. A fresh source is needed for
// every playback; the buffer itself is shared and never modified.
type BufferSource struct {
	node
	buf *Buffer

	pos     float64
	step    float64
	started bool
	stopped bool
	ended   bool
	onEnded func()
}

// NewBufferSource creates an unconnected source over b.
func (d *Destination) NewBufferSource(b *Buffer) *BufferSource {
	step := 1.0
	if b != nil && b.SampleRate > 0 {
		step = float64(b.SampleRate) / float64(d.sampleRate)
	}
	return &BufferSource{
		node: node{g: d},
		buf:  b,
		step: step,
	}
}

// OnEnded registers fn to run once when playback ends, naturally or through
// Stop. fn runs on its own goroutine, never under the graph lock.
func (s *BufferSource) OnEnded(fn func()) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.onEnded = fn
}

func (s *BufferSource) Connect(dst Sink) error {
	return connect(s, dst)
}

func (s *BufferSource) Disconnect() {
	disconnect(s)
}

// Start begins playback from the first sample.
func (s *BufferSource) Start() {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if s.stopped {
		return
	}
	s.started = true
}

// Stop ends playback. It is safe after natural completion and when called
// more than once.
func (s *BufferSource) Stop() {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.release()
}

// hasEnded reports whether playback has finished or been stopped.
func (s *BufferSource) hasEnded() bool {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.ended
}

func (s *BufferSource) Stream(samples [][2]float64) (int, bool) {
	if s.stopped || s.ended {
		return 0, false
	}
	if !s.started {
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}
	frames := 0
	if s.buf != nil {
		frames = s.buf.Len()
	}
	n := 0
	for n < len(samples) && int(s.pos) < frames {
		i := int(s.pos)
		l := float64(s.buf.Data[0][i])
		r := l
		if len(s.buf.Data) > 1 {
			r = float64(s.buf.Data[1][i])
		}
		samples[n] = [2]float64{l, r}
		n++
		s.pos += s.step
	}
	if int(s.pos) >= frames {
		s.finish()
	}
	return n, n > 0
}

func (s *BufferSource) Err() error {
	return nil
}

func (s *BufferSource) finish() {
	if s.ended {
		return
	}
	s.ended = true
	if fn := s.onEnded; fn != nil {
		go fn()
	}
}

func (s *BufferSource) core() *node {
	return &s.node
}

func (s *BufferSource) release() {
	if s.stopped {
		return
	}
	s.stopped = true
	s.finish()
}
