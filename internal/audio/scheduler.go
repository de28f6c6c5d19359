package audio

import "sync"

// Handle tracks one scheduled buffer from submission until it finishes
// rendering or is force-stopped.
type Handle struct {
	start   int64 // absolute start, samples in the output clock domain
	data    []float32
	pos     int // samples already rendered
	stopped bool
}

// Start returns the absolute start time in samples.
func (h *Handle) Start() int64 { return h.start }

// Scheduler renders decoded buffers strictly sequentially and without gaps,
// absorbing network jitter. It owns nextStart and the in-flight registry;
// both are only touched under the scheduler's own lock, so event dispatch and
// the device render callback may live on different goroutines.
type Scheduler struct {
	mu         sync.Mutex
	sampleRate int
	clock      int64 // samples rendered since start
	nextStart  int64
	handles    []*Handle
}

// NewScheduler creates a scheduler for the given output rate with the clock
// and cursor at zero.
func NewScheduler(sampleRate int) *Scheduler {
	return &Scheduler{sampleRate: sampleRate}
}

// Schedule queues samples for playback at max(now, nextStart) and advances
// nextStart by the buffer's duration. The returned handle stays registered
// until it drains or StopAll runs.
func (s *Scheduler) Schedule(samples []float32) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock
	if s.nextStart > start {
		start = s.nextStart
	}
	h := &Handle{start: start, data: samples}
	s.handles = append(s.handles, h)
	s.nextStart = start + int64(len(samples))
	return h
}

// Fill renders due samples into the device callback buffer and advances the
// output clock by len(out). Unclaimed regions are silence. Handles that
// finish rendering remove themselves from the registry.
func (s *Scheduler) Fill(out []float32) {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.clock + int64(len(out))
	kept := s.handles[:0]
	for _, h := range s.handles {
		if h.stopped {
			continue
		}
		// Next sample of this handle plays at h.start + pos.
		t := h.start + int64(h.pos)
		for t < end && h.pos < len(h.data) {
			if t >= s.clock {
				out[t-s.clock] = h.data[h.pos]
			}
			h.pos++
			t++
		}
		if h.pos < len(h.data) {
			kept = append(kept, h)
		}
	}
	s.handles = kept
	s.clock = end
}

// StopAll force-stops every in-flight handle and clears the registry.
// nextStart is left where it is; a fresh session owns a fresh scheduler.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		h.stopped = true
	}
	s.handles = nil
}

// InFlight returns the number of registered handles still rendering.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Now returns the output clock position in samples.
func (s *Scheduler) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}
