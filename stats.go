package lumenvk

import "time"

// FrameStats tracks frame timing. FPS is recomputed once per interval.
type FrameStats struct {
	Frame         uint64
	LastFrameTime time.Duration
	FPS           float64

	interval   time.Duration
	last       time.Time
	windowFrom time.Time
	windowN    int
}

func newFrameStats(now time.Time) FrameStats {
	return FrameStats{interval: time.Second, last: now, windowFrom: now}
}

// tick records a frame finished at now and reports whether FPS was
// refreshed.
func (s *FrameStats) tick(now time.Time) bool {
	s.Frame++
	s.LastFrameTime = now.Sub(s.last)
	s.last = now
	s.windowN++
	elapsed := now.Sub(s.windowFrom)
	if elapsed < s.interval {
		return false
	}
	s.FPS = float64(s.windowN) / elapsed.Seconds()
	s.windowN = 0
	s.windowFrom = now
	return true
}
