package display

// Rect is a screen-space rectangle in pixels.
type Rect struct {
	X, Y, W, H int
}

// Overlap returns the area shared by r and o.
func (r Rect) Overlap(o Rect) int {
	w := min(r.X+r.W, o.X+o.W) - max(r.X, o.X)
	h := min(r.Y+r.H, o.Y+o.H) - max(r.Y, o.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// BestMonitor returns the index of the monitor area overlapping window the
// most. Ties and windows off every screen pick the first monitor.
func BestMonitor(window Rect, monitors []Rect) int {
	best, bestArea := 0, 0
	for i, m := range monitors {
		if a := window.Overlap(m); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}
