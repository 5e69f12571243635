package display

import "testing"

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want int
	}{
		{"disjoint", Rect{0, 0, 10, 10}, Rect{20, 20, 5, 5}, 0},
		{"touching edge", Rect{0, 0, 10, 10}, Rect{10, 0, 10, 10}, 0},
		{"contained", Rect{2, 2, 4, 4}, Rect{0, 0, 10, 10}, 16},
		{"partial", Rect{5, 5, 10, 10}, Rect{0, 0, 10, 10}, 25},
		{"negative origin", Rect{-5, 0, 10, 10}, Rect{-1920, 0, 1920, 1080}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlap(tt.b); got != tt.want {
				t.Errorf("Overlap = %d, want %d", got, tt.want)
			}
			if got := tt.b.Overlap(tt.a); got != tt.want {
				t.Errorf("Overlap is not symmetric: %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBestMonitor(t *testing.T) {
	monitors := []Rect{
		{X: 0, Y: 0, W: 1920, H: 1080},
		{X: 1920, Y: 0, W: 2560, H: 1440},
	}
	tests := []struct {
		name   string
		window Rect
		want   int
	}{
		{"left screen", Rect{100, 100, 800, 600}, 0},
		{"right screen", Rect{2000, 100, 800, 600}, 1},
		{"straddling mostly right", Rect{1800, 100, 800, 600}, 1},
		{"straddling mostly left", Rect{1500, 100, 800, 600}, 0},
		{"off screen", Rect{-5000, -5000, 800, 600}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BestMonitor(tt.window, monitors); got != tt.want {
				t.Errorf("BestMonitor = %d, want %d", got, tt.want)
			}
		})
	}
}
