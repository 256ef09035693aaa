package feed

import "testing"

func TestScrollTrigger_NearBottom(t *testing.T) {
	trigger := NewScrollTrigger()

	tests := []struct {
		name     string
		offset   float64
		viewport float64
		content  float64
		want     bool
	}{
		{name: "top of long page", offset: 0, viewport: 800, content: 5000, want: false},
		{name: "just outside threshold", offset: 3999, viewport: 800, content: 5000, want: false},
		{name: "at threshold", offset: 4000, viewport: 800, content: 5000, want: true},
		{name: "at bottom", offset: 4200, viewport: 800, content: 5000, want: true},
		{name: "content shorter than viewport", offset: 0, viewport: 800, content: 300, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trigger.NearBottom(tt.offset, tt.viewport, tt.content); got != tt.want {
				t.Errorf("NearBottom(%v, %v, %v) = %v, want %v", tt.offset, tt.viewport, tt.content, got, tt.want)
			}
		})
	}
}

func TestScrollTrigger_OnlySignals(t *testing.T) {
	f := newMemFetcher(nil)
	o := newTestOrchestrator(t, f, DefaultConfig())
	release := f.hold()
	defer release()

	var trigger Trigger = NewScrollTrigger()
	started := 0
	// Repeated scroll events near the bottom reach the orchestrator, which
	// starts a single fetch.
	for i := 0; i < 5; i++ {
		if trigger.NearBottom(4200, 800, 5000) && o.RequestNextPage(t.Context()) {
			started++
		}
	}
	if started != 1 {
		t.Errorf("started fetches = %d, want 1", started)
	}
}
