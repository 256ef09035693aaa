package feed

// DefaultThreshold is the distance from the bottom, in pixels, at which a
// ScrollTrigger fires.
const DefaultThreshold = 200

// Trigger decides from a viewport position whether the next page is wanted.
// It only signals; the orchestrator still decides whether a fetch starts.
type Trigger interface {
	NearBottom(offset, viewport, content float64) bool
}

// ScrollTrigger fires when the visible area reaches within Threshold of the
// end of the content.
type ScrollTrigger struct {
	Threshold float64
}

// NewScrollTrigger returns a trigger with DefaultThreshold.
func NewScrollTrigger() ScrollTrigger {
	return ScrollTrigger{Threshold: DefaultThreshold}
}

// NearBottom reports whether offset+viewport is within Threshold of content.
// Content shorter than the viewport always fires so a short first page
// still leads to the next one.
func (t ScrollTrigger) NearBottom(offset, viewport, content float64) bool {
	if content <= viewport {
		return true
	}
	return offset+viewport >= content-t.Threshold
}
