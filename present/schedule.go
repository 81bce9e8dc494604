// Package present runs the frame loops: produce a buffer, register its
// framebuffer, hand it to the display, wait for the flip and release
// what the display no longer reads.
package present

// Schedule alternates the primary and overlay planes. Within every
// Duration frames the overlay is shown during the second half.
type Schedule struct {
	Duration int
	// PrimaryFirst turns the primary plane on at frame 1.
	PrimaryFirst bool
}

// Step tells what a frame changes.
type Step struct {
	Frame          int
	OverlayVisible bool
	// OverlayOn and PrimaryOn are transition frames: the plane going
	// away is disabled in the same frame.
	OverlayOn bool
	PrimaryOn bool
}

func (s Schedule) visible(i int) bool {
	d := s.Duration
	if d < 1 {
		d = 1
	}
	return i%d > d/2
}

// At returns the step of frame i, counting from 1.
func (s Schedule) At(i int) Step {
	vis, prev := s.visible(i), s.visible(i-1)
	return Step{
		Frame:          i,
		OverlayVisible: vis,
		OverlayOn:      !prev && vis,
		PrimaryOn:      (prev && !vis) || (s.PrimaryFirst && i == 1),
	}
}
