package board

import (
	"time"

	"golang.org/x/time/rate"

	"prism-todo/todo-board/dnd"
)

// Carousel shows one column at a time on narrow screens.
type Carousel struct {
	index int
	count int
}

// NewCarousel returns a carousel over count slides positioned on the first one.
func NewCarousel(count int) *Carousel {
	c := &Carousel{}
	c.SetCount(count)
	return c
}

// Index returns the visible slide.
func (c *Carousel) Index() int { return c.index }

// Count returns the number of slides.
func (c *Carousel) Count() int { return c.count }

// SetCount changes the number of slides, keeping the index in range.
func (c *Carousel) SetCount(n int) {
	if n < 0 {
		n = 0
	}
	c.count = n
	c.SlideTo(c.index)
}

// SlideTo jumps to slide i, clamped to the valid range. It reports whether the index changed.
func (c *Carousel) SlideTo(i int) bool {
	if i >= c.count {
		i = c.count - 1
	}
	if i < 0 {
		i = 0
	}
	if i == c.index {
		return false
	}
	c.index = i
	return true
}

// Prev moves one slide left. It returns false on the first slide.
func (c *Carousel) Prev() bool { return c.SlideTo(c.index - 1) }

// Next moves one slide right. It returns false on the last slide.
func (c *Carousel) Next() bool { return c.SlideTo(c.index + 1) }

const (
	// DefaultEdgeMargin is the width in cells of the edge strips that trigger sliding.
	DefaultEdgeMargin = 2
	// DefaultEdgeCooldown is the minimum time between edge-triggered slides.
	DefaultEdgeCooldown = time.Second
)

// EdgeScroller slides the carousel while a dragged card is held near a screen edge.
type EdgeScroller struct {
	carousel *Carousel
	margin   int
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewEdgeScroller allows at most one slide per cooldown.
func NewEdgeScroller(c *Carousel, margin int, cooldown time.Duration) *EdgeScroller {
	if margin <= 0 {
		margin = DefaultEdgeMargin
	}
	if cooldown <= 0 {
		cooldown = DefaultEdgeCooldown
	}
	return &EdgeScroller{
		carousel: c,
		margin:   margin,
		limiter:  rate.NewLimiter(rate.Every(cooldown), 1),
		now:      time.Now,
	}
}

// Direction returns -1 inside the left strip, 1 inside the right strip and 0 elsewhere.
func (s *EdgeScroller) Direction(p dnd.Point, width int) int {
	switch {
	case width <= 0:
		return 0
	case p.X < s.margin:
		return -1
	case p.X > width-1-s.margin:
		return 1
	}
	return 0
}

// Scroll slides the carousel toward the edge p is near. It reports whether a slide
// happened; it returns false away from the edges, at either end of the carousel and
// while the cooldown is running.
func (s *EdgeScroller) Scroll(p dnd.Point, width int) bool {
	dir := s.Direction(p, width)
	if dir == 0 {
		return false
	}
	target := s.carousel.Index() + dir
	if target < 0 || target >= s.carousel.Count() {
		return false
	}
	if !s.limiter.AllowN(s.now(), 1) {
		return false
	}
	return s.carousel.SlideTo(target)
}
