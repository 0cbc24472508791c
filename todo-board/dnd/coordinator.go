package dnd

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultSamplePeriod is how often the dragging observer receives the latest pointer.
const DefaultSamplePeriod = 100 * time.Millisecond

type zone struct {
	id   ID
	rect RectProvider
}

// Coordinator tracks droppable zones and the active drag session. All methods are safe
// for concurrent use; observers are always invoked without the internal lock held.
type Coordinator struct {
	mu      sync.Mutex
	zones   []zone
	session Session

	latest     Point
	hasLatest  bool
	period     time.Duration
	stop       chan struct{}
	generation uint64

	onDragging func(Point)
	onDragEnd  func(DragEnd)
	log        *log.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSamplePeriod sets the dragging observer period. Non-positive values keep the default.
func WithSamplePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.period = d
		}
	}
}

// WithDraggingObserver registers fn to receive sampled pointer positions while a drag is active.
func WithDraggingObserver(fn func(Point)) Option {
	return func(c *Coordinator) { c.onDragging = fn }
}

// WithDragEndObserver registers fn to receive the result of every released drag.
func WithDragEndObserver(fn func(DragEnd)) Option {
	return func(c *Coordinator) { c.onDragEnd = fn }
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.log = logger
		}
	}
}

// NewCoordinator returns an idle coordinator with no zones.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{period: DefaultSamplePeriod, log: log.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterZone adds or replaces the zone with the given id. A replaced zone moves to the
// end of the registration order.
func (c *Coordinator) RegisterZone(id ID, rect RectProvider) {
	if id == "" || rect == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeZoneLocked(id)
	c.zones = append(c.zones, zone{id: id, rect: rect})
}

// UnregisterZone removes the zone with the given id. Unknown ids are ignored.
func (c *Coordinator) UnregisterZone(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeZoneLocked(id)
}

func (c *Coordinator) removeZoneLocked(id ID) {
	for i, z := range c.zones {
		if z.id == id {
			c.zones = append(c.zones[:i], c.zones[i+1:]...)
			return
		}
	}
}

// Zones returns the registered zone ids in registration order.
func (c *Coordinator) Zones() []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ID, len(c.zones))
	for i, z := range c.zones {
		out[i] = z.id
	}
	return out
}

// ZoneAt returns the zone under p, or the empty ID.
func (c *Coordinator) ZoneAt(p Point) ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoneAtLocked(p)
}

// zoneAtLocked visits zones in registration order; the last match wins.
func (c *Coordinator) zoneAtLocked(p Point) ID {
	var hit ID
	for _, z := range c.zones {
		if z.rect().Contains(p) {
			hit = z.id
		}
	}
	return hit
}

// Session returns a copy of the current drag session.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Active reports whether a drag is in progress.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Active
}

// Start begins a drag of item at p. Starting while a drag is active replaces the
// previous session.
func (c *Coordinator) Start(p Point, item string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	origin := c.zoneAtLocked(p)
	c.session = Session{
		Active:  true,
		Item:    item,
		Origin:  origin,
		Hover:   origin,
		Initial: p,
		Current: p,
	}
	c.hasLatest = false
	if c.stop == nil {
		c.startSamplerLocked()
	}
	c.log.WithFields(log.Fields{"item": item, "origin": origin}).Debug("drag started")
}

// Move records the latest pointer position and recomputes the hovered zone. It reports
// whether the hovered zone changed. Moves without an active drag are ignored.
func (c *Coordinator) Move(p Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.Active {
		return false
	}
	c.latest = p
	c.hasLatest = true
	c.session.Current = p

	hover := c.zoneAtLocked(p)
	if hover == c.session.Hover {
		return false
	}
	c.session.Hover = hover
	return true
}

// End releases the drag at p. The session is always reset and the sampler stopped
// before the drag end observer, if any, is invoked with the result.
func (c *Coordinator) End(p Point) DragEnd {
	c.mu.Lock()
	if c.session.Active {
		c.session.Current = p
		c.session.Hover = c.zoneAtLocked(p)
	}
	result := DragEnd{
		Over: c.session.Hover,
		From: c.session.Origin,
		Item: c.session.Item,
	}
	c.session = Session{}
	c.latest = Point{}
	c.hasLatest = false
	c.stopSamplerLocked()
	observer := c.onDragEnd
	c.mu.Unlock()

	c.log.WithFields(log.Fields{"item": result.Item, "from": result.From, "over": result.Over}).Debug("drag ended")
	if observer != nil {
		observer(result)
	}
	return result
}

func (c *Coordinator) startSamplerLocked() {
	c.generation++
	stop := make(chan struct{})
	c.stop = stop
	go c.sample(stop, c.generation, c.period)
}

func (c *Coordinator) stopSamplerLocked() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	c.stop = nil
}

// sample delivers the most recent pointer position to the dragging observer once per
// period. Positions recorded between ticks are dropped.
func (c *Coordinator) sample(stop <-chan struct{}, generation uint64, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.generation != generation || !c.session.Active {
			c.mu.Unlock()
			return
		}
		p, ok, observer := c.latest, c.hasLatest, c.onDragging
		c.mu.Unlock()

		if ok && observer != nil {
			observer(p)
		}
	}
}
