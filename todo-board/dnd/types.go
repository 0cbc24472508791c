package dnd

// ID identifies a droppable zone. The empty ID means "no zone".
type ID string

// Point is a pointer position in screen cells.
type Point struct {
	X int
	Y int
}

// Rect is a bounding rectangle with inclusive edges.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// RectOf builds a Rect from an origin and a size. Zero or negative sizes yield an
// empty rectangle that contains no point.
func RectOf(x, y, width, height int) Rect {
	return Rect{Left: x, Top: y, Right: x + width - 1, Bottom: y + height - 1}
}

// Contains reports whether p lies within r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Top && p.Y <= r.Bottom
}

// RectProvider returns the current bounds of a rendered zone. It is evaluated on every
// collision lookup so zones may move between renders without re-registering.
type RectProvider func() Rect

// Fixed returns a provider for a rectangle that never moves.
func Fixed(r Rect) RectProvider {
	return func() Rect { return r }
}

// Session is the state of the single in-flight drag. When Active is false every other
// field holds its zero value.
type Session struct {
	Active  bool
	Item    string
	Origin  ID
	Hover   ID
	Initial Point
	Current Point
}

// DragEnd is reported when a drag is released.
type DragEnd struct {
	Over ID
	From ID
	Item string
}
