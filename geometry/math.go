package geometry

import (
	"math"
	"strconv"
)

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// Point is a location in canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return "[" + formatFloat(p.X) + "," + formatFloat(p.Y) + "]"
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Max returns the smallest size that holds both s and o.
func (s Size) Max(o Size) Size {
	return Size{
		Width:  math.Max(s.Width, o.Width),
		Height: math.Max(s.Height, o.Height),
	}
}

func (s Size) Equal(o Size) bool {
	return s.Width == o.Width && s.Height == o.Height
}

func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// Rect is an axis aligned rectangle. The origin is the top left corner and the
// y axis grows downward, the same way element bounds are reported by the
// rendering layer.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func NewRect(x, y, width, height float64) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// RectFromSize returns a rect of the given size anchored at the origin.
func RectFromSize(s Size) Rect {
	return Rect{Width: s.Width, Height: s.Height}
}

func (r Rect) Right() float64 {
	return r.X + r.Width
}

func (r Rect) Bottom() float64 {
	return r.Y + r.Height
}

func (r Rect) Origin() Point {
	return Point{X: r.X, Y: r.Y}
}

func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// IsZero reports whether r is the zero rect, which is what a measurement
// returns for elements that are not mounted.
func (r Rect) IsZero() bool {
	return r == Rect{}
}

// IsDegenerate reports whether r has no area.
func (r Rect) IsDegenerate() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Equal compares coordinates exactly.
func (r Rect) Equal(o Rect) bool {
	return r.X == o.X && r.Y == o.Y && r.Width == o.Width && r.Height == o.Height
}

func (r Rect) EqualWithEpsilon(o Rect, epsilon float64) bool {
	return EqualWithEpsilon(r.X, o.X, epsilon) &&
		EqualWithEpsilon(r.Y, o.Y, epsilon) &&
		EqualWithEpsilon(r.Width, o.Width, epsilon) &&
		EqualWithEpsilon(r.Height, o.Height, epsilon)
}

// Overlaps reports whether the interiors of r and o intersect. Rects sharing
// only an edge do not overlap, and a degenerate rect overlaps nothing.
func (r Rect) Overlaps(o Rect) bool {
	if r.IsDegenerate() || o.IsDegenerate() {
		return false
	}

	return r.X < o.Right() &&
		o.X < r.Right() &&
		r.Y < o.Bottom() &&
		o.Y < r.Bottom()
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X &&
		p.X <= r.Right() &&
		p.Y >= r.Y &&
		p.Y <= r.Bottom()
}

// Covers reports whether o lies inside r, edges included.
func (r Rect) Covers(o Rect) bool {
	return o.X >= r.X &&
		o.Y >= r.Y &&
		o.Right() <= r.Right() &&
		o.Bottom() <= r.Bottom()
}

// Quadrants splits r in four equal parts ordered NW, NE, SW, SE.
func (r Rect) Quadrants() [4]Rect {
	w := r.Width / 2
	h := r.Height / 2

	return [4]Rect{
		{X: r.X, Y: r.Y, Width: w, Height: h},
		{X: r.X + w, Y: r.Y, Width: w, Height: h},
		{X: r.X, Y: r.Y + h, Width: w, Height: h},
		{X: r.X + w, Y: r.Y + h, Width: w, Height: h},
	}
}

// Expand grows r by ratio of its size on each side. A ratio of 0.2 moves the
// origin by -0.2*size and scales the size by 1.4.
func (r Rect) Expand(ratio float64) Rect {
	dx := r.Width * ratio
	dy := r.Height * ratio

	return Rect{
		X:      r.X - dx,
		Y:      r.Y - dy,
		Width:  r.Width + 2*dx,
		Height: r.Height + 2*dy,
	}
}

// Union returns the smallest rect containing r and o. Zero rects are ignored.
func (r Rect) Union(o Rect) Rect {
	if r.IsZero() {
		return o
	}
	if o.IsZero() {
		return r
	}

	x := math.Min(r.X, o.X)
	y := math.Min(r.Y, o.Y)
	return Rect{
		X:      x,
		Y:      y,
		Width:  math.Max(r.Right(), o.Right()) - x,
		Height: math.Max(r.Bottom(), o.Bottom()) - y,
	}
}

func (r Rect) String() string {
	return "[" + formatFloat(r.X) + "," + formatFloat(r.Y) + " " +
		formatFloat(r.Width) + "x" + formatFloat(r.Height) + "]"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
