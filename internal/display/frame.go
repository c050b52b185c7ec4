// Package display renders observations onto the 17x7 LED matrix of a
// Scroll pHAT HD and pushes frames to a Device.
package display

import "strings"

const (
	Width  = 17
	Height = 7
)

// Frame is a brightness buffer, one value in [0, 1] per LED, origin top-left.
type Frame struct {
	px [Height][Width]float64
}

// NewFrame returns a blank frame.
func NewFrame() *Frame {
	return &Frame{}
}

// SetPixel sets one LED. Coordinates outside the matrix are ignored and
// brightness is clamped to [0, 1].
func (f *Frame) SetPixel(x, y int, brightness float64) {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return
	}
	f.px[y][x] = clamp(brightness)
}

// Pixel returns the brightness at (x, y), or 0 outside the matrix.
func (f *Frame) Pixel(x, y int) float64 {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return 0
	}
	return f.px[y][x]
}

// ClearRect blanks a w by h rectangle whose top-left corner is (x, y).
func (f *Frame) ClearRect(x, y, w, h int) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			f.SetPixel(xx, yy, 0)
		}
	}
}

// Clear blanks the whole frame.
func (f *Frame) Clear() {
	f.px = [Height][Width]float64{}
}

// WriteString draws s in the 3x5 font starting at (x, y) and returns the x
// just past the last glyph. Runes without a glyph are drawn as blanks.
func (f *Frame) WriteString(s string, x, y int, brightness float64) int {
	for _, r := range s {
		glyph, ok := font3x5[r]
		if ok {
			for gy, row := range glyph {
				for gx, c := range row {
					if c == '#' {
						f.SetPixel(x+gx, y+gy, brightness)
					}
				}
			}
		}
		x += GlyphWidth + GlyphSpacing
	}
	return x
}

// Rotated180 returns a copy of the frame turned upside down, as mounted in a
// Scroll Bot.
func (f *Frame) Rotated180() *Frame {
	out := &Frame{}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			out.px[Height-1-y][Width-1-x] = f.px[y][x]
		}
	}
	return out
}

// Clone returns an independent copy.
func (f *Frame) Clone() *Frame {
	c := *f
	return &c
}

// Equal reports whether both frames light the same LEDs at the same brightness.
func (f *Frame) Equal(o *Frame) bool {
	return o != nil && f.px == o.px
}

// Values returns the brightness values row by row.
func (f *Frame) Values() []float64 {
	out := make([]float64, 0, Width*Height)
	for y := 0; y < Height; y++ {
		out = append(out, f.px[y][:]...)
	}
	return out
}

// String draws the frame as text: '#' bright, '+' dim, '.' off.
func (f *Frame) String() string {
	var b strings.Builder
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			switch v := f.px[y][x]; {
			case v >= 0.15:
				b.WriteByte('#')
			case v > 0:
				b.WriteByte('+')
			default:
				b.WriteByte('.')
			}
		}
		if y < Height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
