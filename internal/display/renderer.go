package display

import (
	"math"
	"strconv"

	"github.com/kjstillabower/weatherbot/internal/models"
	"github.com/kjstillabower/weatherbot/internal/trend"
)

// Layout regions on the unrotated matrix.
const (
	labelClearWidth = 12 // three glyphs
	arrowX          = 15
	windRow         = 6
	pulseRow        = 5
	pulseX          = 12
	pulseWidth      = 5
)

// PulseSequence is one sweep of the "Knight Rider" pixel: out along row 5 and back.
var PulseSequence = []int{1, 2, 3, 4, 5, 4, 3, 2}

// Brightness levels for each element of the layout.
type Brightness struct {
	Text  float64
	Wind  float64
	Gust  float64
	Pulse float64
}

// DefaultBrightness matches the levels that read well on a Scroll pHAT HD indoors.
var DefaultBrightness = Brightness{Text: 0.2, Wind: 0.1, Gust: 0.2, Pulse: 0.2}

// Renderer owns the frame that is shown on the matrix. Render replaces the
// weather content; Pulse only touches the pulse strip.
type Renderer struct {
	levels    Brightness
	feelsLike bool
	frame     *Frame
}

// NewRenderer returns a Renderer. feelsLike selects the feels-like temperature
// for the label instead of the measured one.
func NewRenderer(levels Brightness, feelsLike bool) *Renderer {
	return &Renderer{levels: levels, feelsLike: feelsLike, frame: NewFrame()}
}

// Render redraws the frame from obs and dir. The same inputs always produce
// the same frame.
func (r *Renderer) Render(obs models.Observation, dir trend.Direction) *Frame {
	temp := obs.Temperature
	if r.feelsLike {
		temp = obs.FeelsLike
	}
	label := Label(temp, obs.Scale)

	r.frame.Clear()
	r.drawWind(obs.WindSpeed, obs.WindGust, obs.Scale)
	if fitsBesideArrow(label) {
		r.drawTrend(dir)
	}
	r.drawLabel(label)
	return r.frame
}

// Placeholder shows "--" and the scale letter until the first observation arrives.
func (r *Renderer) Placeholder(scale models.Scale) *Frame {
	r.frame.Clear()
	r.drawLabel("--" + string(scale))
	return r.frame
}

// Pulse lights the pulse pixel at pos (1..5) and returns the frame.
func (r *Renderer) Pulse(pos int) *Frame {
	r.frame.ClearRect(pulseX, pulseRow, pulseWidth, 1)
	r.frame.SetPixel(pos+pulseX-1, pulseRow, r.levels.Pulse)
	return r.frame
}

// Clear blanks the frame.
func (r *Renderer) Clear() *Frame {
	r.frame.Clear()
	return r.frame
}

func (r *Renderer) drawLabel(label string) {
	w := labelClearWidth
	if !fitsBesideArrow(label) {
		w = Width
	}
	r.frame.ClearRect(0, 0, w, GlyphHeight)
	r.frame.WriteString(label, 0, 0, r.levels.Text)
}

// fitsBesideArrow reports whether label leaves the trend columns free.
func fitsBesideArrow(label string) bool {
	return StringWidth(label) <= labelClearWidth
}

func (r *Renderer) drawTrend(dir trend.Direction) {
	switch dir {
	case trend.Up, trend.Down:
		for y := 0; y < GlyphHeight; y++ {
			r.frame.SetPixel(arrowX, y, r.levels.Text)
		}
		wing := 1
		if dir == trend.Down {
			wing = 3
		}
		r.frame.SetPixel(arrowX-1, wing, r.levels.Text)
		r.frame.SetPixel(arrowX+1, wing, r.levels.Text)
	default:
		r.frame.ClearRect(arrowX-1, 0, 3, 6)
	}
}

func (r *Renderer) drawWind(speed, gust float64, scale models.Scale) {
	perPixel := float64(Width) / MaxWind(scale)
	n := windPixels(perPixel * speed)
	for x := 0; x < n; x++ {
		r.frame.SetPixel(x, windRow, r.levels.Wind)
	}
	if g := windPixels(perPixel * gust); g > 0 {
		r.frame.SetPixel(g-1, windRow, r.levels.Gust)
	}
}

func windPixels(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= Width {
		return Width
	}
	return int(v)
}

// MaxWind is the wind speed that fills the bar: 75 mph or 100 km/h.
func MaxWind(scale models.Scale) float64 {
	if scale == models.Celsius {
		return 100
	}
	return 75
}

// Label formats a temperature truncated toward zero followed by the scale
// letter, e.g. "72F" or "-5C".
func Label(temp float64, scale models.Scale) string {
	return strconv.Itoa(int(temp)) + string(scale)
}

// ContentEqual reports whether two frames match outside the pulse strip.
func ContentEqual(a, b *Frame) bool {
	if a == nil || b == nil {
		return a == b
	}
	ca, cb := a.Clone(), b.Clone()
	ca.ClearRect(pulseX, pulseRow, pulseWidth, 1)
	cb.ClearRect(pulseX, pulseRow, pulseWidth, 1)
	return ca.Equal(cb)
}
