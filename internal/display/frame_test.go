package display

import (
	"strings"
	"testing"
)

func TestFrame_SetPixelBounds(t *testing.T) {
	f := NewFrame()
	f.SetPixel(-1, 0, 1)
	f.SetPixel(Width, 0, 1)
	f.SetPixel(0, Height, 1)
	f.SetPixel(16, 6, 2)
	f.SetPixel(0, 0, -1)

	if got := f.Pixel(16, 6); got != 1 {
		t.Errorf("Pixel(16,6) = %v, want clamped 1", got)
	}
	if got := f.Pixel(0, 0); got != 0 {
		t.Errorf("Pixel(0,0) = %v, want clamped 0", got)
	}
	if got := f.Pixel(99, 99); got != 0 {
		t.Errorf("Pixel out of range = %v, want 0", got)
	}
}

func TestFrame_ClearRect(t *testing.T) {
	f := NewFrame()
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			f.SetPixel(x, y, 0.5)
		}
	}
	f.ClearRect(12, 5, 5, 1)
	for x := 0; x < Width; x++ {
		want := 0.5
		if x >= 12 {
			want = 0
		}
		if got := f.Pixel(x, 5); got != want {
			t.Errorf("Pixel(%d,5) = %v, want %v", x, got, want)
		}
	}
	if f.Pixel(12, 4) != 0.5 || f.Pixel(12, 6) != 0.5 {
		t.Error("ClearRect touched neighbouring rows")
	}
}

func TestFrame_WriteString(t *testing.T) {
	f := NewFrame()
	end := f.WriteString("72F", 0, 0, 0.2)
	if end != 12 {
		t.Errorf("WriteString end = %d, want 12", end)
	}
	want := strings.Join([]string{
		"###.###.###......",
		"..#...#.#........",
		".#..###.##.......",
		".#..#...#........",
		".#..###.#........",
		".................",
		".................",
	}, "\n")
	if got := f.String(); got != want {
		t.Errorf("frame =\n%s\nwant\n%s", got, want)
	}
}

func TestStringWidth(t *testing.T) {
	tests := map[string]int{"": 0, "F": 3, "72F": 11, "100F": 15}
	for s, want := range tests {
		if got := StringWidth(s); got != want {
			t.Errorf("StringWidth(%q) = %d, want %d", s, got, want)
		}
	}
}

func TestFrame_Rotated180(t *testing.T) {
	f := NewFrame()
	f.SetPixel(0, 0, 1)
	f.SetPixel(3, 1, 0.5)

	r := f.Rotated180()
	if r.Pixel(16, 6) != 1 || r.Pixel(13, 5) != 0.5 {
		t.Errorf("rotated frame =\n%s", r)
	}
	if f.Pixel(0, 0) != 1 {
		t.Error("Rotated180 modified the source frame")
	}
	if !r.Rotated180().Equal(f) {
		t.Error("rotating twice should give the original frame")
	}
}

func TestFrame_Values(t *testing.T) {
	f := NewFrame()
	f.SetPixel(1, 2, 0.25)
	v := f.Values()
	if len(v) != Width*Height {
		t.Fatalf("len(Values) = %d", len(v))
	}
	if v[2*Width+1] != 0.25 {
		t.Errorf("Values()[%d] = %v, want 0.25", 2*Width+1, v[2*Width+1])
	}
}
