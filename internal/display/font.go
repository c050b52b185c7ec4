package display

// GlyphWidth and GlyphHeight size the 3x5 font; glyphs are drawn with one
// blank column between them.
const (
	GlyphWidth   = 3
	GlyphHeight  = 5
	GlyphSpacing = 1
)

// font3x5 holds the glyphs the weather display needs, one string per row.
var font3x5 = map[rune][GlyphHeight]string{
	'0': {"###", "#.#", "#.#", "#.#", "###"},
	'1': {".#.", "##.", ".#.", ".#.", "###"},
	'2': {"###", "..#", "###", "#..", "###"},
	'3': {"###", "..#", ".##", "..#", "###"},
	'4': {"#.#", "#.#", "###", "..#", "..#"},
	'5': {"###", "#..", "###", "..#", "###"},
	'6': {"###", "#..", "###", "#.#", "###"},
	'7': {"###", "..#", ".#.", ".#.", ".#."},
	'8': {"###", "#.#", "###", "#.#", "###"},
	'9': {"###", "#.#", "###", "..#", "###"},
	'-': {"...", "...", "###", "...", "..."},
	'F': {"###", "#..", "##.", "#..", "#.."},
	'C': {"###", "#..", "#..", "#..", "###"},
	' ': {"...", "...", "...", "...", "..."},
}

// StringWidth returns the pixel width of s in the 3x5 font, without trailing spacing.
func StringWidth(s string) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return n*(GlyphWidth+GlyphSpacing) - GlyphSpacing
}
