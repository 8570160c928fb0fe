package metadata

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Emoji and other pictographs, plus the joiners, variation selectors and tags used to compose them.
var pictographs = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00ae, Stride: 5},
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x21aa, Stride: 1},
		{Lo: 0x2300, Hi: 0x23ff, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2b00, Hi: 0x2bff, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3299, Stride: 2},
		{Lo: 0xfe00, Hi: 0xfe0f, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
		{Lo: 0xe0020, Hi: 0xe007f, Stride: 1},
	},
	LatinOffset: 1,
}

const illegalFilenameChars = `<>:"/\|?*`

func isIllegal(r rune) bool {
	return unicode.IsControl(r) || strings.ContainsRune(illegalFilenameChars, r)
}

// Chains carry buffers, so a fresh one is needed per use.
func newSanitizer() transform.Transformer {
	return transform.Chain(runes.Remove(runes.In(pictographs)), runes.Remove(runes.Predicate(isIllegal)))
}

// Sanitize makes a title usable as a filename: characters that are illegal in filenames, control characters and
// emoji are stripped, as are leading/trailing spaces and trailing dots.
func Sanitize(title string) string {
	result, _, err := transform.String(newSanitizer(), title)
	if err != nil {
		// Only possible for invalid transformer chains
		result = title
	}
	return strings.TrimRight(strings.TrimSpace(result), ". ")
}
