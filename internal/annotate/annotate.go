// Package annotate maps text selections made in rendered article fields back
// to character ranges of the canonical field text, and renders canonical text
// with every metaphor case wrapped in an inline marker.
//
// All offsets are counted in Unicode code points of the NFC-normalised
// canonical text. Locator and Renderer share the same conversion helpers so the
// two directions of the mapping always agree.
package annotate

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type Location string

const (
	LocationHeading Location = "heading"
	LocationBody    Location = "body"
)

func ParseLocation(value string) (Location, bool) {
	switch Location(strings.ToLower(strings.TrimSpace(value))) {
	case LocationHeading:
		return LocationHeading, true
	case LocationBody:
		return LocationBody, true
	default:
		return "", false
	}
}

// Range is the half-open interval [Start, End) into canonical text. It
// serialises as a two element JSON array.
type Range [2]int

func (r Range) Start() int { return r[0] }
func (r Range) End() int   { return r[1] }
func (r Range) Len() int   { return r[1] - r[0] }

// Valid reports whether the range is non-degenerate and non-negative.
func (r Range) Valid() bool {
	return r[0] >= 0 && r[1] > r[0]
}

func (r Range) Overlaps(other Range) bool {
	return r[0] < other[1] && other[0] < r[1]
}

// Within reports whether the range fits inside text of the given length.
func (r Range) Within(length int) bool {
	return r.Valid() && r[1] <= length
}

// Mark is the renderer's view of a persisted metaphor case.
type Mark struct {
	ID       string
	Location Location
	Range    Range
}

// PendingSelection is a located, not yet confirmed annotation candidate.
type PendingSelection struct {
	Location Location `json:"location"`
	Range    Range    `json:"char_range"`
	Text     string   `json:"text"`
}

// Canonicalize returns the NFC form used for every stored heading and body.
func Canonicalize(text string) string {
	return norm.NFC.String(text)
}

// Length returns the number of code points in text.
func Length(text string) int {
	return utf8.RuneCountInString(text)
}

// Collision returns the first mark at the same location whose range overlaps r.
func Collision(r Range, location Location, marks []Mark) (Mark, bool) {
	for _, mark := range marks {
		if mark.Location != location {
			continue
		}
		if mark.Range.Overlaps(r) {
			return mark, true
		}
	}
	return Mark{}, false
}

func runeOffset(text string, byteIndex int) int {
	return utf8.RuneCountInString(text[:byteIndex])
}

// byteOffset converts a code point index into a byte index of text.
func byteOffset(text string, runeIndex int) (int, bool) {
	if runeIndex < 0 {
		return 0, false
	}
	count := 0
	for i := range text {
		if count == runeIndex {
			return i, true
		}
		count++
	}
	if count == runeIndex {
		return len(text), true
	}
	return 0, false
}

// Slice returns the canonical substring covered by r.
func Slice(text string, r Range) (string, bool) {
	if !r.Valid() {
		return "", false
	}
	start, ok := byteOffset(text, r.Start())
	if !ok {
		return "", false
	}
	end, ok := byteOffset(text, r.End())
	if !ok {
		return "", false
	}
	return text[start:end], true
}
