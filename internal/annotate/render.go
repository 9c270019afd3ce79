package annotate

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Skipped describes a case the renderer refused to splice.
type Skipped struct {
	ID     string `json:"id"`
	Range  Range  `json:"char_range"`
	Reason string `json:"reason"`
}

// Rendered is the output of RenderReport.
type Rendered struct {
	HTML    string    `json:"html"`
	Skipped []Skipped `json:"skipped"`
}

// Render wraps every mark of the given location in a marker. The marks must be
// the complete case list of the field. Headings are plain text and come out
// HTML-escaped; a body with no marks is returned unchanged.
func Render(canonical string, location Location, marks []Mark) string {
	return RenderReport(canonical, location, marks).HTML
}

// RenderReport is Render plus the list of malformed marks that were left out:
// degenerate or out of range marks, marks overlapping an earlier one, and body
// marks whose boundaries fall inside an HTML tag.
func RenderReport(canonical string, location Location, marks []Mark) Rendered {
	selected := make([]Mark, 0, len(marks))
	for _, mark := range marks {
		if mark.Location == location {
			selected = append(selected, mark)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Range.Start() < selected[j].Range.Start()
	})

	result := Rendered{HTML: canonical, Skipped: make([]Skipped, 0)}
	if location == LocationHeading {
		result.HTML = html.EscapeString(canonical)
	}
	if len(selected) == 0 {
		return result
	}

	length := Length(canonical)
	var b strings.Builder
	b.Grow(len(canonical) + len(selected)*MarkerLen(""))
	emit := func(segment string) {
		if location == LocationHeading {
			segment = html.EscapeString(segment)
		}
		b.WriteString(segment)
	}

	cursor := 0
	previousEnd := 0
	for _, mark := range selected {
		if !mark.Range.Within(length) {
			result.Skipped = append(result.Skipped, Skipped{ID: mark.ID, Range: mark.Range, Reason: "range outside text"})
			continue
		}
		if mark.Range.Start() < previousEnd {
			result.Skipped = append(result.Skipped, Skipped{ID: mark.ID, Range: mark.Range, Reason: "overlaps previous case"})
			continue
		}

		start, _ := byteOffset(canonical, mark.Range.Start())
		end, _ := byteOffset(canonical, mark.Range.End())
		if location == LocationBody && (insideTag(canonical, start) || insideTag(canonical, end)) {
			result.Skipped = append(result.Skipped, Skipped{ID: mark.ID, Range: mark.Range, Reason: "boundary inside markup"})
			continue
		}

		// Segments are cut from canonical, so offsets never shift as markers
		// are added.
		emit(canonical[cursor:start])
		b.WriteString(OpenTag(mark.ID))
		emit(canonical[start:end])
		b.WriteString(markerClose)

		cursor = end
		previousEnd = mark.Range.End()
	}
	emit(canonical[cursor:])

	result.HTML = b.String()
	return result
}

// insideTag reports whether byte position pos falls between a '<' and its '>'.
func insideTag(text string, pos int) bool {
	open := strings.LastIndexByte(text[:pos], '<')
	if open < 0 {
		return false
	}
	return !strings.Contains(text[open:pos], ">")
}
