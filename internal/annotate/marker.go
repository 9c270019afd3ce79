package annotate

import (
	"strings"

	"golang.org/x/net/html"
)

const (
	MarkerClass    = "metaphorCaseSpan"
	MarkerIDPrefix = "metaphorCaseId_"
	markerTag      = "span"
	markerClose    = "</span>"
)

// OpenTag returns the marker opening tag for a case.
func OpenTag(caseID string) string {
	return `<span class="` + MarkerClass + `" id="` + MarkerIDPrefix + html.EscapeString(caseID) + `">`
}

// CloseTag returns the marker closing tag.
func CloseTag() string {
	return markerClose
}

// MarkerLen is the exact number of bytes a marker for caseID adds to the output.
func MarkerLen(caseID string) int {
	return len(OpenTag(caseID)) + len(markerClose)
}

// CaseIDFromMarker resolves the (unescaped) element id of a clicked marker to
// its case id.
func CaseIDFromMarker(elementID string) (string, bool) {
	if !strings.HasPrefix(elementID, MarkerIDPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(elementID, MarkerIDPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}

// ExtractText returns the raw markup wrapped by the marker of caseID in a
// rendered string. Nested spans inside the marker are kept verbatim.
func ExtractText(rendered, caseID string) (string, bool) {
	wantID := MarkerIDPrefix + caseID
	z := html.NewTokenizer(strings.NewReader(rendered))

	inside := false
	depth := 0
	var buf strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return "", false
		}
		raw := string(z.Raw())

		if !inside {
			if tt == html.StartTagToken && isMarkerWithID(z, wantID) {
				inside = true
			}
			continue
		}

		switch tt {
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == markerTag {
				depth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == markerTag {
				if depth == 0 {
					return buf.String(), true
				}
				depth--
			}
		}
		buf.WriteString(raw)
	}
}

// MarkerIDs lists the case ids of all markers in rendered, in document order.
func MarkerIDs(rendered string) []string {
	z := html.NewTokenizer(strings.NewReader(rendered))
	ids := make([]string, 0)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return ids
		}
		if tt != html.StartTagToken {
			continue
		}
		if id, ok := markerID(z); ok {
			if caseID, ok := CaseIDFromMarker(id); ok {
				ids = append(ids, caseID)
			}
		}
	}
}

func isMarkerWithID(z *html.Tokenizer, wantID string) bool {
	id, ok := markerID(z)
	return ok && id == wantID
}

// markerID reads the id attribute of the current start tag when it is a marker.
// It consumes the tag's attributes.
func markerID(z *html.Tokenizer) (string, bool) {
	name, hasAttr := z.TagName()
	if string(name) != markerTag || !hasAttr {
		return "", false
	}
	var id string
	isMarker := false
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "id":
			id = string(val)
		case "class":
			for _, class := range strings.Fields(string(val)) {
				if class == MarkerClass {
					isMarker = true
				}
			}
		}
		if !more {
			break
		}
	}
	if !isMarker {
		return "", false
	}
	return id, true
}
