package annotate

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Selection is what the client captured from the rendered field: the selected
// range as an HTML fragment and as plain text, plus whether the live DOM range
// touched any existing marker node.
type Selection struct {
	Location         Location `json:"location"`
	HTML             string   `json:"html"`
	Text             string   `json:"text"`
	IntersectsMarker bool     `json:"intersectsMarker"`
}

type Reason string

const (
	ReasonEmpty              Reason = "EMPTY_SELECTION"
	ReasonOverlapsAnnotation Reason = "SELECTION_OVERLAPS_ANNOTATION"
	ReasonStructural         Reason = "STRUCTURAL_SELECTION"
	ReasonNotFound           Reason = "SELECTION_NOT_FOUND"
	ReasonAmbiguous          Reason = "AMBIGUOUS_SELECTION"
)

var reasonMessages = map[Reason]string{
	ReasonEmpty:              "selection is empty",
	ReasonOverlapsAnnotation: "selection touches an existing metaphor case",
	ReasonStructural:         "selection spans a paragraph or line boundary",
	ReasonNotFound:           "selection could not be located in the article text",
	ReasonAmbiguous:          "selected text occurs more than once",
}

// Rejection explains why a selection cannot become a metaphor case.
type Rejection struct {
	Reason Reason
}

func (r *Rejection) Error() string {
	if r == nil {
		return ""
	}
	return "selection rejected: " + reasonMessages[r.Reason]
}

// Notice is the message shown to the user, if any. Only ambiguous selections
// produce one; the other rejections silently clear the pending selection.
func (r *Rejection) Notice() string {
	if r == nil || r.Reason != ReasonAmbiguous {
		return ""
	}
	return "The selected text appears more than once in this field. Narrow the selection so it is unique."
}

// AsRejection unwraps a locator rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

func reject(reason Reason) error {
	return &Rejection{Reason: reason}
}

// DefaultBlockTags are the structural tags a selection may not contain.
var DefaultBlockTags = []string{"div", "p", "br"}

// Locator turns selections into pending selections against canonical text.
type Locator struct {
	blockTags map[string]struct{}
}

func NewLocator(blockTags ...string) *Locator {
	if len(blockTags) == 0 {
		blockTags = DefaultBlockTags
	}
	tags := make(map[string]struct{}, len(blockTags))
	for _, tag := range blockTags {
		tags[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}
	return &Locator{blockTags: tags}
}

// Locate finds the selection inside the canonical field text. The selection
// must match exactly once; its range is expressed in code points of canonical.
func (l *Locator) Locate(canonical string, sel Selection) (PendingSelection, error) {
	text := Canonicalize(sel.Text)
	if strings.TrimSpace(text) == "" {
		return PendingSelection{}, reject(ReasonEmpty)
	}

	fragment := cleanFragment(Canonicalize(sel.HTML))
	if sel.IntersectsMarker || containsMarker(fragment) {
		return PendingSelection{}, reject(ReasonOverlapsAnnotation)
	}
	if l.hasBlockTag(fragment) {
		return PendingSelection{}, reject(ReasonStructural)
	}

	// Headings carry no markup, so the plain text is what the canonical
	// heading contains. Bodies are matched by their markup.
	target := text
	if sel.Location == LocationBody && fragment != "" {
		target = fragment
	}

	matches := findOccurrences(canonical, target, 2, func(start, end int) bool {
		if sel.Location != LocationBody {
			return true
		}
		return !insideTag(canonical, start) && !insideTag(canonical, end)
	})
	if len(matches) == 0 {
		return PendingSelection{}, reject(ReasonNotFound)
	}
	if len(matches) > 1 {
		return PendingSelection{}, reject(ReasonAmbiguous)
	}
	index := matches[0]

	start := runeOffset(canonical, index)
	return PendingSelection{
		Location: sel.Location,
		Range:    Range{start, start + Length(target)},
		Text:     text,
	}, nil
}

// countOccurrences counts non-overlapping occurrences of sub in s, stopping at limit.
func countOccurrences(s, sub string, limit int) int {
	return len(findOccurrences(s, sub, limit, nil))
}

// findOccurrences returns the byte offsets of up to limit non-overlapping
// occurrences of sub in s. Occurrences rejected by keep are not counted; a nil
// keep accepts all of them.
func findOccurrences(s, sub string, limit int, keep func(start, end int) bool) []int {
	found := make([]int, 0, limit)
	from := 0
	for len(found) < limit && from <= len(s) {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			break
		}
		start := from + i
		if keep == nil || keep(start, start+len(sub)) {
			found = append(found, start)
			from = start + len(sub)
			continue
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + max(size, 1)
	}
	return found
}

// cleanFragment strips the wrapping <div> a browser adds when the cloned range
// started at the editor's container.
func cleanFragment(fragment string) string {
	trimmed := strings.TrimSpace(fragment)
	if strings.HasPrefix(trimmed, "<div>") && strings.HasSuffix(trimmed, "</div>") {
		return trimmed[len("<div>") : len(trimmed)-len("</div>")]
	}
	return fragment
}

func (l *Locator) hasBlockTag(fragment string) bool {
	if !strings.Contains(fragment, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if _, ok := l.blockTags[string(name)]; ok {
				return true
			}
		}
	}
}

func containsMarker(fragment string) bool {
	if !strings.Contains(fragment, MarkerClass) {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			if _, ok := markerID(z); ok {
				return true
			}
		}
	}
}
