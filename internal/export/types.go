// Package export renders annotated articles to HTML, PDF and DOCX.
package export

import (
	"errors"
	"html/template"
	"strings"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat defaults to HTML when value is empty.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Document is an article with its metaphor markers already rendered into
// Heading and Body.
type Document struct {
	ArticleID       string
	Heading         template.HTML
	Body            template.HTML
	EditionName     string
	Lang            string
	URL             string
	PublicationDate time.Time
	Tone            string
	Comment         string
	FullyAnnotated  bool
	Cases           []Case
}

// Case is one metaphor case listed below the article.
type Case struct {
	ID       string
	Location string
	Text     string
	Model    string
	Comment  string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates no Chrome/Chromium binary is installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates pandoc is not installed.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
