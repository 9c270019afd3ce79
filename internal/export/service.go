package export

import (
	"context"
	"fmt"
	"time"
)

// Service turns annotated articles into downloadable files.
type Service struct {
	pandocPath string
	timeout    time.Duration
}

func NewService(pandocPath string, timeout time.Duration) *Service {
	if pandocPath == "" {
		pandocPath = "pandoc"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{pandocPath: pandocPath, timeout: timeout}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	html, err := RenderHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	name := sanitizeFilename(stripTags(doc.Heading))

	switch format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: name + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return exportPDF(ctx, html, name)
	case FormatDOCX:
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return exportDOCX(ctx, s.pandocPath, html, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
