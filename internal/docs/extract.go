package docs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	// pageSize bounds how much source text counts as one logical page for
	// formats that have no page structure of their own.
	pageSize = 3000

	chunkSize    = 1000
	chunkOverlap = 200
)

// Page is one extracted unit of a document: its text plus storage keys of
// any images rendered from it.
type Page struct {
	Num       int
	Text      string
	ImageKeys []string
}

// Extractor turns an uploaded document into pages. Implementations are
// selected by file extension.
type Extractor interface {
	Extract(ctx context.Context, filename string, r io.Reader) ([]Page, error)
}

// ErrUnsupportedFormat marks uploads whose format has no extractor wired.
var ErrUnsupportedFormat = fmt.Errorf("docs: unsupported document format")

type extractorSet struct {
	byExt map[string]Extractor
}

// NewExtractor returns the default extractor set. Plain text is handled
// natively; binary formats route to whatever has been registered for them.
func NewExtractor() Extractor {
	return &extractorSet{byExt: map[string]Extractor{
		".txt": textExtractor{},
	}}
}

func (s *extractorSet) Extract(ctx context.Context, filename string, r io.Reader) ([]Page, error) {
	ext := strings.ToLower(path.Ext(filename))
	e, ok := s.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return e.Extract(ctx, filename, r)
}

// textExtractor paginates plain text on paragraph boundaries.
type textExtractor struct{}

func (textExtractor) Extract(ctx context.Context, filename string, r io.Reader) ([]Page, error) {
	br := bufio.NewReader(r)
	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}

	var pages []Page
	var buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		pages = append(pages, Page{Num: len(pages), Text: strings.TrimSpace(buf.String())})
		buf.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		if buf.Len() > 0 && buf.Len()+len(para) > pageSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	flush()
	return pages, nil
}

// SplitChunks cuts page text into overlapping chunks on whitespace
// boundaries. Overlap keeps sentences that straddle a cut retrievable from
// both sides.
func SplitChunks(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var out []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			out = append(out, strings.TrimSpace(text[start:]))
			break
		}
		// back up to the last whitespace inside the window
		cut := strings.LastIndexFunc(text[start:end], func(r rune) bool {
			return r == ' ' || r == '\n' || r == '\t'
		})
		if cut <= 0 {
			cut = chunkSize
		}
		out = append(out, strings.TrimSpace(text[start:start+cut]))
		next := start + cut - chunkOverlap
		if next <= start {
			next = start + cut
		}
		start = next
	}
	return out
}
