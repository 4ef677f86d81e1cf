package pdfsign

import (
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidPDF wraps every failure to read the document
var ErrInvalidPDF = errors.New("invalid pdf")

// Glyph is a piece of rendered text and the position of its baseline origin.
// Y grows upward, as in PDF user space.
type Glyph struct {
	X    float64
	Y    float64
	Text string
}

// ExtractGlyphs reads every page of the document and returns its glyphs keyed by
// zero-based page index.
func ExtractGlyphs(r io.ReaderAt, size int64) (pages map[int][]Glyph, err error) {
	// the pdf package panics on some malformed content streams
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, rec)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	pages = make(map[int][]Glyph, doc.NumPage())
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		texts := page.Content().Text
		glyphs := make([]Glyph, 0, len(texts))
		for _, t := range texts {
			glyphs = append(glyphs, Glyph{X: t.X, Y: t.Y, Text: t.S})
		}
		pages[i-1] = glyphs
	}
	return pages, nil
}
