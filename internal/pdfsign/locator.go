// Package pdfsign finds where a visible signature should be stamped on a contract PDF.
//
// The locator looks for the party A representative label and the "sign and print name"
// label, both matched without regard to accents or case, and places a fixed-size box
// below the chosen label. All scan state lives in a single call, so a document can be
// processed concurrently with others.
package pdfsign

import (
	"io"
)

// Anchor phrases as printed on the contract signature block
const (
	PartyAPhrase    = "ĐẠI DIỆN BÊN A"
	SignLabelPhrase = "KÝ VÀ GHI RÕ HỌ TÊN"
)

// Signature box geometry relative to the anchor glyph origin
const (
	boxOffsetY = 50.0
	boxWidth   = 200.0
	boxHeight  = 30.0
)

// SignatureCoordinates is the rectangle a signature image is drawn into
type SignatureCoordinates struct {
	PageIndex int     `json:"page_index"` // zero-based
	LLX       float64 `json:"llx"`
	LLY       float64 `json:"lly"`
	URX       float64 `json:"urx"`
	URY       float64 `json:"ury"`
}

type anchor struct {
	page  int
	glyph Glyph
}

// Locate reads the PDF and returns the signature rectangle, or nil when the party A
// label does not appear anywhere in the document.
func Locate(r io.ReaderAt, size int64) (*SignatureCoordinates, error) {
	pages, err := ExtractGlyphs(r, size)
	if err != nil {
		return nil, err
	}
	return LocateInPages(pages), nil
}

// LocateInPages runs the anchor search over already extracted glyphs
func LocateInPages(pages map[int][]Glyph) *SignatureCoordinates {
	n := newNormalizer()
	partyAKey := n.fold(PartyAPhrase)
	signKey := n.fold(SignLabelPhrase)

	var partyA, signs []anchor
	for page, glyphs := range pages {
		pt := buildPageText(glyphs, n)
		for _, g := range pt.find(partyAKey) {
			partyA = append(partyA, anchor{page: page, glyph: g})
		}
		for _, g := range pt.find(signKey) {
			signs = append(signs, anchor{page: page, glyph: g})
		}
	}

	rep, ok := lastPartyA(partyA)
	if !ok {
		return nil
	}
	if sign, ok := selectSignLabel(rep, signs); ok {
		return boxBelow(sign)
	}
	return boxBelow(rep)
}

// lastPartyA picks the match on the highest page; on that page the last match in reading
// order wins.
func lastPartyA(matches []anchor) (anchor, bool) {
	if len(matches) == 0 {
		return anchor{}, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		switch {
		case m.page > best.page:
			best = m
		case m.page == best.page && m.glyph.Y < best.glyph.Y:
			best = m
		case m.page == best.page && m.glyph.Y == best.glyph.Y && m.glyph.X > best.glyph.X:
			best = m
		}
	}
	return best, true
}

// selectSignLabel prefers the nearest label below the representative on the same page,
// then the topmost label on the following page.
func selectSignLabel(rep anchor, signs []anchor) (anchor, bool) {
	var (
		best  anchor
		found bool
	)
	for _, s := range signs {
		if s.page != rep.page || s.glyph.Y >= rep.glyph.Y {
			continue
		}
		if !found || rep.glyph.Y-s.glyph.Y < rep.glyph.Y-best.glyph.Y {
			best, found = s, true
		}
	}
	if found {
		return best, true
	}

	for _, s := range signs {
		if s.page != rep.page+1 {
			continue
		}
		if !found || s.glyph.Y > best.glyph.Y {
			best, found = s, true
		}
	}
	return best, found
}

func boxBelow(a anchor) *SignatureCoordinates {
	lly := a.glyph.Y - boxOffsetY
	return &SignatureCoordinates{
		PageIndex: a.page,
		LLX:       a.glyph.X,
		LLY:       lly,
		URX:       a.glyph.X + boxWidth,
		URY:       lly + boxHeight,
	}
}
