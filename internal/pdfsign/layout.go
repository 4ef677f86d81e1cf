package pdfsign

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// lineTolerance is the vertical distance within which glyphs share a line
const lineTolerance = 2.0

// lineBreak separates lines in page text so phrases never match across lines
const lineBreak = '\n'

type line struct {
	y      float64
	glyphs []Glyph
}

// pageText is the folded reading-order text of a page. glyphs[i] is the glyph that
// produced the i-th rune of text.
type pageText struct {
	text   []rune
	glyphs []Glyph
}

// groupLines clusters glyphs by y, top line first, each line left to right
func groupLines(glyphs []Glyph) []line {
	var lines []line
	for _, g := range glyphs {
		placed := false
		for i := range lines {
			if math.Abs(lines[i].y-g.Y) <= lineTolerance {
				lines[i].glyphs = append(lines[i].glyphs, g)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, line{y: g.Y, glyphs: []Glyph{g}})
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })
	for i := range lines {
		sort.SliceStable(lines[i].glyphs, func(a, b int) bool {
			return lines[i].glyphs[a].X < lines[i].glyphs[b].X
		})
	}
	return lines
}

func buildPageText(glyphs []Glyph, n *normalizer) pageText {
	var pt pageText
	for _, l := range groupLines(glyphs) {
		for _, g := range l.glyphs {
			for _, r := range n.fold(g.Text) {
				pt.text = append(pt.text, r)
				pt.glyphs = append(pt.glyphs, g)
			}
		}
		if len(l.glyphs) > 0 {
			pt.text = append(pt.text, lineBreak)
			pt.glyphs = append(pt.glyphs, l.glyphs[len(l.glyphs)-1])
		}
	}
	return pt
}

// find returns the glyph at the start of every non-overlapping occurrence of phrase
func (pt pageText) find(phrase string) []Glyph {
	if phrase == "" {
		return nil
	}
	text := string(pt.text)
	var found []Glyph
	offset := 0
	for {
		idx := strings.Index(text[offset:], phrase)
		if idx < 0 {
			return found
		}
		start := offset + idx
		found = append(found, pt.glyphs[utf8.RuneCountInString(text[:start])])
		offset = start + len(phrase)
	}
}
