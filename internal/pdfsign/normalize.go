package pdfsign

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizer folds text for accent-insensitive matching. It is stateful and must
// not be shared between goroutines.
type normalizer struct {
	strip transform.Transformer
	upper cases.Caser
}

func newNormalizer() *normalizer {
	return &normalizer{
		strip: transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		upper: cases.Upper(language.Und),
	}
}

// fold strips diacritics, maps Đ to D, drops whitespace and uppercases.
func (n *normalizer) fold(s string) string {
	stripped, _, err := transform.String(n.strip, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.Map(func(r rune) rune {
		switch {
		case r == 'Đ' || r == 'đ':
			return 'D'
		case unicode.IsSpace(r):
			return -1
		}
		return r
	}, stripped)
	return n.upper.String(stripped)
}
