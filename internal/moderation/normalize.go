package moderation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// combiningDiacritics is the Combining Diacritical Marks block, U+0300–U+036F.
// Stripping it after NFD turns "địt mẹ" into "đit me".
var combiningDiacritics = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

// punctuationReplacer maps each punctuation character to a single space.
var punctuationReplacer = strings.NewReplacer(
	".", " ", ",", " ", "/", " ", "#", " ", "!", " ", "$", " ", "%", " ",
	"^", " ", "&", " ", "*", " ", ";", " ", ":", " ", "{", " ", "}", " ",
	"=", " ", "-", " ", "_", " ", "`", " ", "~", " ", "(", " ", ")", " ",
)

// Normalize folds text into the form banned terms are matched against:
// lower case, diacritics stripped, punctuation replaced by spaces and
// whitespace runs collapsed to one space. It never fails.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	lower := strings.ToLower(s)

	// transform.Chain keeps state, so build a fresh chain per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(combiningDiacritics)))
	stripped, _, err := transform.String(t, lower)
	if err != nil {
		stripped = lower
	}

	return collapseWhitespace(punctuationReplacer.Replace(stripped))
}

// collapseWhitespace replaces every run of Unicode whitespace with one ASCII
// space. Leading and trailing runs are kept as a single space.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
