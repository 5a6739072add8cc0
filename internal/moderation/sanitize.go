package moderation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Redaction tokens written by the sanitizer.
const (
	LinkToken  = "[LINK_REMOVED]"
	PhoneToken = "[PHONE_REMOVED]"
	EmailToken = "[EMAIL_REMOVED]"
)

// Runs of special characters and repeated runes are cut down to this length.
const collapsedRunLength = 3

// sanitize redacts text for storage. The order matters on adversarial input:
// banned terms, then links, phones and emails, then special-character runs
// and finally repeated runes.
func sanitize(text string, termPatterns []*regexp.Regexp) string {
	if text == "" {
		return ""
	}

	for _, re := range termPatterns {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			return strings.Repeat("*", utf8.RuneCountInString(m))
		})
	}

	text = urlPattern.ReplaceAllString(text, LinkToken)
	text = phonePattern.ReplaceAllString(text, PhoneToken)
	text = emailPattern.ReplaceAllString(text, EmailToken)

	text = specialRunPattern.ReplaceAllStringFunc(text, func(run string) string {
		return runeSlice(run, 0, collapsedRunLength)
	})

	return collapseRepeatedRuns(text, repeatedRunLength, collapsedRunLength)
}

// collapseRepeatedRuns shortens every run of at least minRun identical runes
// to keep runes.
func collapseRepeatedRuns(text string, minRun, keep int) string {
	var b strings.Builder
	b.Grow(len(text))
	start, count := 0, 0
	prev := rune(-1)
	flush := func(end int) {
		if count >= minRun {
			b.WriteString(runeSlice(text[start:end], 0, keep))
			return
		}
		b.WriteString(text[start:end])
	}
	for i, r := range text {
		if r == prev {
			count++
			continue
		}
		flush(i)
		start, count, prev = i, 1, r
	}
	flush(len(text))
	return b.String()
}
