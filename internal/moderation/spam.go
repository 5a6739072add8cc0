package moderation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Spam score thresholds. A score above SpamReviewThreshold is spam and goes to
// review; above SpamRejectThreshold it is rejected.
const (
	SpamReviewThreshold = 30
	SpamRejectThreshold = 50
)

// Structural heuristics applied on top of the indicator table.
const (
	minContentLength    = 10
	shortContentPenalty = 15

	capsRatioThreshold = 0.7
	capsMinLength      = 10
	capsPenalty        = 20

	repeatedWordMinLength = 3 // words must be longer than this
	repeatedWordMaxCount  = 3 // and occur more often than this
	repeatedWordPenalty   = 10

	maxSpamExamples = 3
)

// Indicator texts and detail types produced by the heuristics.
const (
	IndicatorTooShort        = "too short"
	IndicatorExcessiveCaps   = "excessive caps"
	IndicatorRepeatedKeyword = "repeated keyword"

	detailTooShort        = "too_short"
	detailExcessiveCaps   = "excessive_caps"
	detailRepeatedKeyword = "repeated_keyword"
)

// DetectSpam scores raw text against the indicator table and the length,
// caps and repetition heuristics.
func DetectSpam(text string, indicators []Indicator) SpamResult {
	res := SpamResult{
		Indicators:      []string{},
		AnalysisDetails: []SpamDetail{},
	}

	for _, ind := range indicators {
		matches := ind.FindAll(text)
		if len(matches) == 0 {
			continue
		}
		score := len(matches) * ind.Weight
		res.RiskScore += score
		res.Indicators = append(res.Indicators, ind.Description)
		res.AnalysisDetails = append(res.AnalysisDetails, SpamDetail{
			Type:       ind.Type,
			MatchCount: len(matches),
			Score:      score,
			Examples:   firstN(matches, maxSpamExamples),
		})
	}

	length := utf8.RuneCountInString(text)

	if length < minContentLength {
		res.addHeuristic(detailTooShort, IndicatorTooShort, shortContentPenalty, nil)
	}

	if length > capsMinLength {
		upper := 0
		for _, r := range text {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if float64(upper)/float64(length) > capsRatioThreshold {
			res.addHeuristic(detailExcessiveCaps, IndicatorExcessiveCaps, capsPenalty, nil)
		}
	}

	for _, word := range repeatedWords(text) {
		res.addHeuristic(detailRepeatedKeyword, IndicatorRepeatedKeyword, repeatedWordPenalty, []string{word})
	}

	res.IsSpam = res.RiskScore > SpamReviewThreshold
	switch {
	case res.RiskScore > SpamRejectThreshold:
		res.SpamLevel = RiskHigh
		res.Recommendation = ActionReject
	case res.RiskScore > SpamReviewThreshold:
		res.SpamLevel = RiskMedium
		res.Recommendation = ActionReview
	default:
		res.SpamLevel = RiskLow
		res.Recommendation = ActionApprove
	}
	return res
}

func (r *SpamResult) addHeuristic(typ, indicator string, score int, examples []string) {
	r.RiskScore += score
	r.Indicators = append(r.Indicators, indicator)
	r.AnalysisDetails = append(r.AnalysisDetails, SpamDetail{
		Type:       typ,
		MatchCount: 1,
		Score:      score,
		Examples:   examples,
	})
}

// repeatedWords returns the lower-cased words longer than
// repeatedWordMinLength runes that occur more than repeatedWordMaxCount
// times, in order of first occurrence.
func repeatedWords(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	counts := make(map[string]int, len(words))
	var order []string
	for _, w := range words {
		if utf8.RuneCountInString(w) <= repeatedWordMinLength {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	var out []string
	for _, w := range order {
		if counts[w] > repeatedWordMaxCount {
			out = append(out, w)
		}
	}
	return out
}

// findRepeatedRuns returns every maximal run of at least minRun identical
// runes. RE2 has no backreferences, so this is a linear scan.
func findRepeatedRuns(text string, minRun int) []string {
	var runs []string
	start, count := 0, 0
	prev := rune(-1)
	for i, r := range text {
		if r == prev {
			count++
			continue
		}
		if count >= minRun {
			runs = append(runs, text[start:i])
		}
		start, count, prev = i, 1, r
	}
	if count >= minRun {
		runs = append(runs, text[start:])
	}
	return runs
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return append([]string(nil), s...)
	}
	return append([]string(nil), s[:n]...)
}
