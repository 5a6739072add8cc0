package moderation

import (
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detectDefault(text string) SpamResult {
	return DetectSpam(text, DefaultIndicators())
}

func detail(t *testing.T, res SpamResult, typ string) SpamDetail {
	t.Helper()
	for _, d := range res.AnalysisDetails {
		if d.Type == typ {
			return d
		}
	}
	t.Fatalf("no %q detail in %+v", typ, res.AnalysisDetails)
	return SpamDetail{}
}

func TestDetectSpam_Indicators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		score int
		types []string
	}{
		{"clean", "Loved the cinematography, especially the night scenes in the city.", 0, nil},
		{"two phones", "Call 0912345678 or 0987654321 today", 30, []string{IndicatorPhone}},
		{"two emails", "write to a@b.co, c@d.io", 20, []string{IndicatorEmail}},
		{"messaging apps", "zalo me or Telegram me", 24, []string{IndicatorMessagingApp}},
		{"phone and email", "Contact me at 0912345678 or email seller@example.com", 25, []string{IndicatorPhone, IndicatorEmail}},
		{"link with special run", "Visit https://spam.example.com now for the best price", 35,
			[]string{IndicatorURL, IndicatorSpecialChars, IndicatorCommercial}},
		{"flooding", "WOW!!!!!! AMAZING!!!", 21, []string{IndicatorSpecialChars, IndicatorRepeatedChars}},
		{"twelve digits is not a phone", "012345678901", 0, nil},
		{"phone between punctuation", "phone:0912345678.", 15, []string{IndicatorPhone}},
		{"everything at once", "Add me on zalo 0912345678, best price for tickets, money back!!!", 49,
			[]string{IndicatorPhone, IndicatorMessagingApp, IndicatorSpecialChars, IndicatorCommercial}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := detectDefault(tt.input)
			assert.Equal(t, tt.score, res.RiskScore)

			var types []string
			for _, d := range res.AnalysisDetails {
				types = append(types, d.Type)
			}
			assert.Equal(t, tt.types, types)
			assert.Len(t, res.Indicators, len(tt.types))
		})
	}
}

func TestDetectSpam_DetailCountsAndExamples(t *testing.T) {
	res := detectDefault("0912345678 0987654321 0123456789 0909123456")
	d := detail(t, res, IndicatorPhone)
	assert.Equal(t, 4, d.MatchCount)
	assert.Equal(t, 60, d.Score)
	assert.Equal(t, []string{"0912345678", "0987654321", "0123456789"}, d.Examples)
	assert.Equal(t, []string{"phone number"}, res.Indicators)
}

func TestDetectSpam_Levels(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		score  int
		level  RiskLevel
		spam   bool
		action Action
	}{
		{"low", "Call 0912345678 or 0987654321 today", 30, RiskLow, false, ActionApprove},
		{"medium", "0912345678 0987654321 0123456789", 45, RiskMedium, true, ActionReview},
		{"high", "0912345678 0987654321 0123456789 0909123456", 60, RiskHigh, true, ActionReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := detectDefault(tt.input)
			assert.Equal(t, tt.score, res.RiskScore)
			assert.Equal(t, tt.level, res.SpamLevel)
			assert.Equal(t, tt.spam, res.IsSpam)
			assert.Equal(t, tt.action, res.Recommendation)
		})
	}
}

func TestDetectSpam_ShortContent(t *testing.T) {
	for _, in := range []string{"", "hi", "123456789"} {
		res := detectDefault(in)
		assert.Equal(t, 15, res.RiskScore, "input %q", in)
		assert.Equal(t, []string{IndicatorTooShort}, res.Indicators)
		assert.False(t, res.IsSpam)
	}

	res := detectDefault("0123456789")
	assert.NotContains(t, res.Indicators, IndicatorTooShort, "ten runes is long enough")
}

func TestDetectSpam_ShortContentCountsRunes(t *testing.T) {
	// Nine runes but fifteen bytes.
	res := detectDefault("đẹp quá ạ")
	assert.Contains(t, res.Indicators, IndicatorTooShort)

	res = detectDefault("phim hay quá")
	assert.NotContains(t, res.Indicators, IndicatorTooShort)
}

func TestDetectSpam_ExcessiveCaps(t *testing.T) {
	res := detectDefault("THIS MOVIE IS AMAZING")
	assert.Equal(t, 20, res.RiskScore)
	assert.Equal(t, []string{IndicatorExcessiveCaps}, res.Indicators)

	// Ten runes is not long enough for the caps rule.
	res = detectDefault("ABCDEFGHIJ")
	assert.NotContains(t, res.Indicators, IndicatorExcessiveCaps)

	res = detectDefault("Mostly lower case With Caps")
	assert.NotContains(t, res.Indicators, IndicatorExcessiveCaps)
}

func TestDetectSpam_CapsRatioOverAllRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		caps  bool
	}{
		{"vietnamese capitals count", "PHIM HAY QUÁ ĐI", true},
		// Every letter is upper case, but ten of twenty-two runes is under the ratio.
		{"digits and spaces dilute", "WOW 100 PERCENT 2024!!", false},
		{"all caps", "THIS MOVIE IS AMAZING", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := detectDefault(tt.input)
			assert.Equal(t, tt.caps, slices.Contains(res.Indicators, IndicatorExcessiveCaps))
		})
	}
}

func TestDetectSpam_RepeatedKeyword(t *testing.T) {
	res := detectDefault("great great great great movie here")
	assert.Equal(t, 10, res.RiskScore)
	d := detail(t, res, detailRepeatedKeyword)
	assert.Equal(t, []string{"great"}, d.Examples)

	// Three occurrences is not enough, and short words never count.
	res = detectDefault("great great great movie and and and and")
	assert.Zero(t, res.RiskScore)

	res = detectDefault("Movie movie MOVIE movie night, film film film film night")
	var words []string
	for _, d := range res.AnalysisDetails {
		if d.Type == detailRepeatedKeyword {
			words = append(words, d.Examples...)
		}
	}
	assert.Equal(t, []string{"movie", "film"}, words)
}

func TestDetectSpam_CommercialWordsAreNotRepeatedKeywords(t *testing.T) {
	res := detectDefault("buy buy buy buy buy buy")
	assert.Equal(t, 42, res.RiskScore)
	assert.Equal(t, RiskMedium, res.SpamLevel)
	assert.Equal(t, []string{"commercial keyword"}, res.Indicators)
}

func TestDetectSpam_CustomIndicators(t *testing.T) {
	none := DetectSpam("0912345678 https://x.io", nil)
	assert.Zero(t, none.RiskScore)
	assert.Empty(t, none.AnalysisDetails)

	ind := []Indicator{RegexIndicator("coupon", regexp.MustCompile(`(?i)coupon`), 40, "coupon code")}
	res := DetectSpam("Coupon here, coupon there", ind)
	assert.Equal(t, 80, res.RiskScore)
	assert.Equal(t, RiskHigh, res.SpamLevel)
}

func TestDetectSpam_Monotonic(t *testing.T) {
	text := "Nice film overall"
	prev := detectDefault(text).RiskScore
	for i := 0; i < 6; i++ {
		text += " call 0912345678"
		next := detectDefault(text).RiskScore
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestFindRepeatedRuns(t *testing.T) {
	assert.Equal(t, []string{"ooooooo"}, findRepeatedRuns("g"+strings.Repeat("o", 7)+"d", 5))
	assert.Nil(t, findRepeatedRuns("goood", 5))
	assert.Equal(t, []string{"aaaaa", "!!!!!"}, findRepeatedRuns("aaaaa b !!!!!", 5))
	assert.Equal(t, []string{"ááááá"}, findRepeatedRuns("xááááá", 5))
	assert.Equal(t, []string{strings.Repeat("z", 7)}, findRepeatedRuns(strings.Repeat("z", 7), 5))
}

func TestFirstN(t *testing.T) {
	src := []string{"a", "b", "c", "d"}
	got := firstN(src, 3)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	got[0] = "x"
	assert.Equal(t, "a", src[0])
	require.Equal(t, []string{"a"}, firstN(src[:1], 3))
}
