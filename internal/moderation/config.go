package moderation

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Indicator types shipped with the default configuration.
const (
	IndicatorPhone         = "phone"
	IndicatorEmail         = "email"
	IndicatorURL           = "url"
	IndicatorMessagingApp  = "messaging_app"
	IndicatorSpecialChars  = "special_chars"
	IndicatorRepeatedChars = "repeated_chars"
	IndicatorCommercial    = "commercial"
)

// Compiled patterns shared by the default indicators and the sanitizer.
// regexp.Regexp is safe for concurrent use.
var (
	phonePattern      = regexp.MustCompile(`\b\d{10,11}\b`)
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	urlPattern        = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+)`)
	messagingPattern  = regexp.MustCompile(`(?i)\b(zalo|telegram|whatsapp|viber|skype|wechat|messenger)\b`)
	specialRunPattern = regexp.MustCompile("[!@#$%^&*()_+=\\[\\]{};':\"\\\\|,.<>/?~`-]{3,}")
	commercialPattern = regexp.MustCompile(`(?i)\b(buy|sell|price|money)\b`)
)

// repeatedRunLength is the shortest run of one rune counted as flooding.
const repeatedRunLength = 5

// defaultBannedTerms is matched as plain substrings of normalized text.
// Entries are normalized on load, so accented spellings are accepted.
var defaultBannedTerms = []string{
	"dit", "địt", "du", "đụ", "lon", "cac", "buoi", "dmm", "dcm", "vcl", "vkl", "clm",
	"fuck", "shit", "bitch", "asshole", "cunt",
}

// Indicator is one weighted spam signal evaluated against raw text.
type Indicator struct {
	Type        string
	Weight      int
	Description string

	find func(text string) []string
}

// RegexIndicator builds an indicator that counts every match of re.
func RegexIndicator(typ string, re *regexp.Regexp, weight int, description string) Indicator {
	return Indicator{
		Type:        typ,
		Weight:      weight,
		Description: description,
		find: func(text string) []string {
			return re.FindAllString(text, -1)
		},
	}
}

// FindAll returns every match of the indicator in text, in order.
func (ind Indicator) FindAll(text string) []string {
	if ind.find == nil {
		return nil
	}
	return ind.find(text)
}

// builtinIndicators are the default spam indicators keyed by type. A rules
// file may reference them by type without giving a pattern.
var builtinIndicators = map[string]Indicator{
	IndicatorPhone:        RegexIndicator(IndicatorPhone, phonePattern, 15, "phone number"),
	IndicatorEmail:        RegexIndicator(IndicatorEmail, emailPattern, 10, "email address"),
	IndicatorURL:          RegexIndicator(IndicatorURL, urlPattern, 20, "link"),
	IndicatorMessagingApp: RegexIndicator(IndicatorMessagingApp, messagingPattern, 12, "messaging app mention"),
	IndicatorSpecialChars: RegexIndicator(IndicatorSpecialChars, specialRunPattern, 8, "special character run"),
	IndicatorRepeatedChars: {
		Type:        IndicatorRepeatedChars,
		Weight:      5,
		Description: "repeated characters",
		find: func(text string) []string {
			return findRepeatedRuns(text, repeatedRunLength)
		},
	},
	IndicatorCommercial: RegexIndicator(IndicatorCommercial, commercialPattern, 7, "commercial keyword"),
}

// defaultIndicatorOrder fixes the order indicators are reported in.
var defaultIndicatorOrder = []string{
	IndicatorPhone,
	IndicatorEmail,
	IndicatorURL,
	IndicatorMessagingApp,
	IndicatorSpecialChars,
	IndicatorRepeatedChars,
	IndicatorCommercial,
}

// Config is the immutable moderation configuration: the banned-term list and
// the ordered spam indicator table. Build it once with NewConfig,
// DefaultConfig or LoadConfig and share it.
type Config struct {
	terms        []BannedTerm
	termPatterns []*regexp.Regexp
	indicators   []Indicator
}

// BannedTerm is one configured term. Term keeps the spelling it was
// configured with; Normalized is what detection matches against.
type BannedTerm struct {
	Term       string
	Normalized string
}

// NewBannedTerm trims term and pairs it with its normalized form.
func NewBannedTerm(term string) BannedTerm {
	term = strings.TrimSpace(term)
	return BannedTerm{Term: term, Normalized: strings.TrimSpace(Normalize(term))}
}

// DefaultConfig returns the built-in banned terms and spam indicators.
func DefaultConfig() *Config {
	return NewConfig(defaultBannedTerms, DefaultIndicators())
}

// DefaultIndicators returns a copy of the built-in indicator table.
func DefaultIndicators() []Indicator {
	out := make([]Indicator, 0, len(defaultIndicatorOrder))
	for _, typ := range defaultIndicatorOrder {
		out = append(out, builtinIndicators[typ])
	}
	return out
}

// NewConfig builds a Config. Terms are normalized, empty entries and
// duplicates are dropped, and the first spelling of a duplicate is kept.
// Redaction patterns cover both the configured spelling and the normalized
// form. The indicator slice is copied.
func NewConfig(terms []string, indicators []Indicator) *Config {
	cfg := &Config{
		indicators: append([]Indicator(nil), indicators...),
	}

	seen := make(map[string]struct{}, len(terms))
	patterns := make(map[string]struct{}, 2*len(terms))
	for _, t := range terms {
		term := NewBannedTerm(t)
		if term.Normalized == "" {
			continue
		}
		if _, dup := seen[term.Normalized]; dup {
			continue
		}
		seen[term.Normalized] = struct{}{}
		cfg.terms = append(cfg.terms, term)

		for _, form := range []string{strings.ToLower(term.Term), term.Normalized} {
			if _, dup := patterns[form]; dup {
				continue
			}
			patterns[form] = struct{}{}
			cfg.termPatterns = append(cfg.termPatterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(form)))
		}
	}
	return cfg
}

// BannedTerms returns a copy of the normalized banned-term list.
func (c *Config) BannedTerms() []string {
	out := make([]string, 0, len(c.terms))
	for _, t := range c.terms {
		out = append(out, t.Normalized)
	}
	return out
}

// Terms returns a copy of the banned terms with their configured spellings.
func (c *Config) Terms() []BannedTerm {
	return append([]BannedTerm(nil), c.terms...)
}

// Indicators returns a copy of the spam indicator table.
func (c *Config) Indicators() []Indicator {
	return append([]Indicator(nil), c.indicators...)
}

// rulesFile is the YAML shape accepted by LoadConfig.
type rulesFile struct {
	BannedTerms    []string        `yaml:"banned_terms"`
	SpamIndicators []indicatorSpec `yaml:"spam_indicators"`
}

type indicatorSpec struct {
	Type        string `yaml:"type"`
	Pattern     string `yaml:"pattern"`
	Weight      *int   `yaml:"weight"`
	Description string `yaml:"description"`
}

// LoadConfig reads a YAML rules file. Sections that are absent fall back to
// the defaults. An indicator without a pattern must name a built-in type;
// its weight and description may still be overridden.
func LoadConfig(r io.Reader) (*Config, error) {
	var f rulesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("moderation: decode rules: %w", err)
	}

	terms := f.BannedTerms
	if terms == nil {
		terms = defaultBannedTerms
	}

	if f.SpamIndicators == nil {
		return NewConfig(terms, DefaultIndicators()), nil
	}

	indicators := make([]Indicator, 0, len(f.SpamIndicators))
	for i, spec := range f.SpamIndicators {
		ind, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("moderation: spam indicator %d: %w", i, err)
		}
		indicators = append(indicators, ind)
	}
	return NewConfig(terms, indicators), nil
}

// LoadConfigFile reads the rules file at path. An empty path selects
// DefaultConfig.
func LoadConfigFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("moderation: open rules: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

func (s indicatorSpec) build() (Indicator, error) {
	if s.Type == "" {
		return Indicator{}, errors.New("missing type")
	}
	if s.Weight != nil && *s.Weight < 0 {
		return Indicator{}, fmt.Errorf("%s: negative weight %d", s.Type, *s.Weight)
	}

	var ind Indicator
	if s.Pattern == "" {
		builtin, ok := builtinIndicators[s.Type]
		if !ok {
			return Indicator{}, fmt.Errorf("%s: no pattern and no built-in indicator of that type", s.Type)
		}
		ind = builtin
	} else {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return Indicator{}, fmt.Errorf("%s: compile pattern: %w", s.Type, err)
		}
		if s.Weight == nil {
			return Indicator{}, fmt.Errorf("%s: weight is required for custom patterns", s.Type)
		}
		ind = RegexIndicator(s.Type, re, 0, s.Type)
	}

	if s.Weight != nil {
		ind.Weight = *s.Weight
	}
	if s.Description != "" {
		ind.Description = s.Description
	}
	return ind, nil
}
