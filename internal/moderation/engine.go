package moderation

import (
	"time"
	"unicode/utf8"
)

// Engine runs the moderation pipeline against one immutable Config.
// It is safe for concurrent use.
type Engine struct {
	cfg *Config
}

// NewEngine returns an Engine for cfg. A nil cfg selects DefaultConfig.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Analyze normalizes the submission, runs both detectors and aggregates
// their output. Identical input always yields an identical result.
func (e *Engine) Analyze(in Input) ContentAnalysis {
	text := in.Text()

	profanity := ScanProfanity(Normalize(text), text, e.cfg.terms)
	spam := DetectSpam(text, e.cfg.indicators)

	a := Aggregate(profanity, spam)
	a.Kind = in.Kind
	a.ContentLength = utf8.RuneCountInString(text)
	return a
}

// SuggestAction picks approve, review or reject for the analysis given the
// author's reputation and the content kind.
func (e *Engine) SuggestAction(u UserReputation, a ContentAnalysis, kind ContentKind) Action {
	return SuggestAction(u, a, kind)
}

// Sanitize redacts banned terms, contact details and character floods.
func (e *Engine) Sanitize(text string) string {
	return sanitize(text, e.cfg.termPatterns)
}

// BuildReport formats the analysis as an audit record stamped with at.
func (e *Engine) BuildReport(a ContentAnalysis, at time.Time) Report {
	return BuildReport(a, at)
}
