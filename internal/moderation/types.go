package moderation

// ContentKind selects the policy branch applied to a submission.
type ContentKind string

const (
	KindThread ContentKind = "thread" // top-level post
	KindReply  ContentKind = "reply"  // response inside a thread
)

// Valid reports whether k is one of the known content kinds.
func (k ContentKind) Valid() bool {
	return k == KindThread || k == KindReply
}

// Action is the final moderation verdict attached to a submission.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReview  Action = "review"
	ActionReject  Action = "reject"
)

// RiskLevel is shared by profanity severity and the aggregated overall risk.
// Spam levels only use low, medium and high.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels so they can be compared: low < medium < high < critical.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// Confidence expresses how strongly the combined score backs a recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Role is the forum role of the submitting user.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// TrustLevel is the reputation class of the submitting user.
type TrustLevel string

const (
	TrustNew       TrustLevel = "new"
	TrustBasic     TrustLevel = "basic"
	TrustTrusted   TrustLevel = "trusted"
	TrustModerator TrustLevel = "moderator"
)

// UserReputation is the snapshot of a user's standing loaded by the caller
// before asking for a decision. Counts are expected to be non-negative.
type UserReputation struct {
	UserID          string     `json:"user_id,omitempty"`
	Role            Role       `json:"role"`
	TrustLevel      TrustLevel `json:"trust_level"`
	AutoApproval    bool       `json:"auto_approval"`
	PostsCount      int        `json:"posts_count"`
	ReportsReceived int        `json:"reports_received"`
	LikesReceived   int        `json:"likes_received"`
}

// TermPosition locates the first occurrence of a banned term.
// Offset counts runes in the normalized text; Excerpt is the original text
// at the same rune offset, used for highlighting.
type TermPosition struct {
	Term    string `json:"term"`
	Offset  int    `json:"offset"`
	Excerpt string `json:"excerpt"`
}

// ProfanityResult is the output of the profanity scanner.
type ProfanityResult struct {
	IsViolation        bool           `json:"is_violation"`
	ViolatedTerms      []string       `json:"violated_terms"`
	ViolationPositions []TermPosition `json:"violation_positions"`
	Severity           RiskLevel      `json:"severity"`
	RiskScore          int            `json:"risk_score"`
	TotalViolations    int            `json:"total_violations"`
}

// SpamDetail records what one indicator or heuristic contributed.
type SpamDetail struct {
	Type       string   `json:"type"`
	MatchCount int      `json:"match_count"`
	Score      int      `json:"score"`
	Examples   []string `json:"examples,omitempty"`
}

// SpamResult is the output of the spam pattern detector.
type SpamResult struct {
	IsSpam          bool         `json:"is_spam"`
	SpamLevel       RiskLevel    `json:"spam_level"`
	Indicators      []string     `json:"indicators"`
	RiskScore       int          `json:"risk_score"`
	AnalysisDetails []SpamDetail `json:"analysis_details"`
	Recommendation  Action       `json:"recommendation"`
}

// Recommendation is the aggregator's advice, independent of who posted.
type Recommendation struct {
	Action           Action     `json:"action"`
	Reason           string     `json:"reason"`
	Confidence       Confidence `json:"confidence"`
	SuggestedActions []string   `json:"suggested_actions"`
}

// ContentAnalysis combines both detectors into one risk verdict.
type ContentAnalysis struct {
	Kind            ContentKind     `json:"kind"`
	ContentLength   int             `json:"content_length"`
	Profanity       ProfanityResult `json:"profanity"`
	Spam            SpamResult      `json:"spam"`
	OverallRisk     RiskLevel       `json:"overall_risk"`
	CombinedScore   int             `json:"combined_score"`
	ShouldReject    bool            `json:"should_reject"`
	ShouldFlag      bool            `json:"should_flag"`
	Recommendations Recommendation  `json:"recommendations"`
}

// Input is one submission handed to Analyze. Missing text is the empty string.
type Input struct {
	Kind  ContentKind
	Title string
	Body  string
}

// Text joins title and body the way they are analyzed.
func (in Input) Text() string {
	switch {
	case in.Title == "":
		return in.Body
	case in.Body == "":
		return in.Title
	default:
		return in.Title + " " + in.Body
	}
}
