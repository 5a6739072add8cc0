package moderation

// Reputation thresholds. A user with more than BadReputationReports reports,
// or with more than badReputationMinPosts posts of which more than
// badReputationReportRatio were reported, loses the benefit of the doubt.
const (
	BadReputationReports     = 3
	badReputationMinPosts    = 5
	badReputationReportRatio = 0.3
)

// Thread approval tiers.
const (
	trustedScoreCeiling = 20 // trusted or auto-approved: approve below this
	basicScoreCeiling   = 10 // basic users: approve below this
	regularScoreCeiling = 15 // everyone else: approve below this

	newUserPostFloor     = 5  // fewer posts than this counts as a new user
	basicUserPostCeiling = 15 // fewer posts than this counts as a basic user
)

// ReplyRejectThreshold is the combined score above which a reply is rejected.
const ReplyRejectThreshold = 50

// policyRule returns an action and true when it applies.
type policyRule func(u UserReputation, a ContentAnalysis) (Action, bool)

// commonRules run before the kind-specific lists.
var commonRules = []policyRule{
	staffBypass,
	rejectCritical,
}

// threadRules end with a rule that always applies.
var threadRules = []policyRule{
	badReputation(ActionReview),
	trustedThread,
	newUserThread,
	basicUserThread,
	regularUserThread,
}

// replyRules never produce ActionReview: replies are either published or
// rejected outright.
var replyRules = []policyRule{
	badReputation(ActionReject),
	replyProfanity,
	replyHighRisk,
	replyDefault,
}

// SuggestAction picks the moderation action for a submission. It is a pure
// function of its three inputs.
func SuggestAction(u UserReputation, a ContentAnalysis, kind ContentKind) Action {
	if action, ok := evaluate(commonRules, u, a); ok {
		return action
	}

	var rules []policyRule
	switch kind {
	case KindThread:
		rules = threadRules
	case KindReply:
		rules = replyRules
	}
	if action, ok := evaluate(rules, u, a); ok {
		return action
	}
	return ActionReview
}

func evaluate(rules []policyRule, u UserReputation, a ContentAnalysis) (Action, bool) {
	for _, rule := range rules {
		if action, ok := rule(u, a); ok {
			return action, true
		}
	}
	return "", false
}

func staffBypass(u UserReputation, _ ContentAnalysis) (Action, bool) {
	if u.Role == RoleAdmin || u.Role == RoleModerator {
		return ActionApprove, true
	}
	return "", false
}

func rejectCritical(_ UserReputation, a ContentAnalysis) (Action, bool) {
	if a.ShouldReject || a.CombinedScore > CriticalScoreThreshold {
		return ActionReject, true
	}
	return "", false
}

// HasBadReputation reports whether the user's report history overrides the
// normal tiers.
func HasBadReputation(u UserReputation) bool {
	if u.ReportsReceived > BadReputationReports {
		return true
	}
	return u.PostsCount > badReputationMinPosts &&
		float64(u.ReportsReceived) > float64(u.PostsCount)*badReputationReportRatio
}

func badReputation(action Action) policyRule {
	return func(u UserReputation, _ ContentAnalysis) (Action, bool) {
		if HasBadReputation(u) {
			return action, true
		}
		return "", false
	}
}

func approveIf(ok bool) Action {
	if ok {
		return ActionApprove
	}
	return ActionReview
}

func trustedThread(u UserReputation, a ContentAnalysis) (Action, bool) {
	if u.TrustLevel != TrustTrusted && !u.AutoApproval {
		return "", false
	}
	return approveIf(a.OverallRisk == RiskLow || a.CombinedScore < trustedScoreCeiling), true
}

// newUserThread never auto-approves.
func newUserThread(u UserReputation, _ ContentAnalysis) (Action, bool) {
	if u.TrustLevel == TrustNew || u.PostsCount < newUserPostFloor {
		return ActionReview, true
	}
	return "", false
}

func basicUserThread(u UserReputation, a ContentAnalysis) (Action, bool) {
	if u.TrustLevel != TrustBasic && (u.PostsCount < newUserPostFloor || u.PostsCount >= basicUserPostCeiling) {
		return "", false
	}
	return approveIf(a.OverallRisk == RiskLow && a.CombinedScore < basicScoreCeiling), true
}

func regularUserThread(_ UserReputation, a ContentAnalysis) (Action, bool) {
	return approveIf(a.OverallRisk == RiskLow && a.CombinedScore < regularScoreCeiling), true
}

func replyProfanity(_ UserReputation, a ContentAnalysis) (Action, bool) {
	if a.Profanity.IsViolation {
		return ActionReject, true
	}
	return "", false
}

func replyHighRisk(_ UserReputation, a ContentAnalysis) (Action, bool) {
	if a.OverallRisk == RiskHigh || a.CombinedScore > ReplyRejectThreshold {
		return ActionReject, true
	}
	return "", false
}

func replyDefault(UserReputation, ContentAnalysis) (Action, bool) {
	return ActionApprove, true
}
