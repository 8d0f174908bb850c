// Package engine implements the guided conversation engine: the scripted
// workflow state machine, the qualification and booking-intent classifiers,
// and the per-turn orchestrator that ties them to the session store and the
// external collaborators.
package engine

import (
	"regexp"
	"strings"
)

// Dimension is one sales-qualification dimension (BANT plus segment).
type Dimension string

const (
	DimBudget    Dimension = "budget"
	DimAuthority Dimension = "authority"
	DimNeed      Dimension = "need"
	DimTimeline  Dimension = "timeline"
	DimSegment   Dimension = "segment"
)

// AllDimensions lists every qualification dimension, used by the
// missing-dimensions report.
var AllDimensions = []Dimension{DimBudget, DimAuthority, DimNeed, DimTimeline, DimSegment}

// Signal is one qualification signal inferred from a visitor message.
type Signal struct {
	Dimension Dimension `json:"dimension"`
	// Subtag refines the dimension, e.g. segment -> individual/smb/enterprise.
	Subtag string `json:"subtag,omitempty"`
	// Matched is the rule text that fired, kept for auditability.
	Matched string `json:"matched,omitempty"`
}

// qualificationRule pairs a compiled pattern with the signal it emits. Rules
// are kept in one ordered table so each can be unit-tested independently and
// coverage can be audited.
type qualificationRule struct {
	re        *regexp.Regexp
	dimension Dimension
	subtag    string
}

// Budget and timeline rules are deliberately conservative: they require an
// explicit currency/numeric or date-like cue so casual text doesn't produce
// false positives. Need and segment rules are broad keyword checks; a false
// positive there only softens the readiness score.
var qualificationRules = []qualificationRule{
	// budget
	{regexp.MustCompile(`(?i)[$€£]\s?\d[\d,.]*`), DimBudget, ""},
	{regexp.MustCompile(`(?i)\b\d[\d,.]*\s?(?:usd|eur|gbp|dollars?|bucks)\b`), DimBudget, ""},
	{regexp.MustCompile(`(?i)\bbudget(?:\s+(?:of|is|around|about))?\s+[$€£]?\d`), DimBudget, ""},
	{regexp.MustCompile(`(?i)\b\d[\d,.]*\s?k?\s*(?:/|per\s+)(?:month|mo|year|yr|annum|seat|user)\b`), DimBudget, ""},
	{regexp.MustCompile(`(?i)\bfree (?:plan|tier)\b`), DimBudget, "free"},

	// authority
	{regexp.MustCompile(`(?i)\bdecision[\s-]?makers?\b`), DimAuthority, ""},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) the (?:owner|founder|ceo|cto|cfo|coo|director|head)\b`), DimAuthority, ""},
	{regexp.MustCompile(`(?i)\b(?:ceo|cto|cfo|coo|vp|vice president|founder|co-founder|head of)\b`), DimAuthority, ""},
	{regexp.MustCompile(`(?i)\bi (?:decide|approve|sign off|hold the budget)\b`), DimAuthority, ""},
	{regexp.MustCompile(`(?i)\bneed (?:to (?:ask|check with)|approval from)\b`), DimAuthority, "not_decision_maker"},

	// need
	{regexp.MustCompile(`(?i)\b(?:we|i) need\b`), DimNeed, ""},
	{regexp.MustCompile(`(?i)\blooking for\b`), DimNeed, ""},
	{regexp.MustCompile(`(?i)\bstruggling (?:with|to)\b`), DimNeed, ""},
	{regexp.MustCompile(`(?i)\b(?:problem|pain point|bottleneck|headache)s?\b`), DimNeed, ""},
	{regexp.MustCompile(`(?i)\b(?:require|must[\s-]have|essential)\b`), DimNeed, ""},
	{regexp.MustCompile(`(?i)\bsolution for\b`), DimNeed, ""},

	// timeline
	{regexp.MustCompile(`(?i)\bby (?:next |this |the end of (?:the |this )?)?(?:week|month|quarter|year|monday|tuesday|wednesday|thursday|friday)\b`), DimTimeline, ""},
	{regexp.MustCompile(`(?i)\b(?:next|this) (?:week|month|quarter|year)\b`), DimTimeline, ""},
	{regexp.MustCompile(`(?i)\bwithin \d+\s?(?:days?|weeks?|months?)\b`), DimTimeline, ""},
	{regexp.MustCompile(`(?i)\b(?:asap|immediately|right away|urgent(?:ly)?)\b`), DimTimeline, "urgent"},
	{regexp.MustCompile(`(?i)\b(?:by|in) (?:january|february|march|april|may|june|july|august|september|october|november|december|q[1-4])\b`), DimTimeline, ""},
	{regexp.MustCompile(`(?i)\bno (?:rush|hurry|timeline)\b`), DimTimeline, "no_rush"},

	// segment
	{regexp.MustCompile(`(?i)\benterprise\b`), DimSegment, "enterprise"},
	{regexp.MustCompile(`(?i)\b\d{3,}\+?\s?(?:employees|people|staff|seats)\b`), DimSegment, "enterprise"},
	{regexp.MustCompile(`(?i)\blarge (?:company|corporation|org(?:anization)?)\b`), DimSegment, "enterprise"},
	{regexp.MustCompile(`(?i)\b(?:small business|smb|startup|start-up)\b`), DimSegment, "smb"},
	{regexp.MustCompile(`(?i)\b\d{1,2}\s?[-–]\s?\d{1,3}\s?(?:employees|people|seats)\b`), DimSegment, "smb"},
	{regexp.MustCompile(`(?i)\bteam of \d+\b`), DimSegment, "smb"},
	{regexp.MustCompile(`(?i)\b(?:just me|solo|freelancer?|personal use|individual plan)\b`), DimSegment, "individual"},
}

// ClassifyQualification maps free text to zero or more qualification
// signals. Each dimension is evaluated independently; the first rule to fire
// per dimension wins, so a message emits at most one signal per dimension
// but may cover several dimensions at once.
func ClassifyQualification(message string) []Signal {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}

	var signals []Signal
	seen := make(map[Dimension]struct{}, len(AllDimensions))
	for _, rule := range qualificationRules {
		if _, done := seen[rule.dimension]; done {
			continue
		}
		if rule.re.MatchString(message) {
			seen[rule.dimension] = struct{}{}
			signals = append(signals, Signal{
				Dimension: rule.dimension,
				Subtag:    rule.subtag,
				Matched:   rule.re.String(),
			})
		}
	}
	return signals
}
