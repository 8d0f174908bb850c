package engine

import (
	"regexp"
	"strings"
)

// BookingType classifies what kind of meeting the visitor wants.
type BookingType string

const (
	BookingDemo         BookingType = "demo"
	BookingCall         BookingType = "call"
	BookingSupport      BookingType = "support"
	BookingConsultation BookingType = "consultation"
)

// DefaultIntentThreshold gates whether the caller shows a scheduling UI.
const DefaultIntentThreshold = 50

const (
	strongIntentConfidence   = 85
	moderateIntentConfidence = 60
	historyIntentBoost       = 10
)

// BookingIntentResult is the booking-intent classification for one message.
type BookingIntentResult struct {
	HasIntent   bool        `json:"hasIntent"`
	Confidence  int         `json:"confidence"` // 0-100
	BookingType BookingType `json:"bookingType,omitempty"`
	Reasoning   string      `json:"reasoning,omitempty"`
}

// ShowScheduler reports whether the confidence clears the given threshold.
func (r BookingIntentResult) ShowScheduler(threshold int) bool {
	return r.HasIntent && r.Confidence >= threshold
}

// strongIntentPatterns are explicit scheduling requests.
var strongIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:schedule|book|set\s?up|arrange)\b.{0,40}\b(?:demo|call|meeting|appointment|consultation|chat|time)\b`),
	regexp.MustCompile(`(?i)\b(?:can|could) (?:we|i|you) (?:schedule|book|set\s?up|hop on)\b`),
	regexp.MustCompile(`(?i)\bbook (?:a|some) time\b`),
	regexp.MustCompile(`(?i)\b(?:i(?:'d| would) (?:like|love) to|let'?s) (?:see|get|have|schedule|book) (?:a|the)?\s?demo\b`),
	regexp.MustCompile(`(?i)\bput (?:something|time) on (?:the|your|my) calendar\b`),
}

// moderateIntentPatterns are general interest or help requests.
var moderateIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:interested in|want) (?:a |the )?(?:demo|trial|walkthrough)\b`),
	regexp.MustCompile(`(?i)\btalk (?:to|with) (?:sales|someone|a (?:human|person)|an expert)\b`),
	regexp.MustCompile(`(?i)\bspeak (?:to|with) (?:sales|someone|a (?:human|person))\b`),
	regexp.MustCompile(`(?i)\bget in touch\b`),
	regexp.MustCompile(`(?i)\b(?:can|could) someone (?:call|contact|reach) me\b`),
	regexp.MustCompile(`(?i)\bsee it in action\b`),
}

var bookingTypeKeywords = []struct {
	re          *regexp.Regexp
	bookingType BookingType
}{
	{regexp.MustCompile(`(?i)\bdemo(?:nstration)?\b|\bwalkthrough\b|\bsee it in action\b`), BookingDemo},
	{regexp.MustCompile(`(?i)\bconsult(?:ation|ing)?\b|\badvice\b|\bassessment\b`), BookingConsultation},
	{regexp.MustCompile(`(?i)\bsupport\b|\bnot working\b|\bbroken\b|\bbug\b|\bissue\b|\berror\b`), BookingSupport},
}

var schedulingHistoryRE = regexp.MustCompile(`(?i)\b(?:schedule|book|calendar|demo|meeting|call)\b`)

// DetectBookingIntent classifies scheduling intent in free text. Recent
// conversation history (most recent last) nudges moderate matches upward when
// scheduling was already on the table. No match yields confidence 0.
func DetectBookingIntent(message string, history []string) BookingIntentResult {
	message = strings.TrimSpace(message)
	if message == "" {
		return BookingIntentResult{Reasoning: "empty message"}
	}

	for _, pat := range strongIntentPatterns {
		if pat.MatchString(message) {
			return BookingIntentResult{
				HasIntent:   true,
				Confidence:  strongIntentConfidence,
				BookingType: deriveBookingType(message),
				Reasoning:   "explicit scheduling phrase: " + pat.String(),
			}
		}
	}

	for _, pat := range moderateIntentPatterns {
		if pat.MatchString(message) {
			confidence := moderateIntentConfidence
			if historyMentionsScheduling(history) {
				confidence += historyIntentBoost
			}
			return BookingIntentResult{
				HasIntent:   true,
				Confidence:  confidence,
				BookingType: deriveBookingType(message),
				Reasoning:   "interest phrase: " + pat.String(),
			}
		}
	}

	return BookingIntentResult{Reasoning: "no scheduling cues"}
}

// deriveBookingType picks the booking type from keyword co-occurrence,
// defaulting to a plain call.
func deriveBookingType(message string) BookingType {
	for _, kw := range bookingTypeKeywords {
		if kw.re.MatchString(message) {
			return kw.bookingType
		}
	}
	return BookingCall
}

func historyMentionsScheduling(history []string) bool {
	// Only the tail of the conversation is relevant.
	start := 0
	if len(history) > 4 {
		start = len(history) - 4
	}
	for _, msg := range history[start:] {
		if schedulingHistoryRE.MatchString(msg) {
			return true
		}
	}
	return false
}
