// Package script holds per-org scripted conversation configuration and
// resolves the section that applies to the page a visitor is viewing.
package script

import (
	"errors"
	"fmt"
	"strings"
)

// TagHighRisk marks an answer option whose selection should set the session
// escalation flag and offer sales handoff early.
const TagHighRisk = "high_risk"

// Option is one selectable answer for a scripted question.
type Option struct {
	// Label is the button text shown to the visitor.
	Label string `json:"label"`
	// Keywords are extra phrases that count as a match for this option
	// beyond the label itself.
	Keywords []string `json:"keywords,omitempty"`
	// Tags mark escalation-worthy answers (see TagHighRisk).
	Tags []string `json:"tags,omitempty"`
}

// HighRisk reports whether choosing this option should escalate the session.
func (o Option) HighRisk() bool {
	for _, tag := range o.Tags {
		if strings.EqualFold(tag, TagHighRisk) {
			return true
		}
	}
	return false
}

// Matches reports whether the visitor's free-text reply selects this option.
// Matching is case-insensitive substring in either direction against the
// label, keywords and tags, so "I'm looking for a Team plan" matches "Team".
func (o Option) Matches(reply string) bool {
	reply = strings.ToLower(strings.TrimSpace(reply))
	if reply == "" {
		return false
	}
	candidates := make([]string, 0, 1+len(o.Keywords)+len(o.Tags))
	candidates = append(candidates, o.Label)
	candidates = append(candidates, o.Keywords...)
	candidates = append(candidates, o.Tags...)
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if strings.Contains(reply, c) || strings.Contains(c, reply) {
			return true
		}
	}
	return false
}

// Question is a scripted question with its answer options.
type Question struct {
	// ID is the answer slot name, e.g. "lead_plan". Defaults to a
	// positional slot when empty.
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
	// Rephrase is the re-ask variant used when the visitor's reply matched
	// no option. Empty means re-ask Text verbatim.
	Rephrase string   `json:"rephrase,omitempty"`
	Options  []Option `json:"options,omitempty"`
	// Workflow labels the transition this question drives, e.g.
	// "sales_question" or "loop_closure". Informational for admins; the
	// engine derives transitions from section structure.
	Workflow string `json:"workflow,omitempty"`
}

// Labels returns the option button labels in order.
func (q Question) Labels() []string {
	labels := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		labels = append(labels, opt.Label)
	}
	return labels
}

// Match returns the first option selected by the reply.
func (q Question) Match(reply string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.Matches(reply) {
			return opt, true
		}
	}
	return Option{}, false
}

// Diagnostic is the free-text diagnostic script for a page: an answer, a
// follow-up question, a feature-mapping answer and loop-closure text.
type Diagnostic struct {
	Answer               string `json:"answer,omitempty"`
	FollowUpQuestion     string `json:"follow_up_question,omitempty"`
	FeatureMappingAnswer string `json:"feature_mapping_answer,omitempty"`
	LoopClosure          string `json:"loop_closure,omitempty"`
}

// Section is the scripted flow for one URL pattern.
type Section struct {
	// URLPattern matches the page path: exact ("/pricing"), wildcard
	// prefix ("/docs/*") or catch-all ("*").
	URLPattern     string     `json:"url_pattern"`
	LeadQuestions  []Question `json:"lead_questions,omitempty"`
	SalesQuestions []Question `json:"sales_questions,omitempty"`
	Diagnostic     Diagnostic `json:"diagnostic,omitempty"`
	// AllowReentry lets a completed session restart the script on a later
	// turn. Re-entry policy is page-scoped, not global.
	AllowReentry bool `json:"allow_reentry,omitempty"`
}

// HasScript reports whether this section drives a scripted flow. A section
// with zero lead questions is equivalent to "no script for this page".
func (s *Section) HasScript() bool {
	return s != nil && len(s.LeadQuestions) > 0
}

// SiteScript is the full scripted configuration for one org.
type SiteScript struct {
	OrgID    string    `json:"org_id"`
	Sections []Section `json:"sections,omitempty"`
}

// Validate rejects configs the resolver cannot serve.
func (s *SiteScript) Validate() error {
	if s == nil {
		return errors.New("script: config required")
	}
	if strings.TrimSpace(s.OrgID) == "" {
		return errors.New("script: org id required")
	}
	for i, section := range s.Sections {
		if strings.TrimSpace(section.URLPattern) == "" {
			return fmt.Errorf("script: section %d: url pattern required", i)
		}
		for j, q := range section.LeadQuestions {
			if strings.TrimSpace(q.Text) == "" {
				return fmt.Errorf("script: section %d: lead question %d: text required", i, j)
			}
		}
		for j, q := range section.SalesQuestions {
			if strings.TrimSpace(q.Text) == "" {
				return fmt.Errorf("script: section %d: sales question %d: text required", i, j)
			}
		}
	}
	return nil
}
