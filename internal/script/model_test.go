package script

import "testing"

func TestOptionMatches(t *testing.T) {
	opt := Option{
		Label:    "Team",
		Keywords: []string{"team plan", "for my team"},
		Tags:     []string{"high_risk"},
	}

	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{"exact label", "Team", true},
		{"label inside sentence", "I'm looking for a Team plan", true},
		{"case insensitive", "TEAM", true},
		{"keyword", "something for my team please", true},
		{"tag text", "this is high_risk", true},
		{"partial reply inside label", "tea", true},
		{"no match", "just browsing", false},
		{"empty reply", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := opt.Matches(tt.reply); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.reply, got, tt.want)
			}
		})
	}
}

func TestOptionHighRisk(t *testing.T) {
	if !(Option{Tags: []string{"High_Risk"}}).HighRisk() {
		t.Error("expected case-insensitive high risk tag to escalate")
	}
	if (Option{Tags: []string{"enterprise"}}).HighRisk() {
		t.Error("unexpected escalation for non high-risk tag")
	}
}

func TestQuestionMatchFirstWins(t *testing.T) {
	q := Question{
		Text: "What plan are you interested in?",
		Options: []Option{
			{Label: "Individual"},
			{Label: "Team"},
		},
	}

	opt, ok := q.Match("individual or team, individual mostly")
	if !ok || opt.Label != "Individual" {
		t.Fatalf("expected first declared option to win, got %+v ok=%v", opt, ok)
	}
	if _, ok := q.Match("no idea"); ok {
		t.Fatal("expected no match")
	}
}

func TestSectionHasScript(t *testing.T) {
	var nilSection *Section
	if nilSection.HasScript() {
		t.Error("nil section should have no script")
	}
	if (&Section{URLPattern: "/pricing"}).HasScript() {
		t.Error("section without lead questions should have no script")
	}
	withLead := &Section{URLPattern: "/pricing", LeadQuestions: []Question{{Text: "Hi?"}}}
	if !withLead.HasScript() {
		t.Error("section with lead questions should have a script")
	}
}

func TestSiteScriptValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SiteScript
		wantErr bool
	}{
		{"valid", SiteScript{OrgID: "org-1", Sections: []Section{{URLPattern: "/pricing", LeadQuestions: []Question{{Text: "Hi?"}}}}}, false},
		{"missing org", SiteScript{Sections: []Section{{URLPattern: "/"}}}, true},
		{"missing pattern", SiteScript{OrgID: "org-1", Sections: []Section{{}}}, true},
		{"blank question text", SiteScript{OrgID: "org-1", Sections: []Section{{URLPattern: "/", LeadQuestions: []Question{{Text: " "}}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
