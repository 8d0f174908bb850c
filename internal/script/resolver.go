package script

import (
	"context"
	"net/url"
	"strings"
)

// ConfigSource loads the per-org scripted configuration. Nil result means
// the org has no scripts at all.
type ConfigSource interface {
	Get(ctx context.Context, orgID string) (*SiteScript, error)
}

// Resolver maps (org, page URL) to the scripted section for that page.
type Resolver struct {
	source ConfigSource
}

// NewResolver creates a resolver over the given config source.
func NewResolver(source ConfigSource) *Resolver {
	if source == nil {
		panic("script: config source cannot be nil")
	}
	return &Resolver{source: source}
}

// Resolve returns the section for the page, or nil when no script applies.
// Exact path matches win, then the longest wildcard-prefix match, then a
// catch-all "*" section. Sections without lead questions are treated as
// "no script" per the config contract.
func (r *Resolver) Resolve(ctx context.Context, orgID, pageURL string) (*Section, error) {
	cfg, err := r.source.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if cfg == nil || len(cfg.Sections) == 0 {
		return nil, nil
	}

	path := normalizePath(pageURL)

	var exact, catchAll *Section
	var bestWildcard *Section
	bestWildcardLen := -1

	for i := range cfg.Sections {
		section := &cfg.Sections[i]
		pattern := strings.TrimSpace(section.URLPattern)
		switch {
		case pattern == "*":
			if catchAll == nil {
				catchAll = section
			}
		case strings.HasSuffix(pattern, "/*"):
			prefix := normalizePath(strings.TrimSuffix(pattern, "/*"))
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				if len(prefix) > bestWildcardLen {
					bestWildcard = section
					bestWildcardLen = len(prefix)
				}
			}
		default:
			if normalizePath(pattern) == path && exact == nil {
				exact = section
			}
		}
	}

	match := exact
	if match == nil {
		match = bestWildcard
	}
	if match == nil {
		match = catchAll
	}
	if !match.HasScript() {
		return nil, nil
	}
	return match, nil
}

// normalizePath reduces a page URL or pattern to a comparable path: lowercase
// host stripped, query/fragment dropped, trailing slash trimmed.
func normalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/"
	}
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		raw = parsed.Path
	} else if parsed != nil && parsed.Host != "" && parsed.Path == "" {
		raw = "/"
	}
	raw = strings.ToLower(raw)
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	if len(raw) > 1 {
		raw = strings.TrimRight(raw, "/")
	}
	return raw
}
