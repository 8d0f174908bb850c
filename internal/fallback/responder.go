// Package fallback answers turns the scripted engine declines: pages with no
// script, exhausted re-ask budgets and completed sessions all land here.
package fallback

import "context"

// Apology is the canned reply when the responder itself is unavailable.
// Collaborator failures degrade to this instead of surfacing an error.
const Apology = "Sorry, I'm having trouble answering right now. Please try again in a moment."

// Responder produces a generic answer for a visitor message. Implementations
// typically retrieve indexed page content and synthesize a reply; the engine
// does not inspect how.
type Responder interface {
	Answer(ctx context.Context, orgID, pageURL, message string) (string, error)
}
