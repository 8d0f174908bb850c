package handoff

import "context"

// Writer persists booking requests.
type Writer interface {
	Create(ctx context.Context, rec *Record) (*Record, error)
}
