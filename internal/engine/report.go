package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Reporter accumulates observed qualification dimensions per session for
// lead scoring. Recording is best-effort; failures never affect the turn.
type Reporter interface {
	Record(ctx context.Context, orgID, sessionID string, signals []Signal) error
}

// ReportStore keeps per-session qualification coverage in Redis sets.
type ReportStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

var _ Reporter = (*ReportStore)(nil)

// NewReportStore creates a report store. ttl bounds how long coverage data
// outlives the conversation; zero means no expiry.
func NewReportStore(redisClient *redis.Client, ttl time.Duration) *ReportStore {
	if redisClient == nil {
		panic("engine: redis client cannot be nil")
	}
	return &ReportStore{
		redis:  redisClient,
		ttl:    ttl,
		tracer: otel.Tracer("sitechat.internal.engine"),
	}
}

func (s *ReportStore) key(orgID, sessionID string) string {
	return fmt.Sprintf("qual:report:%s:%s", orgID, sessionID)
}

// Record merges the signals' dimensions into the session's coverage set.
func (s *ReportStore) Record(ctx context.Context, orgID, sessionID string, signals []Signal) error {
	if len(signals) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "engine.record_qualification")
	defer span.End()

	members := make([]interface{}, 0, len(signals))
	for _, sig := range signals {
		members = append(members, string(sig.Dimension))
	}

	key := s.key(orgID, sessionID)
	if err := s.redis.SAdd(ctx, key, members...).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("engine: record qualification: %w", err)
	}
	if s.ttl > 0 {
		if err := s.redis.Expire(ctx, key, s.ttl).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("engine: expire qualification report: %w", err)
		}
	}
	return nil
}

// Observed returns the dimensions seen so far, in canonical order.
func (s *ReportStore) Observed(ctx context.Context, orgID, sessionID string) ([]Dimension, error) {
	ctx, span := s.tracer.Start(ctx, "engine.observed_qualification")
	defer span.End()

	members, err := s.redis.SMembers(ctx, s.key(orgID, sessionID)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("engine: read qualification report: %w", err)
	}

	present := make(map[Dimension]bool, len(members))
	for _, m := range members {
		present[Dimension(m)] = true
	}

	var observed []Dimension
	for _, dim := range AllDimensions {
		if present[dim] {
			observed = append(observed, dim)
		}
	}
	return observed, nil
}

// Missing returns the dimensions not yet observed for the session, the
// input to "what do we still need to ask" lead scoring.
func (s *ReportStore) Missing(ctx context.Context, orgID, sessionID string) ([]Dimension, error) {
	observed, err := s.Observed(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}

	present := make(map[Dimension]bool, len(observed))
	for _, dim := range observed {
		present[dim] = true
	}

	var missing []Dimension
	for _, dim := range AllDimensions {
		if !present[dim] {
			missing = append(missing, dim)
		}
	}
	return missing, nil
}
