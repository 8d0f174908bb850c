package script

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Store provides persistence for per-org scripted configuration.
type Store struct {
	redis  *redis.Client
	tracer trace.Tracer
}

var _ ConfigSource = (*Store)(nil)

// NewStore creates a script config store.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("script: redis client cannot be nil")
	}
	return &Store{
		redis:  redisClient,
		tracer: otel.Tracer("sitechat.internal.script"),
	}
}

func (s *Store) key(orgID string) string {
	return fmt.Sprintf("script:config:%s", orgID)
}

// Get retrieves the org's script config. A missing record means "no script"
// and returns nil without error.
func (s *Store) Get(ctx context.Context, orgID string) (*SiteScript, error) {
	ctx, span := s.tracer.Start(ctx, "script.get_config")
	defer span.End()

	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("script: get config: %w", err)
	}

	var cfg SiteScript
	if err := json.Unmarshal(data, &cfg); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("script: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Set saves the org's script config.
func (s *Store) Set(ctx context.Context, cfg *SiteScript) error {
	ctx, span := s.tracer.Start(ctx, "script.set_config")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("script: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.OrgID), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("script: set config: %w", err)
	}
	return nil
}

// Delete removes the org's script config.
func (s *Store) Delete(ctx context.Context, orgID string) error {
	ctx, span := s.tracer.Start(ctx, "script.delete_config")
	defer span.End()

	if err := s.redis.Del(ctx, s.key(orgID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("script: delete config: %w", err)
	}
	return nil
}
