// Package service implements the admission check: one fixed window per
// policy-scoped fingerprint, with a higher ceiling for authenticated
// callers when the policy defines one.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"edgegate/internal/admission/models"
	"edgegate/internal/fingerprint"
	"edgegate/internal/platform/config"
)

// WindowStore is the counter backend. The in-memory store is the default;
// the Redis store shares windows across instances.
type WindowStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
	Reset(ctx context.Context, key string) error
}

type Service struct {
	store  WindowStore
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(store WindowStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("window store is required")
	}
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check records one request for the fingerprint under the given policy and
// returns the decision. Distinct policies use independent windows, so
// exhausting one budget never affects another.
func (s *Service) Check(ctx context.Context, fp string, policy config.Policy, authenticated bool) (*models.Result, error) {
	limit := policy.Max
	if authenticated && policy.AuthenticatedMax > limit {
		limit = policy.AuthenticatedMax
	}
	key := fingerprint.Scoped(policy.Name, fp)
	return s.store.Hit(ctx, key, limit, policy.Window)
}

// Reset clears the window for a fingerprint under one policy (operator use).
func (s *Service) Reset(ctx context.Context, fp string, policy config.Policy) error {
	return s.store.Reset(ctx, fingerprint.Scoped(policy.Name, fp))
}
