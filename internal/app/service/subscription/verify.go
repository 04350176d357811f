package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

// Verification messages returned to third-party services.
const (
	VerifyInvalidFormat = "Invalid API key format"
	VerifyNotFound      = "Subscription not found"
	VerifyExpired       = "Subscription expired"
	VerifyCancelled     = "Subscription cancelled"
)

// Verification answers whether an API key maps to a usable subscription.
type Verification struct {
	Valid          bool       `json:"valid"`
	SubscriptionID string     `json:"subscriptionId,omitempty"`
	PlanID         string     `json:"planId,omitempty"`
	PlanName       string     `json:"planName,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	ExpiresAtHuman string     `json:"expiresAtHuman,omitempty"`
	Network        string     `json:"network,omitempty"`
	Error          string     `json:"error,omitempty"`
}

func verifyKey(apiKey string) string {
	return "verify:" + apiKey
}

// invalidate drops the cached verification of sub.
func (s *Service) invalidate(ctx context.Context, sub *models.Subscription) {
	if sub == nil || sub.APIKey == "" {
		return
	}
	if err := s.cache.Delete(ctx, verifyKey(sub.APIKey)); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to invalidate verification cache", "subscription_id", sub.ID, "err", err)
	}
}

// lookup reads the subscription behind apiKey through the cache. The
// cached value is the subscription itself, so validity is always judged
// against the current time.
func (s *Service) lookup(ctx context.Context, apiKey string) (*models.Subscription, error) {
	log := logctx.FromCtx(ctx, s.log)
	raw, ok, err := s.cache.Get(ctx, verifyKey(apiKey))
	if err != nil {
		log.Warnw("verification cache read failed", "err", err)
	}
	if ok {
		var sub models.Subscription
		if err := json.Unmarshal(raw, &sub); err == nil {
			return &sub, nil
		}
	}

	sub, err := s.store.Subscriptions().GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(sub); err == nil {
		if err := s.cache.Set(ctx, verifyKey(apiKey), b, s.cacheTTL); err != nil {
			log.Warnw("verification cache write failed", "err", err)
		}
	}
	return sub, nil
}

// Verify checks a bearer credential. A malformed or unknown key is a
// negative answer, not an error.
func (s *Service) Verify(ctx context.Context, apiKey string) (*Verification, error) {
	out := &Verification{Network: s.network}
	if !tool.IsAPIKeyFormat(apiKey) {
		out.Error = VerifyInvalidFormat
		return out, nil
	}
	sub, err := s.lookup(ctx, apiKey)
	if errors.Is(err, store.ErrNotFound) {
		out.Error = VerifyNotFound
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify api key: %w", err)
	}

	exp := sub.ExpiresAt
	out.SubscriptionID = sub.ID
	out.PlanID = sub.PlanID
	out.PlanName = sub.PlanName
	out.ExpiresAt = &exp
	out.ExpiresAtHuman = exp.UTC().Format(time.RFC3339)
	switch {
	case sub.Status == types.SubscriptionStatusCancelled:
		out.Error = VerifyCancelled
	case !sub.Valid(s.now()):
		out.Error = VerifyExpired
	default:
		out.Valid = true
	}
	return out, nil
}
