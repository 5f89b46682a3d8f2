package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"gorm.io/gorm"
)

// Resolver answers access questions from stored subscription rows and
// the credit balance. Results are computed against the clock on every
// call and never cached: either signal can change between requests.
type Resolver struct {
	subs    repository.SubscriptionRepository
	credits repository.CreditRepository
}

// NewResolver creates an entitlements resolver.
func NewResolver(subs repository.SubscriptionRepository, credits repository.CreditRepository) *Resolver {
	return &Resolver{subs: subs, credits: credits}
}

// NewResolverFromDB creates a resolver from a GORM DB handle.
func NewResolverFromDB(db *gorm.DB) *Resolver {
	return NewResolver(repository.NewSubscriptionRepository(db), repository.NewCreditRepository(db))
}

// CheckSubscriptionStatus returns the current active subscription, or
// nil when none is active. A row whose end date has passed does not
// count even if its stored status still reads active.
func (r *Resolver) CheckSubscriptionStatus(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := r.subs.FindCurrentActive(userID, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// IsLifetimeMember reports whether any row matches the lifetime sentinel.
func (r *Resolver) IsLifetimeMember(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	return r.subs.HasLifetime(userID)
}

// Access is the per-request access decision.
type Access struct {
	HasSubscription bool   `json:"has_subscription"`
	IsLifetime      bool   `json:"is_lifetime"`
	Balance         int64  `json:"balance"`
	CanAccess       bool   `json:"can_access"`
	PlanID          string `json:"plan_id,omitempty"`
}

// CanAccess recomputes the access decision: an active subscription OR a
// positive credit balance grants access.
func (r *Resolver) CanAccess(ctx context.Context, userID uint) (*Access, error) {
	sub, err := r.CheckSubscriptionStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	lifetime, err := r.IsLifetimeMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance, err := r.credits.GetOrCreateBalance(userID)
	if err != nil {
		return nil, err
	}

	access := &Access{
		HasSubscription: sub != nil || lifetime,
		IsLifetime:      lifetime,
		Balance:         balance.Balance,
	}
	if sub != nil {
		access.PlanID = sub.PlanID
	} else if lifetime {
		access.PlanID = models.LifetimePlanID
	}
	access.CanAccess = access.HasSubscription || access.Balance > 0
	return access, nil
}
