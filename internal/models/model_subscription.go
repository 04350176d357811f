package models

import (
	"time"

	"github.com/fatflowers/casperflow/pkg/types"
)

// Subscription binds one subscriber to one plan. Pricing is a snapshot of
// the plan taken at subscribe time, so later plan edits never reach it.
type Subscription struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	PlanID string `gorm:"column:plan_id;type:uuid;not null;index:idx_subscription_active_pair,unique,where:status = 'active',priority:1;index:idx_subscription_plan" json:"plan_id"`
	// Snapshot of the plan at subscribe time.
	PlanName      string              `gorm:"column:plan_name;type:varchar(128);not null" json:"plan_name"`
	Price         int64               `gorm:"column:price;type:bigint;not null" json:"price"`
	UsagePrice    int64               `gorm:"column:usage_price;type:bigint;not null;default:0" json:"usage_price"`
	Period        types.BillingPeriod `gorm:"column:period;type:varchar(16);not null" json:"period"`
	PeriodSeconds int64               `gorm:"column:period_seconds;type:bigint;not null;default:0" json:"period_seconds"`

	Merchant   string `gorm:"column:merchant;type:varchar(128);not null;index" json:"merchant"`
	Subscriber string `gorm:"column:subscriber;type:varchar(128);not null;index:idx_subscription_active_pair,unique,where:status = 'active',priority:2;index" json:"subscriber"`

	// IsTrial is true while the base price is waived. StartedAsTrial never
	// changes and enforces one trial per plan and subscriber.
	IsTrial        bool `gorm:"column:is_trial;not null;default:false" json:"is_trial"`
	StartedAsTrial bool `gorm:"column:started_as_trial;not null;default:false" json:"started_as_trial"`

	SubscribedAt time.Time `gorm:"column:subscribed_at;not null" json:"subscribed_at"`
	// PeriodStart..ExpiresAt is the open billing period.
	PeriodStart time.Time                `gorm:"column:period_start;not null" json:"period_start"`
	ExpiresAt   time.Time                `gorm:"column:expires_at;not null;index" json:"expires_at"`
	CancelledAt *time.Time               `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`
	AutoRenew   bool                     `gorm:"column:auto_renew;not null;default:false" json:"auto_renew"`
	Status      types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	APIKey      string                   `gorm:"column:api_key;type:varchar(64);not null;uniqueIndex" json:"api_key"`
	CreatedAt   time.Time                `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time                `gorm:"column:updated_at" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == types.SubscriptionStatusActive
}

// Valid reports whether the credential should be honoured at now.
func (s *Subscription) Valid(now time.Time) bool {
	return s.IsActive() && now.Before(s.ExpiresAt)
}

func (s *Subscription) PeriodDuration() (time.Duration, error) {
	return s.Period.Duration(s.PeriodSeconds)
}

// PeriodBase is the base amount billed for the open period.
func (s *Subscription) PeriodBase() int64 {
	if s.IsTrial {
		return 0
	}
	return s.Price
}

// Clone returns a shallow copy safe to mutate.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	cp := *s
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}
