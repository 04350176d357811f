package models

import (
	"time"

	"github.com/fatflowers/casperflow/pkg/types"
)

// PaymentConsent is a bounded spending authorization from a subscriber to a
// merchant for one plan.
type PaymentConsent struct {
	ID           string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Subscriber   string              `gorm:"column:subscriber;type:varchar(128);not null;index:idx_consent_scope,priority:1" json:"subscriber"`
	Merchant     string              `gorm:"column:merchant;type:varchar(128);not null;index:idx_consent_scope,priority:2" json:"merchant"`
	PlanID       string              `gorm:"column:plan_id;type:uuid;not null;index:idx_consent_scope,priority:3" json:"plan_id"`
	MaxPerPeriod int64               `gorm:"column:max_per_period;type:bigint;not null" json:"max_per_period"`
	TotalMax     int64               `gorm:"column:total_max;type:bigint;not null" json:"total_max"`
	Remaining    int64               `gorm:"column:remaining;type:bigint;not null" json:"remaining"`
	Status       types.ConsentStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	ExpiresAt    *time.Time          `gorm:"column:expires_at;default:null" json:"expires_at"`
	RevokedAt    *time.Time          `gorm:"column:revoked_at;default:null" json:"revoked_at"`
	CreatedAt    time.Time           `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"column:updated_at" json:"updated_at"`
}

func (PaymentConsent) TableName() string {
	return "payment_consent"
}

func (c *PaymentConsent) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Covers reports whether a charge of amount would be accepted at now.
func (c *PaymentConsent) Covers(amount int64, now time.Time) bool {
	return c != nil &&
		c.Status == types.ConsentStatusActive &&
		!c.Expired(now) &&
		amount <= c.MaxPerPeriod &&
		amount <= c.Remaining
}

func (c *PaymentConsent) Clone() *PaymentConsent {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
