package models

import (
	"time"

	"github.com/fatflowers/casperflow/pkg/types"
)

// Plan is a merchant-owned subscription tier. Plans are never deleted;
// deactivation keeps existing subscriptions alive.
type Plan struct {
	ID          string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Merchant    string              `gorm:"column:merchant;type:varchar(128);not null;index" json:"merchant"`
	Name        string              `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Description string              `gorm:"column:description;type:text" json:"description"`
	BasePrice   int64               `gorm:"column:base_price;type:bigint;not null" json:"base_price"`
	Period      types.BillingPeriod `gorm:"column:period;type:varchar(16);not null" json:"period"`
	// PeriodSeconds is only read when Period is custom.
	PeriodSeconds int64 `gorm:"column:period_seconds;type:bigint;not null;default:0" json:"period_seconds"`
	// UsagePrice is charged per metered unit; zero for flat-rate plans.
	UsagePrice      int64     `gorm:"column:usage_price;type:bigint;not null;default:0" json:"usage_price"`
	Active          bool      `gorm:"column:active;not null;default:true" json:"active"`
	TrialDays       int       `gorm:"column:trial_days;not null;default:0" json:"trial_days"`
	SubscriberCount int64     `gorm:"column:subscriber_count;type:bigint;not null;default:0" json:"subscriber_count"`
	TotalRevenue    int64     `gorm:"column:total_revenue;type:bigint;not null;default:0" json:"total_revenue"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}

// PeriodDuration resolves the billing cycle length.
func (p *Plan) PeriodDuration() (time.Duration, error) {
	return p.Period.Duration(p.PeriodSeconds)
}

func (p *Plan) HasTrial() bool {
	return p != nil && p.TrialDays > 0
}
