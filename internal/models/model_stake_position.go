package models

import (
	"math/bits"
	"time"

	"gorm.io/datatypes"
)

// SecondsPerYear is the accrual denominator (365 days).
const SecondsPerYear = 365 * 24 * 60 * 60

// StakePosition is one subscriber wallet's staked principal and reward
// accounting. Version guards optimistic updates.
type StakePosition struct {
	Subscriber      string    `gorm:"column:subscriber;type:varchar(128);primary_key" json:"subscriber"`
	Principal       int64     `gorm:"column:principal;type:bigint;not null" json:"principal"`
	StakedAt        time.Time `gorm:"column:staked_at;not null" json:"staked_at"`
	LastRewardClaim time.Time `gorm:"column:last_reward_claim;not null" json:"last_reward_claim"`
	// CarriedRewards are rewards settled but not yet claimed, e.g. before a top-up.
	CarriedRewards         int64                       `gorm:"column:carried_rewards;type:bigint;not null;default:0" json:"carried_rewards"`
	AutoPay                bool                        `gorm:"column:auto_pay;not null;default:false" json:"auto_pay"`
	AutoRenew              bool                        `gorm:"column:auto_renew;not null;default:false" json:"auto_renew"`
	AuthorizedPlans        datatypes.JSONSlice[string] `gorm:"column:authorized_plans;type:jsonb" json:"authorized_plans"`
	DelegatedValidator     string                      `gorm:"column:delegated_validator;type:varchar(128);default:null" json:"delegated_validator"`
	TotalClaimed           int64                       `gorm:"column:total_claimed;type:bigint;not null;default:0" json:"total_claimed"`
	TotalSubscriptionsPaid int64                       `gorm:"column:total_subscriptions_paid;type:bigint;not null;default:0" json:"total_subscriptions_paid"`
	Version                int64                       `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt              time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt              time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

func (StakePosition) TableName() string {
	return "stake_position"
}

// PendingRewards returns carried rewards plus simple interest accrued on the
// principal since LastRewardClaim, truncated to whole motes.
func (p *StakePosition) PendingRewards(apyBps int64, now time.Time) int64 {
	if p == nil {
		return 0
	}
	elapsed := int64(now.Sub(p.LastRewardClaim) / time.Second)
	if elapsed <= 0 || p.Principal <= 0 || apyBps <= 0 {
		return p.CarriedRewards
	}
	return p.CarriedRewards + accrue(p.Principal, apyBps, elapsed)
}

// accrue computes principal*bps*secs/(year*10000) without overflowing for
// realistic mote amounts.
func accrue(principal, apyBps, seconds int64) int64 {
	const denom = SecondsPerYear * 10_000
	// split principal to keep the intermediate product inside int64
	q, r := principal/denom, principal%denom
	return q*apyBps*seconds + mulDiv(r, apyBps*seconds, denom)
}

// mulDiv returns a*b/d for non-negative operands with a < d, so the
// quotient always fits.
func mulDiv(a, b, d int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(d))
	return int64(q)
}

// IsPlanAuthorized reports whether auto-pay may settle invoices of planID.
func (p *StakePosition) IsPlanAuthorized(planID string) bool {
	for _, id := range p.AuthorizedPlans {
		if id == planID {
			return true
		}
	}
	return false
}

func (p *StakePosition) Clone() *StakePosition {
	if p == nil {
		return nil
	}
	cp := *p
	cp.AuthorizedPlans = append(datatypes.JSONSlice[string]{}, p.AuthorizedPlans...)
	return &cp
}
