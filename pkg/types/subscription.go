package types

import (
	"fmt"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// ChangeReason is recorded on every change log row.
type ChangeReason string

const (
	ChangeReasonCreatePlan   ChangeReason = "create_plan"
	ChangeReasonUpdatePlan   ChangeReason = "update_plan"
	ChangeReasonDeactivate   ChangeReason = "deactivate"
	ChangeReasonSubscribe    ChangeReason = "subscribe"
	ChangeReasonStartTrial   ChangeReason = "start_trial"
	ChangeReasonConvertTrial ChangeReason = "convert_trial"
	ChangeReasonCancel       ChangeReason = "cancel"
	ChangeReasonAutoRenew    ChangeReason = "auto_renew"
	ChangeReasonRenew        ChangeReason = "renew"
	ChangeReasonExpire       ChangeReason = "expire"
	ChangeReasonClosePeriod  ChangeReason = "close_period"
	ChangeReasonPay          ChangeReason = "pay"
	ChangeReasonPayFailed    ChangeReason = "pay_failed"
	ChangeReasonVoid         ChangeReason = "void"
	ChangeReasonConsent      ChangeReason = "consent"
	ChangeReasonCharge       ChangeReason = "charge"
	ChangeReasonRevoke       ChangeReason = "revoke"
	ChangeReasonStake        ChangeReason = "stake"
	ChangeReasonClaim        ChangeReason = "claim"
	ChangeReasonWithdraw     ChangeReason = "withdraw"
	ChangeReasonSettings     ChangeReason = "settings"

	ChangeReasonNotificationReceived ChangeReason = "notification_received"
	ChangeReasonNotificationHandled  ChangeReason = "notification_handled"
	ChangeReasonNotificationFailed   ChangeReason = "notification_failed"
)

// BillingPeriod is the plan billing cycle. PeriodCustom uses a raw
// number of seconds stored next to it.
type BillingPeriod string

const (
	PeriodWeekly  BillingPeriod = "weekly"
	PeriodMonthly BillingPeriod = "monthly"
	PeriodYearly  BillingPeriod = "yearly"
	PeriodCustom  BillingPeriod = "custom"
)

const day = 24 * time.Hour

// MaxCustomPeriodSeconds caps custom periods at 100 years so period
// arithmetic stays well inside time.Duration.
const MaxCustomPeriodSeconds = 100 * 365 * 24 * 60 * 60

var periodDurations = map[BillingPeriod]time.Duration{
	PeriodWeekly:  7 * day,
	PeriodMonthly: 30 * day,
	PeriodYearly:  365 * day,
}

// Duration resolves the period length. customSeconds is only read for PeriodCustom.
func (p BillingPeriod) Duration(customSeconds int64) (time.Duration, error) {
	if d, ok := periodDurations[p]; ok {
		return d, nil
	}
	if p == PeriodCustom {
		if customSeconds <= 0 {
			return 0, fmt.Errorf("custom period requires positive seconds, got %d", customSeconds)
		}
		if customSeconds > MaxCustomPeriodSeconds {
			return 0, fmt.Errorf("custom period of %d seconds exceeds the maximum of %d", customSeconds, MaxCustomPeriodSeconds)
		}
		return time.Duration(customSeconds) * time.Second, nil
	}
	return 0, fmt.Errorf("unknown billing period %q", p)
}
