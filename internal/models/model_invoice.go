package models

import (
	"time"

	"github.com/fatflowers/casperflow/pkg/types"
)

// Invoice settles one billing period of one subscription.
// TotalAmount is always BaseAmount + UsageAmount.
type Invoice struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;not null;uniqueIndex:idx_invoice_period,priority:1" json:"subscription_id"`
	PlanID         string `gorm:"column:plan_id;type:uuid;not null;index" json:"plan_id"`
	Subscriber     string `gorm:"column:subscriber;type:varchar(128);not null;index" json:"subscriber"`
	Merchant       string `gorm:"column:merchant;type:varchar(128);not null;index" json:"merchant"`
	BaseAmount     int64  `gorm:"column:base_amount;type:bigint;not null" json:"base_amount"`
	UsageUnits     int64  `gorm:"column:usage_units;type:bigint;not null;default:0" json:"usage_units"`
	UsageAmount    int64  `gorm:"column:usage_amount;type:bigint;not null;default:0" json:"usage_amount"`
	TotalAmount    int64  `gorm:"column:total_amount;type:bigint;not null" json:"total_amount"`
	// ProtocolFee is set when the invoice is paid; the merchant keeps the rest.
	ProtocolFee   int64               `gorm:"column:protocol_fee;type:bigint;not null;default:0" json:"protocol_fee"`
	PeriodStart   time.Time           `gorm:"column:period_start;not null;uniqueIndex:idx_invoice_period,priority:2" json:"period_start"`
	PeriodEnd     time.Time           `gorm:"column:period_end;not null" json:"period_end"`
	Status        types.InvoiceStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	PaymentMethod types.PaymentMethod `gorm:"column:payment_method;type:varchar(16);default:null" json:"payment_method"`
	// PaymentTx is the chain transaction hash or the consent id that settled it.
	PaymentTx string     `gorm:"column:payment_tx;type:varchar(128);default:null" json:"payment_tx"`
	PaidAt    *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoice"
}

// NewInvoice computes the amounts from a subscription snapshot and the
// aggregated usage units. Amounts that do not fit int64 motes fail with
// errs.ErrAmountOverflow.
func NewInvoice(id string, sub *Subscription, units int64, start, end, now time.Time) (*Invoice, error) {
	base := sub.PeriodBase()
	usage, err := types.MulMotes(sub.UsagePrice, units)
	if err != nil {
		return nil, err
	}
	total, err := types.AddMotes(base, usage)
	if err != nil {
		return nil, err
	}
	return &Invoice{
		ID:             id,
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Subscriber:     sub.Subscriber,
		Merchant:       sub.Merchant,
		BaseAmount:     base,
		UsageUnits:     units,
		UsageAmount:    usage,
		TotalAmount:    total,
		PeriodStart:    start,
		PeriodEnd:      end,
		Status:         types.InvoiceStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// MarkPaid stamps the settlement and computes the protocol fee.
func (i *Invoice) MarkPaid(method types.PaymentMethod, ref string, fee types.BasisPoints, at time.Time) {
	i.Status = types.InvoiceStatusPaid
	i.PaymentMethod = method
	if ref != "" {
		i.PaymentTx = ref
	}
	i.ProtocolFee = fee.Of(i.TotalAmount)
	paidAt := at
	i.PaidAt = &paidAt
	i.UpdatedAt = at
}

// MerchantAmount is the total minus the protocol fee.
func (i *Invoice) MerchantAmount() int64 {
	return i.TotalAmount - i.ProtocolFee
}

func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	cp := *i
	if i.PaidAt != nil {
		t := *i.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}
