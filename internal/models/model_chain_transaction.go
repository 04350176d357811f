package models

import (
	"time"

	"github.com/fatflowers/casperflow/pkg/types"
)

// ChainTransaction is a submission to the Casper network made on behalf of
// a subscriber. The hash is the only handle for re-querying its outcome.
type ChainTransaction struct {
	ID         string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Hash       string         `gorm:"column:hash;type:varchar(128);not null;uniqueIndex" json:"hash"`
	Kind       types.TxKind   `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	Network    string         `gorm:"column:network;type:varchar(32);not null" json:"network"`
	From       string         `gorm:"column:from_account;type:varchar(128);not null;index" json:"from"`
	To         string         `gorm:"column:to_account;type:varchar(128)" json:"to"`
	Amount     int64          `gorm:"column:amount;type:bigint;not null;default:0" json:"amount"`
	EntryPoint string         `gorm:"column:entry_point;type:varchar(64)" json:"entry_point,omitempty"`
	InvoiceID  *string        `gorm:"column:invoice_id;type:uuid;index;default:null" json:"invoice_id"`
	Status     types.TxStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	// ErrorMessage is the node-reported failure, if any.
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	SubmittedAt  time.Time  `gorm:"column:submitted_at;not null" json:"submitted_at"`
	ConfirmedAt  *time.Time `gorm:"column:confirmed_at;default:null" json:"confirmed_at"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (ChainTransaction) TableName() string {
	return "chain_transaction"
}

func (t *ChainTransaction) Clone() *ChainTransaction {
	if t == nil {
		return nil
	}
	cp := *t
	if t.InvoiceID != nil {
		s := *t.InvoiceID
		cp.InvoiceID = &s
	}
	if t.ConfirmedAt != nil {
		c := *t.ConfirmedAt
		cp.ConfirmedAt = &c
	}
	return &cp
}
