package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/casperflow/pkg/types"
)

// ChangeLog records entity changes for troubleshooting and audit.
type ChangeLog struct {
	ID         string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EntityType string `gorm:"column:entity_type;type:varchar(32);not null;index:idx_change_log_entity,priority:1" json:"entity_type"`
	EntityID   string `gorm:"column:entity_id;type:varchar(128);not null;index:idx_change_log_entity,priority:2" json:"entity_id"`
	Actor      string `gorm:"column:actor;type:varchar(128)" json:"actor"`
	// Reason is the change reason.
	Reason types.ChangeReason `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	// Before stores entity data before the change in JSON format.
	Before datatypes.JSON `gorm:"column:before;type:jsonb;default:'null'" json:"before"`
	// After stores entity data after the change in JSON format.
	After datatypes.JSON `gorm:"column:after;type:jsonb;default:'null'" json:"after"`
	// Extra stores additional context such as the trace id.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (ChangeLog) TableName() string {
	return "change_log"
}

const (
	EntityPlan              = "plan"
	EntitySubscription      = "subscription"
	EntityInvoice           = "invoice"
	EntityConsent           = "payment_consent"
	EntityStakePosition     = "stake_position"
	// EntityChainNotification rows are keyed by transaction hash.
	EntityChainNotification = "chain_notification"
)
