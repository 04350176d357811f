package notification_handler

import (
	"context"
	"time"

	"github.com/fatflowers/casperflow/internal/platform/casper"
)

// NotificationParser extracts what the billing core needs from one pushed
// transaction notification.
type NotificationParser interface {
	GetSource(ctx context.Context) string
	GetNotificationTime(ctx context.Context) time.Time
	GetTransactionHash(ctx context.Context) string
	// GetOutcome is what the notification claims. It is informational only;
	// settlement always re-reads the node.
	GetOutcome(ctx context.Context) casper.TxOutcome
	GetData(ctx context.Context) any
}
