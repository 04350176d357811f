package notification_handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/casperflow/internal/platform/casper"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

const (
	SourceCasper = "casper"

	// SignatureHeader carries hex(HMAC-SHA256(secret, body)).
	SignatureHeader = "X-Webhook-Signature"

	EventDeployProcessed = "deploy_processed"

	maxNotificationBytes = 1 << 20
)

var (
	ErrBadSignature     = &errs.Error{Kind: errs.KindUnauthorized, Code: "bad_signature", Message: "invalid notification signature"}
	ErrUnsupportedEvent = &errs.Error{Kind: errs.KindInvalidArgument, Code: "unsupported_event", Message: "unsupported notification event"}
)

// DeployNotification is the event relay payload for a processed deploy.
type DeployNotification struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      struct {
		DeployHash   string  `json:"deploy_hash"`
		BlockHash    string  `json:"block_hash"`
		ErrorMessage *string `json:"error_message"`
	} `json:"data"`
}

type CasperNotificationParser struct {
	NotificationTime time.Time
	Notification     *DeployNotification
}

func (p *CasperNotificationParser) GetSource(ctx context.Context) string {
	return SourceCasper
}

func (p *CasperNotificationParser) GetNotificationTime(ctx context.Context) time.Time {
	if !p.Notification.Timestamp.IsZero() {
		return p.Notification.Timestamp
	}
	return p.NotificationTime
}

func (p *CasperNotificationParser) GetTransactionHash(ctx context.Context) string {
	return p.Notification.Data.DeployHash
}

func (p *CasperNotificationParser) GetOutcome(ctx context.Context) casper.TxOutcome {
	out := casper.TxOutcome{Status: types.TxStatusSucceeded, BlockHash: p.Notification.Data.BlockHash}
	if msg := p.Notification.Data.ErrorMessage; msg != nil && *msg != "" {
		out.Status = types.TxStatusFailed
		out.ErrorMessage = *msg
	}
	return out
}

func (p *CasperNotificationParser) GetData(ctx context.Context) any {
	return p.Notification
}

// Sign returns the signature the relay sends for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret []byte, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// ParseCasperNotification reads and authenticates the request body.
func ParseCasperNotification(cfg *config.Config, body []byte, signature string, now time.Time) (*CasperNotificationParser, error) {
	if secret := cfg.Casper.WebhookSecret; secret != "" && !verifySignature([]byte(secret), body, signature) {
		return nil, ErrBadSignature
	}
	var n DeployNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, errs.Invalidf("failed to decode notification").Wrap(err)
	}
	if n.Event != EventDeployProcessed {
		return nil, ErrUnsupportedEvent.Withf("unsupported notification event %q", n.Event)
	}
	if n.Data.DeployHash == "" {
		return nil, errs.Invalidf("notification has no deploy hash")
	}
	return &CasperNotificationParser{NotificationTime: now, Notification: &n}, nil
}

func GetCasperNotificationParser(cfg *config.Config, c *gin.Context, now time.Time) (*CasperNotificationParser, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read notification: %w", err)
	}
	return ParseCasperNotification(cfg, body, c.GetHeader(SignatureHeader), now)
}
