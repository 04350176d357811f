package models

import "time"

// UsageRecord is an append-only metering event.
type UsageRecord struct {
	ID             string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string    `gorm:"column:subscription_id;type:uuid;not null;index:idx_usage_subscription_recorded,priority:1" json:"subscription_id"`
	PlanID         string    `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	Metric         string    `gorm:"column:metric;type:varchar(64);not null" json:"metric"`
	Units          int64     `gorm:"column:units;type:bigint;not null" json:"units"`
	RecordedAt     time.Time `gorm:"column:recorded_at;not null;index:idx_usage_subscription_recorded,priority:2" json:"recorded_at"`
	Recorder       string    `gorm:"column:recorder;type:varchar(128);not null" json:"recorder"`
}

func (UsageRecord) TableName() string {
	return "usage_record"
}

// UsageRecorder authorizes a backend identity to meter a plan's subscriptions.
type UsageRecorder struct {
	ID           string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	PlanID       string    `gorm:"column:plan_id;type:uuid;not null;uniqueIndex:idx_recorder_plan,priority:1" json:"plan_id"`
	Recorder     string    `gorm:"column:recorder;type:varchar(128);not null;uniqueIndex:idx_recorder_plan,priority:2" json:"recorder"`
	AuthorizedBy string    `gorm:"column:authorized_by;type:varchar(128);not null" json:"authorized_by"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (UsageRecorder) TableName() string {
	return "usage_recorder"
}
