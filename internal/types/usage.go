package types

import (
	"time"

	"gorm.io/datatypes"
)

// UsageRecord is an append-only fact about one completed model call. It is
// never updated or deleted; summaries are aggregated from the full set.
type UsageRecord struct {
	ID               uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	AgentID          string         `gorm:"index;not null;column:agent_id" json:"agentId"`
	ThreadID         *string        `gorm:"index;column:thread_id" json:"threadId,omitempty"`
	ModelID          string         `gorm:"not null;column:model_id" json:"modelId"`
	InputTokens      int64          `gorm:"not null;default:0;column:input_tokens" json:"inputTokens"`
	OutputTokens     int64          `gorm:"not null;default:0;column:output_tokens" json:"outputTokens"`
	TotalTokens      int64          `gorm:"not null;default:0;column:total_tokens" json:"totalTokens"`
	CacheReadTokens  int64          `gorm:"not null;default:0;column:cache_read_tokens" json:"cacheReadTokens"`
	CacheWriteTokens int64          `gorm:"not null;default:0;column:cache_write_tokens" json:"cacheWriteTokens"`
	Cost             *float64       `gorm:"column:cost" json:"cost,omitempty"`
	ProviderUsage    datatypes.JSON `gorm:"column:provider_usage" json:"provider_usage,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;index" json:"timestamp"`
}

func (UsageRecord) TableName() string {
	return "usage"
}

// UsageSummary is a derived aggregate, computed on demand and never stored.
// TotalCost is nil when no matching record carried a priced model.
// CacheHitRate is nil when no input tokens were seen.
type UsageSummary struct {
	TotalInputTokens      int64    `json:"totalInputTokens"`
	TotalOutputTokens     int64    `json:"totalOutputTokens"`
	TotalTokens           int64    `json:"totalTokens"`
	TotalCacheReadTokens  int64    `json:"totalCacheReadTokens"`
	TotalCacheWriteTokens int64    `json:"totalCacheWriteTokens"`
	TotalCost             *float64 `json:"totalCost"`
	CacheHitRate          *float64 `json:"cacheHitRate"`
	Requests              int64    `json:"requests"`
}
