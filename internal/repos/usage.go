package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/types"
)

// UsageTotals carries raw SQL aggregates. The service layer applies the
// nil-vs-zero rules for cost and cache hit rate.
type UsageTotals struct {
	TotalInput  int64   `gorm:"column:total_input"`
	TotalOutput int64   `gorm:"column:total_output"`
	TotalTokens int64   `gorm:"column:total_tokens"`
	CacheRead   int64   `gorm:"column:cache_read"`
	CacheWrite  int64   `gorm:"column:cache_write"`
	TotalCost   float64 `gorm:"column:total_cost"`
	Requests    int64   `gorm:"column:requests"`
}

type UsageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, records []*types.UsageRecord) ([]*types.UsageRecord, error)
	TotalsByAgent(ctx context.Context, tx *gorm.DB, agentID string) (*UsageTotals, error)
	TotalsByThread(ctx context.Context, tx *gorm.DB, agentID string, threadID string) (*UsageTotals, error)
}

type usageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUsageRepo(db *gorm.DB, baseLog *logger.Logger) UsageRepo {
	repoLog := baseLog.With("repo", "UsageRepo")
	return &usageRepo{db: db, log: repoLog}
}

func (ur *usageRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.UsageRecord) ([]*types.UsageRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	if len(records) == 0 {
		return []*types.UsageRecord{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

const usageTotalsSelect = `
	COALESCE(SUM(input_tokens), 0) AS total_input,
	COALESCE(SUM(output_tokens), 0) AS total_output,
	COALESCE(SUM(total_tokens), 0) AS total_tokens,
	COALESCE(SUM(cache_read_tokens), 0) AS cache_read,
	COALESCE(SUM(cache_write_tokens), 0) AS cache_write,
	COALESCE(SUM(cost), 0) AS total_cost,
	COUNT(*) AS requests`

func (ur *usageRepo) TotalsByAgent(ctx context.Context, tx *gorm.DB, agentID string) (*UsageTotals, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var totals UsageTotals
	if err := transaction.WithContext(ctx).
		Model(&types.UsageRecord{}).
		Select(usageTotalsSelect).
		Where("agent_id = ?", agentID).
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	return &totals, nil
}

func (ur *usageRepo) TotalsByThread(ctx context.Context, tx *gorm.DB, agentID string, threadID string) (*UsageTotals, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var totals UsageTotals
	if err := transaction.WithContext(ctx).
		Model(&types.UsageRecord{}).
		Select(usageTotalsSelect).
		Where("agent_id = ? AND thread_id = ?", agentID, threadID).
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	return &totals, nil
}
