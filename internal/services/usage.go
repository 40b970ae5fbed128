package services

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nanofleet/agentd/internal/llm"
	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/pricing"
	"github.com/nanofleet/agentd/internal/repos"
	"github.com/nanofleet/agentd/internal/types"
)

// UsageService meters token consumption. Each Record call is one atomic
// insert; summaries are aggregated from the full accumulated set at call
// time, never cached.
type UsageService interface {
	Record(ctx context.Context, agentID string, threadID *string, modelID string, usage llm.Usage) error
	AgentSummary(ctx context.Context, agentID string) (*types.UsageSummary, error)
	ThreadSummary(ctx context.Context, agentID, threadID string) (*types.UsageSummary, error)
}

type usageService struct {
	db      *gorm.DB
	log     *logger.Logger
	records repos.UsageRepo
}

func NewUsageService(db *gorm.DB, baseLog *logger.Logger, usageRepo repos.UsageRepo) UsageService {
	return &usageService{
		db:      db,
		log:     baseLog.With("service", "UsageService"),
		records: usageRepo,
	}
}

func (s *usageService) Record(ctx context.Context, agentID string, threadID *string, modelID string, usage llm.Usage) error {
	record := &types.UsageRecord{
		AgentID:          agentID,
		ThreadID:         threadID,
		ModelID:          modelID,
		InputTokens:      usage.InputTokens,
		OutputTokens:     usage.OutputTokens,
		TotalTokens:      usage.InputTokens + usage.OutputTokens,
		CacheReadTokens:  usage.CacheReadTokens,
		CacheWriteTokens: usage.CacheWriteTokens,
		Cost:             pricing.CalculateCost(modelID, usage.InputTokens, usage.OutputTokens),
	}
	if len(usage.Raw) > 0 {
		record.ProviderUsage = datatypes.JSON(usage.Raw)
	}

	if _, err := s.records.Create(ctx, nil, []*types.UsageRecord{record}); err != nil {
		return err
	}
	return nil
}

func (s *usageService) AgentSummary(ctx context.Context, agentID string) (*types.UsageSummary, error) {
	totals, err := s.records.TotalsByAgent(ctx, nil, agentID)
	if err != nil {
		return nil, err
	}
	return summaryFromTotals(totals), nil
}

func (s *usageService) ThreadSummary(ctx context.Context, agentID, threadID string) (*types.UsageSummary, error) {
	totals, err := s.records.TotalsByThread(ctx, nil, agentID, threadID)
	if err != nil {
		return nil, err
	}
	return summaryFromTotals(totals), nil
}

// summaryFromTotals applies the nil-vs-zero rules: a zero summed cost means
// no priced model was seen (unknown, not free), and the hit rate is
// undefined without input tokens.
func summaryFromTotals(totals *repos.UsageTotals) *types.UsageSummary {
	summary := &types.UsageSummary{
		TotalInputTokens:      totals.TotalInput,
		TotalOutputTokens:     totals.TotalOutput,
		TotalTokens:           totals.TotalTokens,
		TotalCacheReadTokens:  totals.CacheRead,
		TotalCacheWriteTokens: totals.CacheWrite,
		Requests:              totals.Requests,
	}
	if totals.TotalCost > 0 {
		cost := totals.TotalCost
		summary.TotalCost = &cost
	}
	if totals.TotalInput > 0 {
		rate := float64(totals.CacheRead) / float64(totals.TotalInput) * 100
		summary.CacheHitRate = &rate
	}
	return summary
}
