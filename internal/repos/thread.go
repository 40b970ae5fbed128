package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/types"
)

type ThreadRepo interface {
	Create(ctx context.Context, tx *gorm.DB, threads []*types.Thread) ([]*types.Thread, error)
	GetByID(ctx context.Context, tx *gorm.DB, threadID string) (*types.Thread, error)
	ListByResource(ctx context.Context, tx *gorm.DB, resourceID string) ([]*types.Thread, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Thread, error)
}

type threadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, baseLog *logger.Logger) ThreadRepo {
	repoLog := baseLog.With("repo", "ThreadRepo")
	return &threadRepo{db: db, log: repoLog}
}

func (tr *threadRepo) Create(ctx context.Context, tx *gorm.DB, threads []*types.Thread) ([]*types.Thread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	if len(threads) == 0 {
		return []*types.Thread{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&threads).Error; err != nil {
		return nil, err
	}
	return threads, nil
}

// GetByID returns (nil, nil) when the thread does not exist; callers decide
// whether absence is an error.
func (tr *threadRepo) GetByID(ctx context.Context, tx *gorm.DB, threadID string) (*types.Thread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.Thread
	if err := transaction.WithContext(ctx).
		Where("id = ?", threadID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (tr *threadRepo) ListByResource(ctx context.Context, tx *gorm.DB, resourceID string) ([]*types.Thread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var results []*types.Thread
	if err := transaction.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (tr *threadRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Thread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var results []*types.Thread
	if err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
