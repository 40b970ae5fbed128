package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/repos"
	"github.com/nanofleet/agentd/internal/types"
)

// DefaultResourceID groups threads that arrive with no owner identifier.
const DefaultResourceID = "default"

// SessionService maps an inbound request onto a concrete (threadID,
// resourceID) pair, creating or reusing persisted threads as needed.
type SessionService interface {
	// Resolve applies, in priority order:
	//   1. both present → returned verbatim, no store lookup
	//   2. threadID only → recover the owning resourceID, "default" if unknown
	//   3. otherwise → most recent thread for the resource, or a new one
	Resolve(ctx context.Context, threadID, resourceID string) (string, string, error)
	ListThreads(ctx context.Context) ([]*types.Thread, error)
	CreateThread(ctx context.Context, resourceID string) (*types.Thread, error)
}

type sessionService struct {
	db      *gorm.DB
	log     *logger.Logger
	threads repos.ThreadRepo
}

func NewSessionService(db *gorm.DB, baseLog *logger.Logger, threadRepo repos.ThreadRepo) SessionService {
	return &sessionService{
		db:      db,
		log:     baseLog.With("service", "SessionService"),
		threads: threadRepo,
	}
}

func (s *sessionService) Resolve(ctx context.Context, threadID, resourceID string) (string, string, error) {
	if threadID != "" && resourceID != "" {
		return threadID, resourceID, nil
	}

	if threadID != "" {
		thread, err := s.threads.GetByID(ctx, nil, threadID)
		if err != nil {
			return "", "", err
		}
		if thread == nil || thread.ResourceID == "" {
			return threadID, DefaultResourceID, nil
		}
		return threadID, thread.ResourceID, nil
	}

	rid := resourceID
	if rid == "" {
		rid = DefaultResourceID
	}

	existing, err := s.threads.ListByResource(ctx, nil, rid)
	if err != nil {
		return "", "", err
	}
	if len(existing) > 0 {
		latest := existing[len(existing)-1]
		return latest.ID, rid, nil
	}

	thread, err := s.CreateThread(ctx, rid)
	if err != nil {
		return "", "", err
	}
	return thread.ID, rid, nil
}

func (s *sessionService) ListThreads(ctx context.Context) ([]*types.Thread, error) {
	return s.threads.ListAll(ctx, nil)
}

func (s *sessionService) CreateThread(ctx context.Context, resourceID string) (*types.Thread, error) {
	if resourceID == "" {
		resourceID = DefaultResourceID
	}
	thread := types.NewThread(resourceID)
	created, err := s.threads.Create(ctx, nil, []*types.Thread{thread})
	if err != nil {
		return nil, err
	}
	s.log.Debug("Thread created", "thread_id", thread.ID, "resource_id", resourceID)
	return created[0], nil
}
