package app

import (
	"gorm.io/gorm"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/repos"
)

type Repos struct {
	Thread repos.ThreadRepo
	Usage  repos.UsageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Thread: repos.NewThreadRepo(db, log),
		Usage:  repos.NewUsageRepo(db, log),
	}
}
