package coordinator

import (
	"time"

	"github.com/readlist/readlist-sync/internal/config"
)

// settings are the coordinator tunables taken from the sync config
type settings struct {
	window         time.Duration
	staleLockAfter time.Duration
	concurrency    int
	schedule       bool
	interval       time.Duration
}

func settingsFromConfig(cfg *config.Config) settings {
	return settings{
		window:         cfg.Sync.GetWindow(),
		staleLockAfter: cfg.Sync.GetStaleLockAfter(),
		concurrency:    max(cfg.Sync.GetConcurrency(), 1),
		schedule:       cfg.Sync.ScheduleEnabled(),
		interval:       cfg.Sync.GetScheduleInterval(),
	}
}
