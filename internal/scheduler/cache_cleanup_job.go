package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizanhq/mizan/internal/pricecache"
)

// cacheRetention keeps expired price rows around as a stale fallback for a
// week before reclaiming them.
const cacheRetention = 7 * 24 * time.Hour

// CacheCleanupJob reclaims price cache rows too old to serve as a fallback.
type CacheCleanupJob struct {
	cache *pricecache.Repository
	log   zerolog.Logger
}

// NewCacheCleanupJob creates the cache cleanup job.
func NewCacheCleanupJob(cache *pricecache.Repository, log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cache: cache,
		log:   log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Name implements the Job interface.
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Run implements the Job interface.
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deleted, err := j.cache.DeleteExpired(cacheRetention)
	if err != nil {
		return err
	}

	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Reclaimed expired price cache rows")
	}
	return nil
}
