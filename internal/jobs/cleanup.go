package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/repository"
)

const cleanupTimeout = 30 * time.Second

// CleanupJob reaps sessions that were never joined: those whose QR has
// expired, and those that never got a QR within one grace period of creation.
type CleanupJob struct {
	sessionRepo repository.SessionRepository
	grace       time.Duration
	interval    time.Duration
	now         func() time.Time
	done        chan struct{}
}

func NewCleanupJob(sessionRepo repository.SessionRepository, grace, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessionRepo: sessionRepo,
		grace:       grace,
		interval:    interval,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("grace", j.grace).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	now := j.now()
	count, err := j.sessionRepo.DeleteUnclaimed(ctx, now, now.Add(-j.grace))
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup unclaimed sessions")
		return 0
	}
	if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up unclaimed sessions")
	}
	return count
}
