// Package jobs runs the storefront's periodic housekeeping on a cron
// schedule.
package jobs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Keoroanthony/go-storefront/internal/models"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler wraps a cron instance. Jobs never overlap with themselves and a
// panicking job is logged instead of killing the process.
type Scheduler struct {
	sched   *cron.Cron
	log     *zap.Logger
	timeout time.Duration
}

func NewScheduler(log *zap.Logger) *Scheduler {
	return &Scheduler{
		sched: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		log:     log,
		timeout: 10 * time.Minute,
	}
}

// Add schedules fn under spec, e.g. "@every 1h" or "0 30 2 * * *".
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.sched.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	return errors.Wrapf(err, "schedule job %s", name)
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop prevents new runs and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.sched.Stop().Done()
}

func (s *Scheduler) Len() int {
	return len(s.sched.Entries())
}

// PruneReadNotifications deletes notifications read more than maxAge ago.
func PruneReadNotifications(db *gorm.DB, maxAge time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		return errors.Wrap(db.WithContext(ctx).
			Where("is_read = ? AND created_at < ?", true, time.Now().Add(-maxAge)).
			Delete(&models.Notification{}).Error, "prune notifications")
	}
}

// PruneGuestCarts drops db-backed guest cart lines untouched for maxAge.
func PruneGuestCarts(db *gorm.DB, maxAge time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		return errors.Wrap(db.WithContext(ctx).
			Where("owner LIKE ? AND updated_at < ?", "guest:%", time.Now().Add(-maxAge)).
			Delete(&models.CartItem{}).Error, "prune guest carts")
	}
}
