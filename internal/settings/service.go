package settings

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultRetentionDays is how long untouched volume settings survive before
// the nightly prune removes them.
const DefaultRetentionDays = 180

// pruneSchedule runs the prune while the vehicle is most likely idle.
const pruneSchedule = "0 3 * * *"

// Service wraps the settings repository with the retention job.
type Service struct {
	repo          *Repository
	logger        *logrus.Logger
	retentionDays int
	cron          *cron.Cron
}

// NewService creates a settings service. A nil logger falls back to the
// standard logger.
func NewService(repo *Repository, retentionDays int, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Service{
		repo:          repo,
		logger:        logger,
		retentionDays: retentionDays,
		cron:          cron.New(),
	}
}

// Repository exposes the underlying store for wiring into volume groups.
func (s *Service) Repository() *Repository {
	return s.repo
}

// StartPruneJob schedules the nightly settings prune.
func (s *Service) StartPruneJob() error {
	if _, err := s.cron.AddFunc(pruneSchedule, s.prune); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"schedule":  pruneSchedule,
		"retention": s.retentionDays,
	}).Info("settings prune job scheduled")
	return nil
}

// StopPruneJob stops the prune scheduler and waits for a running job.
func (s *Service) StopPruneJob() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("settings prune job stopped")
}

func (s *Service) prune() {
	count, err := s.repo.PruneStale(s.retentionDays)
	if err != nil {
		s.logger.WithError(err).Error("settings prune failed")
		return
	}
	if count > 0 {
		s.logger.WithField("count", count).Info("pruned stale volume settings")
	}
}
