// Package maintenance runs the periodic housekeeping jobs: audit-log
// retention and expired-token cleanup for the embedded provider.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"hackhub/config"
	"hackhub/core/store"
	"hackhub/core/utils"
)

// TokenPurger is implemented by the embedded identity provider; nil when the
// deployment uses a remote provider.
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cfg    config.MaintenanceConfig
	audits store.AuditStore
	tokens TokenPurger
	logger *utils.Logger
	cron   *cron.Cron
}

func NewScheduler(cfg config.MaintenanceConfig, audits store.AuditStore, tokens TokenPurger, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, audits: audits, tokens: tokens, logger: logger}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		return
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.runOnce); err != nil {
		if s.logger != nil {
			s.logger.Errorf("maintenance: invalid schedule %q: %v", s.cfg.Schedule, err)
		}
		s.cron = nil
		return
	}
	s.cron.Start()
	if s.logger != nil {
		s.logger.Printf("maintenance scheduler started (%s)", s.cfg.Schedule)
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if s.audits != nil && s.cfg.AuditRetentionDays > 0 {
		cutoff := utils.NowUTC().AddDate(0, 0, -s.cfg.AuditRetentionDays)
		if n, err := s.audits.PurgeOlderThan(ctx, cutoff); err != nil {
			if s.logger != nil {
				s.logger.Errorf("maintenance: purge audit log: %v", err)
			}
		} else if n > 0 && s.logger != nil {
			s.logger.Printf("maintenance: purged %d audit entries", n)
		}
	}
	if s.tokens != nil {
		if n, err := s.tokens.PurgeExpiredTokens(ctx); err != nil {
			if s.logger != nil {
				s.logger.Errorf("maintenance: purge tokens: %v", err)
			}
		} else if n > 0 && s.logger != nil {
			s.logger.Printf("maintenance: purged %d expired tokens", n)
		}
	}
}
