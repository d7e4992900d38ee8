// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает периодическую зачистку просроченных
// пробных устройств — ленивая зачистка при выдаче не успевает за
// устройствами, владельцы которых больше не заходят в бот.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/features/trial"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron         *cron.Cron
	trialService *trial.Service
	sweepSpec    string
}

// NewScheduler создаёт планировщик задач.
func NewScheduler(trialService *trial.Service, sweepSpec string) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		trialService: trialService,
		sweepSpec:    sweepSpec,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.sweepSpec, func() {
		log.Debug("[CRON] Зачистка просроченных пробных устройств")
		if err := s.trialService.SweepExpired(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка зачистки пробных устройств")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.WithField("spec", s.sweepSpec).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик, дожидаясь текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
