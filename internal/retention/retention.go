// Package retention removes raw objects and warehouse rows that have
// aged past the configured retention window.
package retention

import (
	"context"
	"time"

	"github.com/sdko-org/logmill/internal/config"
	"github.com/sdko-org/logmill/internal/models"
	"github.com/sdko-org/logmill/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Sweeper struct {
	logger    *logrus.Logger
	db        *gorm.DB
	store     storage.ObjectStore
	rawPrefix string
	retention time.Duration
}

func NewSweeper(logger *logrus.Logger, db *gorm.DB, store storage.ObjectStore, cfg *config.Config) *Sweeper {
	return &Sweeper{
		logger:    logger,
		db:        db,
		store:     store,
		rawPrefix: cfg.RawPrefix,
		retention: cfg.Retention,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	logEntry := s.logger.WithField("component", "retention_sweeper")
	logEntry.WithField("retention", s.retention).Info("Starting retention sweeper")

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx, logEntry)
		case <-ctx.Done():
			logEntry.Info("Stopping retention sweeper")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, log *logrus.Entry) {
	log = log.WithField("operation", "retention_sweep")
	cutoff := time.Now().Add(-s.retention)

	objects, err := s.store.List(ctx, s.rawPrefix)
	if err != nil {
		log.WithError(err).Error("Raw object listing failed")
		objects = nil
	}

	var expired int
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			log.WithFields(logrus.Fields{"key": obj.Key, "error": err}).Error("Failed to delete raw object")
			continue
		}
		expired++
	}

	res := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.AccessLogEntry{})
	if res.Error != nil {
		log.WithError(res.Error).Error("Warehouse row purge failed")
	}

	runs := s.db.WithContext(ctx).
		Where("started_at < ? AND state <> ?", cutoff, models.RunStateRunning).
		Delete(&models.ImportRun{})
	if runs.Error != nil {
		log.WithError(runs.Error).Error("Run history purge failed")
	}

	log.WithFields(logrus.Fields{
		"objects": expired,
		"rows":    res.RowsAffected,
		"runs":    runs.RowsAffected,
	}).Info("Retention sweep finished")
}
