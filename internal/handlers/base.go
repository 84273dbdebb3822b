package handlers

import (
	"context"
	"io"
	"regexp"

	"github.com/sdko-org/logmill/internal/analytics"
	"github.com/sdko-org/logmill/internal/config"
	"github.com/sdko-org/logmill/internal/models"
	"github.com/sdko-org/logmill/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var safeKeyChars = regexp.MustCompile(`^[a-zA-Z0-9/_.\-]+$`)

// Runner starts and executes ETL runs.
type Runner interface {
	Begin(ctx context.Context, prefix string) (*models.ImportRun, error)
	Execute(ctx context.Context, run *models.ImportRun) error
}

// Reporter runs aggregate reports over the warehouse.
type Reporter interface {
	List() []analytics.Definition
	Run(ctx context.Context, name string, args map[string]string) (*analytics.Report, error)
}

// Fetcher pulls a remote log file for ingest's pull mode.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

type API struct {
	cfg     *config.Config
	log     *logrus.Entry
	store   storage.ObjectStore
	runner  Runner
	reports Reporter
	source  Fetcher
	db      *gorm.DB
}

func NewAPI(logger *logrus.Logger, cfg *config.Config, store storage.ObjectStore, runner Runner, reports Reporter, source Fetcher, db *gorm.DB) *API {
	return &API{
		cfg:     cfg,
		log:     logger.WithField("component", "api"),
		store:   store,
		runner:  runner,
		reports: reports,
		source:  source,
		db:      db,
	}
}
