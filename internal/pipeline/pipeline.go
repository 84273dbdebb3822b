// Package pipeline drives one ETL pass: stream raw log objects, parse
// every line, load records into the warehouse, and write the curated
// parquet output back to object storage.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sdko-org/logmill/internal/columnar"
	"github.com/sdko-org/logmill/internal/config"
	"github.com/sdko-org/logmill/internal/metrics"
	"github.com/sdko-org/logmill/internal/models"
	"github.com/sdko-org/logmill/internal/parser"
	"github.com/sdko-org/logmill/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxLineSize bounds a single log line; anything longer is upstream
// corruption, not a log line.
const maxLineSize = 1024 * 1024

type Runner struct {
	log           *logrus.Entry
	db            *gorm.DB
	store         storage.ObjectStore
	metrics       *metrics.Metrics
	curatedPrefix string
	batchSize     int
	workers       int
}

func NewRunner(logger *logrus.Logger, db *gorm.DB, store storage.ObjectStore, m *metrics.Metrics, cfg *config.Config) *Runner {
	return &Runner{
		log:           logger.WithField("component", "pipeline"),
		db:            db,
		store:         store,
		metrics:       m,
		curatedPrefix: cfg.CuratedPrefix,
		batchSize:     cfg.BatchSize,
		workers:       cfg.ParseWorkers,
	}
}

// Begin registers a new run over the given prefix in the running state.
func (r *Runner) Begin(ctx context.Context, prefix string) (*models.ImportRun, error) {
	run := &models.ImportRun{
		Prefix:    prefix,
		State:     models.RunStateRunning,
		StartedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("create import run: %w", err)
	}
	return run, nil
}

// Execute processes a previously begun run to completion. A failure of
// a single line never aborts the run; a failure of the input source or
// the warehouse does.
func (r *Runner) Execute(ctx context.Context, run *models.ImportRun) error {
	log := r.log.WithFields(logrus.Fields{
		"run_id": run.ID,
		"prefix": run.Prefix,
	})
	log.Info("Starting ETL run")

	objects, err := r.store.List(ctx, run.Prefix)
	if err != nil {
		return r.fail(run, log, fmt.Errorf("list raw objects: %w", err))
	}

	var buf bytes.Buffer
	pq, err := columnar.NewWriter(&buf)
	if err != nil {
		return r.fail(run, log, err)
	}

	var counts tally
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return r.fail(run, log, err)
		}
		if err := r.processObject(ctx, run, obj.Key, pq, &counts); err != nil {
			return r.fail(run, log, fmt.Errorf("process %s: %w", obj.Key, err))
		}
		r.metrics.ObjectsTotal.Inc()
	}

	if err := pq.Close(); err != nil {
		return r.fail(run, log, err)
	}

	if pq.Rows() > 0 {
		run.OutputKey = fmt.Sprintf("%srun-%06d.parquet", r.curatedPrefix, run.ID)
		if err := r.store.Upload(ctx, run.OutputKey, bytes.NewReader(buf.Bytes()), "application/vnd.apache.parquet"); err != nil {
			return r.fail(run, log, fmt.Errorf("upload curated output: %w", err))
		}
	}

	now := time.Now()
	run.State = models.RunStateCompleted
	run.FinishedAt = &now
	run.Objects = len(objects)
	counts.applyTo(run)
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("finalize import run: %w", err)
	}

	r.metrics.RunsTotal.WithLabelValues(models.RunStateCompleted).Inc()
	log.WithFields(logrus.Fields{
		"objects":  run.Objects,
		"lines":    run.Lines,
		"records":  run.Records,
		"failures": run.Failures(),
		"output":   run.OutputKey,
	}).Info("ETL run completed")
	return nil
}

func (r *Runner) processObject(ctx context.Context, run *models.ImportRun, key string, pq *columnar.Writer, counts *tally) error {
	body, err := r.store.Open(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	reader := bufio.NewReaderSize(body, 64*1024)

	batch := make([]string, 0, r.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.loadBatch(ctx, run, batch, pq, counts); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		line, oversized, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read object: %w", err)
		}
		if oversized {
			counts.lines++
			counts.addFailure(parser.ReasonSyntax)
			r.metrics.LinesTotal.Inc()
			r.metrics.FailuresTotal.WithLabelValues(parser.ReasonSyntax.String()).Inc()
			r.log.WithFields(logrus.Fields{
				"run_id": run.ID,
				"reason": parser.ReasonSyntax.String(),
			}).Debug("Rejected oversized log line")
			continue
		}
		batch = append(batch, line)
		if len(batch) >= r.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// readLine returns the next line from r. A line longer than
// maxLineSize is drained and reported as oversized instead of
// aborting the read, so one corrupt line cannot take down the rest of
// the object.
func readLine(r *bufio.Reader) (string, bool, error) {
	var buf []byte
	oversized := false
	for {
		frag, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !oversized {
			buf = append(buf, frag...)
			if len(buf) > maxLineSize {
				oversized = true
				buf = nil
			}
		}
		if !isPrefix {
			if oversized {
				return "", true, nil
			}
			return string(buf), false, nil
		}
	}
}

func (r *Runner) loadBatch(ctx context.Context, run *models.ImportRun, lines []string, pq *columnar.Writer, counts *tally) error {
	results := parseLines(lines, r.workers)

	entries := make([]models.AccessLogEntry, 0, len(results))
	for i, res := range results {
		counts.lines++
		r.metrics.LinesTotal.Inc()

		if res.fail != nil {
			counts.addFailure(res.fail.Reason)
			r.metrics.FailuresTotal.WithLabelValues(res.fail.Reason.String()).Inc()
			r.log.WithFields(logrus.Fields{
				"run_id": run.ID,
				"reason": res.fail.Reason.String(),
				"line":   lines[i],
			}).Debug("Rejected log line")
			continue
		}

		counts.records++
		r.metrics.RecordsTotal.Inc()
		entries = append(entries, toEntry(run.ID, res.rec))
		if err := pq.Add(res.rec); err != nil {
			return err
		}
	}

	if len(entries) > 0 {
		if err := r.db.WithContext(ctx).CreateInBatches(entries, r.batchSize).Error; err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
	}
	return nil
}

func (r *Runner) fail(run *models.ImportRun, log *logrus.Entry, cause error) error {
	now := time.Now()
	run.State = models.RunStateFailed
	run.FinishedAt = &now
	run.Error = cause.Error()
	// No request context here: the failure must land on the run row
	// even when the caller's context is what got cancelled.
	if err := r.db.Save(run).Error; err != nil {
		log.WithError(err).Error("Failed to record run failure")
	}
	r.metrics.RunsTotal.WithLabelValues(models.RunStateFailed).Inc()
	log.WithError(cause).Error("ETL run failed")
	return cause
}

func toEntry(runID uint, rec *parser.Record) models.AccessLogEntry {
	var bytesSent *int64
	if rec.BytesSent != nil {
		n := int64(*rec.BytesSent)
		bytesSent = &n
	}
	return models.AccessLogEntry{
		RunID:     runID,
		Host:      rec.Host,
		Identity:  rec.Identity,
		User:      rec.User,
		Timestamp: rec.Timestamp,
		Method:    rec.Method,
		Endpoint:  rec.Endpoint,
		Protocol:  rec.Protocol,
		Status:    rec.Status,
		BytesSent: bytesSent,
		Referer:   rec.Referer,
		UserAgent: rec.UserAgent,
	}
}

type lineResult struct {
	rec  *parser.Record
	fail *parser.Failure
}

// parseLines fans a batch out over a bounded number of goroutines.
// Results keep the input order: one result per line, at the line's
// index. Parsing is pure, so no coordination beyond the WaitGroup is
// needed.
func parseLines(lines []string, workers int) []lineResult {
	results := make([]lineResult, len(lines))
	if workers < 1 {
		workers = 1
	}
	chunk := (len(lines) + workers - 1) / workers
	if chunk == 0 {
		return results
	}

	var wg sync.WaitGroup
	for start := 0; start < len(lines); start += chunk {
		end := start + chunk
		if end > len(lines) {
			end = len(lines)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				results[i].rec, results[i].fail = parser.Parse(lines[i])
			}
		}(start, end)
	}
	wg.Wait()
	return results
}

type tally struct {
	lines, records             int64
	syntax, outOfRange, badEnc int64
}

func (t *tally) addFailure(reason parser.Reason) {
	switch reason {
	case parser.ReasonSyntax:
		t.syntax++
	case parser.ReasonRange:
		t.outOfRange++
	case parser.ReasonEncoding:
		t.badEnc++
	}
}

func (t *tally) applyTo(run *models.ImportRun) {
	run.Lines = t.lines
	run.Records = t.records
	run.SyntaxFailures = t.syntax
	run.RangeFailures = t.outOfRange
	run.EncodingFailures = t.badEnc
}
