// Package shipper follows a local access log file and uploads line
// batches to the raw prefix in object storage.
package shipper

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nxadm/tail"
	"github.com/sdko-org/logmill/internal/config"
	"github.com/sdko-org/logmill/internal/storage"
	"github.com/sirupsen/logrus"
)

type Shipper struct {
	log       *logrus.Entry
	store     storage.ObjectStore
	path      string
	rawPrefix string
	maxLines  int
	maxAge    time.Duration
	seq       int
}

func New(logger *logrus.Logger, store storage.ObjectStore, cfg *config.Config) *Shipper {
	return &Shipper{
		log:       logger.WithField("component", "shipper"),
		store:     store,
		path:      cfg.TailPath,
		rawPrefix: cfg.RawPrefix,
		maxLines:  cfg.TailBatchSize,
		maxAge:    cfg.TailBatchAge,
	}
}

// Run tails the configured file until the context is cancelled,
// flushing a batch when it fills up or gets old enough.
func (s *Shipper) Run(ctx context.Context) error {
	t, err := tail.TailFile(s.path, tail.Config{
		Follow: true,
		ReOpen: true,
		Logger: tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail %s: %w", s.path, err)
	}
	defer t.Cleanup()

	s.log.WithField("path", s.path).Info("Following access log")

	b := newBatch(s.maxLines)
	ticker := time.NewTicker(s.maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background(), b)
			t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				s.flush(context.Background(), b)
				return nil
			}
			if line.Err != nil {
				s.log.WithError(line.Err).Warn("Tail read error")
				continue
			}
			if b.add(line.Text) {
				s.flush(ctx, b)
			}
		case <-ticker.C:
			if !b.empty() && b.age() >= s.maxAge {
				s.flush(ctx, b)
			}
		}
	}
}

func (s *Shipper) flush(ctx context.Context, b *batch) {
	if b.empty() {
		return
	}

	s.seq++
	key := fmt.Sprintf("%s%s-%04d.log", s.rawPrefix, time.Now().UTC().Format("20060102T150405Z"), s.seq)

	if err := s.store.Upload(ctx, key, bytes.NewReader(b.payload()), "text/plain"); err != nil {
		s.log.WithError(err).WithField("key", key).Error("Failed to upload batch")
		return
	}

	s.log.WithFields(logrus.Fields{
		"key":   key,
		"lines": b.len(),
	}).Info("Shipped log batch")
	b.reset()
}

// batch accumulates raw lines until size or age triggers a flush.
type batch struct {
	lines   []string
	max     int
	started time.Time
}

func newBatch(max int) *batch {
	if max < 1 {
		max = 1
	}
	return &batch{max: max}
}

// add appends a line and reports whether the batch is now full.
func (b *batch) add(line string) bool {
	if len(b.lines) == 0 {
		b.started = time.Now()
	}
	b.lines = append(b.lines, line)
	return len(b.lines) >= b.max
}

func (b *batch) empty() bool {
	return len(b.lines) == 0
}

func (b *batch) len() int {
	return len(b.lines)
}

func (b *batch) age() time.Duration {
	if b.empty() {
		return 0
	}
	return time.Since(b.started)
}

// payload renders the batch as newline-terminated text, the same shape
// the pipeline's line scanner expects.
func (b *batch) payload() []byte {
	if b.empty() {
		return nil
	}
	return []byte(strings.Join(b.lines, "\n") + "\n")
}

func (b *batch) reset() {
	b.lines = b.lines[:0]
}
