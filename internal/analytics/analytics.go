// Package analytics runs templated aggregate queries over the
// warehouse. Definitions ship as built-ins and can be extended or
// overridden from a YAML file.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// ErrUnknownReport is returned when no definition matches the
// requested name.
var ErrUnknownReport = errors.New("unknown report")

// Param is one bind parameter of a report query. Params are bound in
// declaration order. A param with no default is required.
type Param struct {
	Name    string `yaml:"name"`
	Default string `yaml:"default"`
}

// Definition is a named, parameterized aggregate query.
type Definition struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Query       string  `yaml:"query"`
	Params      []Param `yaml:"params"`
}

// Report is the result of one executed definition.
type Report struct {
	Name string           `json:"name"`
	Rows []map[string]any `json:"rows"`
}

// Defaults returns the built-in report definitions.
func Defaults() []Definition {
	return []Definition{
		{
			Name:        "top_endpoints",
			Description: "Most requested endpoints by hit count",
			Query: `SELECT endpoint, COUNT(*) AS hits, SUM(COALESCE(bytes_sent, 0)) AS bytes
				FROM access_log_entries GROUP BY endpoint ORDER BY hits DESC LIMIT ?`,
			Params: []Param{{Name: "limit", Default: "10"}},
		},
		{
			Name:        "status_classes",
			Description: "Request counts grouped by status class (2xx, 3xx, ...)",
			Query: `SELECT (status / 100) AS class, COUNT(*) AS hits
				FROM access_log_entries GROUP BY class ORDER BY class`,
		},
		{
			Name:        "bytes_per_day",
			Description: "Bytes sent per calendar day",
			Query: `SELECT DATE(timestamp) AS day, SUM(COALESCE(bytes_sent, 0)) AS bytes, COUNT(*) AS hits
				FROM access_log_entries GROUP BY day ORDER BY day`,
		},
		{
			Name:        "hourly_traffic",
			Description: "Request counts by hour of day",
			Query: `SELECT EXTRACT(HOUR FROM timestamp) AS hour, COUNT(*) AS hits
				FROM access_log_entries GROUP BY hour ORDER BY hour`,
		},
		{
			Name:        "top_user_agents",
			Description: "Most frequent user agents",
			Query: `SELECT user_agent, COUNT(*) AS hits FROM access_log_entries
				WHERE user_agent IS NOT NULL GROUP BY user_agent ORDER BY hits DESC LIMIT ?`,
			Params: []Param{{Name: "limit", Default: "10"}},
		},
		{
			Name:        "run_failures",
			Description: "Rejected line counts per ETL run",
			Query: `SELECT id AS run_id, lines, records,
				syntax_failures + range_failures + encoding_failures AS failures
				FROM import_runs WHERE state = 'completed' ORDER BY id DESC LIMIT ?`,
			Params: []Param{{Name: "limit", Default: "20"}},
		},
	}
}

// LoadFile reads extra report definitions from a YAML file.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reports file: %w", err)
	}

	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse reports file: %w", err)
	}
	for _, def := range defs {
		if def.Name == "" || def.Query == "" {
			return nil, fmt.Errorf("report definition missing name or query")
		}
	}
	return defs, nil
}

type Service struct {
	db    *gorm.DB
	log   *logrus.Entry
	defs  map[string]Definition
	order []string
}

// NewService builds a report service from the defaults plus any extra
// definitions. Extras with a known name override the built-in.
func NewService(logger *logrus.Logger, db *gorm.DB, extra []Definition) *Service {
	s := &Service{
		db:   db,
		log:  logger.WithField("component", "analytics"),
		defs: make(map[string]Definition),
	}
	for _, def := range append(Defaults(), extra...) {
		if _, seen := s.defs[def.Name]; !seen {
			s.order = append(s.order, def.Name)
		}
		s.defs[def.Name] = def
	}
	return s
}

// List returns all definitions in registration order.
func (s *Service) List() []Definition {
	defs := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, s.defs[name])
	}
	return defs
}

// Run executes a report with the given arguments. Missing arguments
// fall back to the parameter defaults.
func (s *Service) Run(ctx context.Context, name string, args map[string]string) (*Report, error) {
	def, ok := s.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReport, name)
	}

	binds, err := bindValues(def, args)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := s.db.WithContext(ctx).Raw(def.Query, binds...).Scan(&rows).Error; err != nil {
		s.log.WithError(err).WithField("report", name).Error("Report query failed")
		return nil, fmt.Errorf("run report %s: %w", name, err)
	}

	return &Report{Name: name, Rows: rows}, nil
}

// bindValues resolves declared params against caller arguments, in
// declaration order.
func bindValues(def Definition, args map[string]string) ([]any, error) {
	binds := make([]any, 0, len(def.Params))
	for _, p := range def.Params {
		raw, ok := args[p.Name]
		if !ok || raw == "" {
			raw = p.Default
		}
		if raw == "" {
			return nil, fmt.Errorf("report %s: missing required parameter %q", def.Name, p.Name)
		}
		binds = append(binds, coerce(raw))
	}
	return binds, nil
}

// coerce converts an argument string to the most specific type so the
// driver binds integers as integers.
func coerce(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
