// Package metrics exposes the pipeline's prometheus counters. Rejected
// lines are data, so their counts are an observability signal rather
// than errors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LinesTotal    prometheus.Counter
	RecordsTotal  prometheus.Counter
	FailuresTotal *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	ObjectsTotal  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "logmill_lines_total",
			Help: "Raw log lines read from object storage.",
		}),
		RecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "logmill_records_total",
			Help: "Lines successfully parsed into access log records.",
		}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "logmill_parse_failures_total",
			Help: "Rejected log lines by failure reason.",
		}, []string{"reason"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "logmill_runs_total",
			Help: "Completed ETL runs by final state.",
		}, []string{"state"}),
		ObjectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "logmill_objects_total",
			Help: "Raw log objects processed.",
		}),
	}
}
