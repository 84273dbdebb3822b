package models

import (
	"time"
)

// Run states for ImportRun.
const (
	RunStateRunning   = "running"
	RunStateCompleted = "completed"
	RunStateFailed    = "failed"
)

// AccessLogEntry is the warehouse row for one parsed access log line.
// Nullable columns mirror the "-" absence marker of the combined log
// format.
type AccessLogEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     uint      `gorm:"index;not null" json:"run_id"`
	Host      string    `gorm:"type:varchar(255);not null;index" json:"host"`
	Identity  *string   `gorm:"type:varchar(255)" json:"identity"`
	User      *string   `gorm:"type:varchar(255)" json:"user"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Method    string    `gorm:"type:varchar(10);not null" json:"method"`
	Endpoint  string    `gorm:"type:text;not null;index:,length:256" json:"endpoint"`
	Protocol  string    `gorm:"type:varchar(10);not null" json:"protocol"`
	Status    int       `gorm:"not null;index" json:"status"`
	BytesSent *int64    `json:"bytes_sent"`
	Referer   *string   `gorm:"type:text" json:"referer"`
	UserAgent *string   `gorm:"type:text" json:"user_agent"`
}

// ImportRun tracks one ETL execution over an object prefix, including
// the per-reason failure counts exposed as the observability signal
// for rejected lines.
type ImportRun struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Prefix           string     `gorm:"type:varchar(512);not null;index" json:"prefix"`
	State            string     `gorm:"type:varchar(16);not null;index" json:"state"`
	StartedAt        time.Time  `gorm:"index;not null" json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	Objects          int        `gorm:"not null;default:0" json:"objects"`
	Lines            int64      `gorm:"not null;default:0" json:"lines"`
	Records          int64      `gorm:"not null;default:0" json:"records"`
	SyntaxFailures   int64      `gorm:"not null;default:0" json:"syntax_failures"`
	RangeFailures    int64      `gorm:"not null;default:0" json:"range_failures"`
	EncodingFailures int64      `gorm:"not null;default:0" json:"encoding_failures"`
	OutputKey        string     `gorm:"type:varchar(512)" json:"output_key"`
	Error            string     `gorm:"type:text" json:"error,omitempty"`
}

func (AccessLogEntry) TableName() string {
	return "access_log_entries"
}

func (ImportRun) TableName() string {
	return "import_runs"
}

// Failures returns the total rejected line count across all reasons.
func (r *ImportRun) Failures() int64 {
	return r.SyntaxFailures + r.RangeFailures + r.EncodingFailures
}
