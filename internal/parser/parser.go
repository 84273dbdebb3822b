// Package parser converts combined-log-format access log lines into
// typed records. Parsing is all-or-nothing: a line either produces a
// fully populated Record or a Failure with a reason, never a partial
// record.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"
)

// Reason classifies why a line was rejected.
type Reason int

const (
	// ReasonSyntax means the line does not match the combined log
	// grammar at all (wrong token count, missing quotes or brackets).
	ReasonSyntax Reason = iota

	// ReasonRange means the line matches the grammar shape but a field
	// value is outside its valid domain (status code out of [100,599],
	// month abbreviation that is not a real month).
	ReasonRange

	// ReasonEncoding means the line is not valid UTF-8.
	ReasonEncoding
)

func (r Reason) String() string {
	switch r {
	case ReasonSyntax:
		return "syntax_mismatch"
	case ReasonRange:
		return "range_violation"
	case ReasonEncoding:
		return "encoding_error"
	}
	return "unknown"
}

// Record is one successfully parsed access log line. Pointer fields
// are nil when the source used the "-" absence marker. A non-nil
// pointer to an empty string is a present-but-empty value, which the
// combined format allows for referer and user agent.
type Record struct {
	Host      string
	Identity  *string
	User      *string
	Timestamp time.Time
	Method    string
	Endpoint  string
	Protocol  string
	Status    int
	BytesSent *uint64
	Referer   *string
	UserAgent *string
}

// Failure is a rejected line. It carries the original text so callers
// can log or quarantine it.
type Failure struct {
	Line   string
	Reason Reason
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Reason, f.Detail)
}

// TimeLayout is the combined log format timestamp layout.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

// combinedRe matches the whole line or nothing. The timestamp and
// request line are shape-checked here; month validity, status range
// and byte counts are checked afterwards so that shape errors and
// domain errors are reported as different reasons.
//
// Status is captured as a digit run rather than exactly three digits:
// "42" has the right shape (digits where digits belong) and is
// rejected as a range violation, while "ABC" fails the grammar.
var combinedRe = regexp.MustCompile(
	`^(\S+) ` + // host
		`(\S+) ` + // identity
		`(\S+) ` + // user
		`\[(\d{2}/[A-Za-z]{3}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4})\] ` + // timestamp
		`"([A-Z]+) (\S+) (HTTP/\d\.\d)" ` + // method endpoint protocol
		`(\d+) ` + // status
		`(\d+|-) ` + // bytes sent
		`"([^"]*)" ` + // referer
		`"([^"]*)"$`, // user agent
)

// Parse converts one raw log line into either a Record or a Failure.
// Exactly one of the results is non-nil. Parse is pure and safe for
// concurrent use; it never panics on input.
func Parse(line string) (*Record, *Failure) {
	if !utf8.ValidString(line) {
		return nil, &Failure{Line: line, Reason: ReasonEncoding, Detail: "line is not valid UTF-8"}
	}

	m := combinedRe.FindStringSubmatch(line)
	if m == nil {
		return nil, &Failure{Line: line, Reason: ReasonSyntax, Detail: "line does not match combined log format"}
	}

	ts, err := time.Parse(TimeLayout, m[4])
	if err != nil {
		return nil, &Failure{Line: line, Reason: ReasonRange, Detail: fmt.Sprintf("invalid timestamp %q", m[4])}
	}

	status, err := strconv.Atoi(m[8])
	if err != nil || len(m[8]) != 3 || status < 100 || status > 599 {
		return nil, &Failure{Line: line, Reason: ReasonRange, Detail: fmt.Sprintf("status code %q out of range", m[8])}
	}

	var bytesSent *uint64
	if m[9] != "-" {
		n, err := strconv.ParseUint(m[9], 10, 64)
		if err != nil {
			return nil, &Failure{Line: line, Reason: ReasonRange, Detail: fmt.Sprintf("byte count %q out of range", m[9])}
		}
		bytesSent = &n
	}

	return &Record{
		Host:      m[1],
		Identity:  optional(m[2]),
		User:      optional(m[3]),
		Timestamp: ts,
		Method:    m[5],
		Endpoint:  m[6],
		Protocol:  m[7],
		Status:    status,
		BytesSent: bytesSent,
		Referer:   optional(m[10]),
		UserAgent: optional(m[11]),
	}, nil
}

// optional maps the "-" absence marker to nil. Any other value,
// including the empty string, is present.
func optional(s string) *string {
	if s == "-" {
		return nil
	}
	return &s
}

// Render writes the record back in combined log format. Absent fields
// render as "-", so a field parsed from a literal "-" and a genuinely
// absent one are indistinguishable after rendering. Parsing the
// rendered line yields a record equal to the original.
func (r *Record) Render() string {
	bytesSent := "-"
	if r.BytesSent != nil {
		bytesSent = strconv.FormatUint(*r.BytesSent, 10)
	}
	return fmt.Sprintf(`%s %s %s [%s] "%s %s %s" %d %s "%s" "%s"`,
		r.Host,
		renderOpt(r.Identity),
		renderOpt(r.User),
		r.Timestamp.Format(TimeLayout),
		r.Method, r.Endpoint, r.Protocol,
		r.Status,
		bytesSent,
		renderOpt(r.Referer),
		renderOpt(r.UserAgent),
	)
}

func renderOpt(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
