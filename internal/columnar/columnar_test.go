package columnar

import (
	"bytes"
	"testing"

	"github.com/sdko-org/logmill/internal/parser"
)

func parseLine(t *testing.T, line string) *parser.Record {
	t.Helper()
	rec, fail := parser.Parse(line)
	if fail != nil {
		t.Fatalf("Parse(%q) failed: %v", line, fail)
	}
	return rec
}

func TestToRow(t *testing.T) {
	rec := parseLine(t, `127.0.0.1 - frank [10/Oct/2023:13:55:36 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326 "-" "-"`)

	row := ToRow(rec)

	if row.Host != "127.0.0.1" {
		t.Errorf("Host = %q", row.Host)
	}
	if row.Identity != nil {
		t.Errorf("Identity = %q, want nil", *row.Identity)
	}
	if row.User == nil || *row.User != "frank" {
		t.Errorf("User = %v, want frank", row.User)
	}
	if row.Status != 200 {
		t.Errorf("Status = %d", row.Status)
	}
	if row.BytesSent == nil || *row.BytesSent != 2326 {
		t.Errorf("BytesSent = %v, want 2326", row.BytesSent)
	}
	if row.Referer != nil || row.UserAgent != nil {
		t.Errorf("Referer/UserAgent = %v/%v, want nil", row.Referer, row.UserAgent)
	}
	if row.Timestamp != rec.Timestamp.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", row.Timestamp, rec.Timestamp.UnixMilli())
	}
}

func TestToRowAbsentBytes(t *testing.T) {
	rec := parseLine(t, `10.0.0.1 - - [15/Jan/2024:10:30:45 +0000] "GET / HTTP/1.1" 304 - "" "curl/8.0"`)

	row := ToRow(rec)

	if row.BytesSent != nil {
		t.Errorf("BytesSent = %v, want nil", row.BytesSent)
	}
	if row.Referer == nil || *row.Referer != "" {
		t.Errorf("Referer = %v, want present empty", row.Referer)
	}
	if row.UserAgent == nil || *row.UserAgent != "curl/8.0" {
		t.Errorf("UserAgent = %v", row.UserAgent)
	}
}

func TestWriterProducesParquet(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter() error: %v", err)
	}

	lines := []string{
		`127.0.0.1 - frank [10/Oct/2023:13:55:36 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326 "-" "-"`,
		`10.0.0.1 - - [15/Jan/2024:10:30:45 +0000] "POST /orders HTTP/1.1" 201 99 "https://example.com" "Mozilla/5.0"`,
	}
	for _, line := range lines {
		if err := w.Add(parseLine(t, line)); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}

	if w.Rows() != 2 {
		t.Errorf("Rows() = %d, want 2", w.Rows())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	out := buf.Bytes()
	if len(out) < 8 {
		t.Fatalf("parquet output too short: %d bytes", len(out))
	}
	// Parquet files start with the PAR1 magic and end with it too.
	if string(out[:4]) != "PAR1" || string(out[len(out)-4:]) != "PAR1" {
		t.Errorf("output missing parquet magic markers")
	}
}
