package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sdko-org/logmill/internal/columnar"
	"github.com/sdko-org/logmill/internal/config"
	"github.com/sdko-org/logmill/internal/metrics"
	"github.com/sdko-org/logmill/internal/models"
	"github.com/sdko-org/logmill/internal/parser"
	"github.com/sdko-org/logmill/internal/storage"
	"github.com/sirupsen/logrus"
)

type memStore struct {
	objects map[string]string
}

func (m *memStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = string(data)
	return nil
}

func (m *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(m.objects[key]))})
		}
	}
	return infos, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func newTestRunner(store storage.ObjectStore) *Runner {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRunner(logger, nil, store, metrics.New(prometheus.NewRegistry()), &config.Config{
		CuratedPrefix: "curated/",
		BatchSize:     100,
		ParseWorkers:  2,
	})
}

func TestParseLinesKeepsOrder(t *testing.T) {
	var lines []string
	for i := 0; i < 250; i++ {
		lines = append(lines, fmt.Sprintf(
			`10.0.0.1 - - [15/Jan/2024:10:30:45 +0000] "GET /item/%d HTTP/1.1" 200 10 "-" "-"`, i))
	}
	// A couple of rejects mixed in at known positions.
	lines[7] = "garbage"
	lines[123] = `10.0.0.1 - - [15/Jan/2024:10:30:45 +0000] "GET /x HTTP/1.1" 999 10 "-" "-"`

	for _, workers := range []int{1, 3, 8, 500} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			results := parseLines(lines, workers)
			if len(results) != len(lines) {
				t.Fatalf("got %d results for %d lines", len(results), len(lines))
			}
			for i, res := range results {
				switch i {
				case 7:
					if res.fail == nil || res.fail.Reason != parser.ReasonSyntax {
						t.Errorf("line 7: want syntax failure, got %+v", res)
					}
				case 123:
					if res.fail == nil || res.fail.Reason != parser.ReasonRange {
						t.Errorf("line 123: want range failure, got %+v", res)
					}
				default:
					if res.rec == nil {
						t.Fatalf("line %d: want record, got failure %v", i, res.fail)
					}
					want := fmt.Sprintf("/item/%d", i)
					if res.rec.Endpoint != want {
						t.Errorf("line %d: Endpoint = %q, want %q", i, res.rec.Endpoint, want)
					}
				}
			}
		})
	}
}

func TestReadLineSkipsOversized(t *testing.T) {
	valid := `10.0.0.1 - - [15/Jan/2024:10:30:45 +0000] "GET /after HTTP/1.1" 200 10 "-" "-"`
	input := "first\n" + strings.Repeat("x", maxLineSize+1) + "\n" + valid + "\n"
	reader := bufio.NewReaderSize(strings.NewReader(input), 64*1024)

	line, oversized, err := readLine(reader)
	if err != nil || oversized || line != "first" {
		t.Fatalf("line 1 = (%q, %v, %v)", line, oversized, err)
	}

	line, oversized, err = readLine(reader)
	if err != nil || !oversized || line != "" {
		t.Fatalf("line 2 = (%q, %v, %v), want oversized", line, oversized, err)
	}

	line, oversized, err = readLine(reader)
	if err != nil || oversized {
		t.Fatalf("line 3 = (%q, %v, %v)", line, oversized, err)
	}
	rec, fail := parser.Parse(line)
	if fail != nil {
		t.Fatalf("line after oversized did not parse: %v", fail)
	}
	if rec.Endpoint != "/after" {
		t.Errorf("Endpoint = %q, want /after", rec.Endpoint)
	}

	if _, _, err = readLine(reader); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestProcessObjectToleratesOversizedLine(t *testing.T) {
	store := &memStore{objects: map[string]string{
		"raw/big.log": "not a log line\n" +
			strings.Repeat("x", maxLineSize+1) + "\n" +
			"also not a log line\n",
	}}
	r := newTestRunner(store)

	pq, err := columnar.NewWriter(&bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	var counts tally
	run := &models.ImportRun{ID: 1}

	if err := r.processObject(context.Background(), run, "raw/big.log", pq, &counts); err != nil {
		t.Fatalf("processObject: %v", err)
	}
	if counts.lines != 3 {
		t.Errorf("lines = %d, want 3", counts.lines)
	}
	if counts.syntax != 3 {
		t.Errorf("syntax failures = %d, want 3", counts.syntax)
	}
	if counts.records != 0 {
		t.Errorf("records = %d, want 0", counts.records)
	}
}

func TestParseLinesEmptyInput(t *testing.T) {
	if got := parseLines(nil, 4); len(got) != 0 {
		t.Errorf("parseLines(nil) = %d results", len(got))
	}
}

func TestTally(t *testing.T) {
	var counts tally
	counts.lines = 10
	counts.records = 7
	counts.addFailure(parser.ReasonSyntax)
	counts.addFailure(parser.ReasonSyntax)
	counts.addFailure(parser.ReasonRange)

	var run models.ImportRun
	counts.applyTo(&run)

	if run.Lines != 10 || run.Records != 7 {
		t.Errorf("lines/records = %d/%d", run.Lines, run.Records)
	}
	if run.SyntaxFailures != 2 || run.RangeFailures != 1 || run.EncodingFailures != 0 {
		t.Errorf("failures = %d/%d/%d", run.SyntaxFailures, run.RangeFailures, run.EncodingFailures)
	}
	if run.Failures() != 3 {
		t.Errorf("Failures() = %d, want 3", run.Failures())
	}
}

func TestToEntryConvertsOptionals(t *testing.T) {
	rec, fail := parser.Parse(`127.0.0.1 - frank [10/Oct/2023:13:55:36 -0700] "GET /a HTTP/1.0" 200 2326 "-" "ua"`)
	if fail != nil {
		t.Fatalf("Parse failed: %v", fail)
	}

	entry := toEntry(42, rec)

	if entry.RunID != 42 {
		t.Errorf("RunID = %d", entry.RunID)
	}
	if entry.Identity != nil {
		t.Errorf("Identity = %v, want nil", entry.Identity)
	}
	if entry.User == nil || *entry.User != "frank" {
		t.Errorf("User = %v", entry.User)
	}
	if entry.BytesSent == nil || *entry.BytesSent != 2326 {
		t.Errorf("BytesSent = %v", entry.BytesSent)
	}
	if entry.Referer != nil {
		t.Errorf("Referer = %v, want nil", entry.Referer)
	}
	if entry.UserAgent == nil || *entry.UserAgent != "ua" {
		t.Errorf("UserAgent = %v", entry.UserAgent)
	}
	if !entry.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", entry.Timestamp, rec.Timestamp)
	}
}
