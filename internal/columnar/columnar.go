// Package columnar writes parsed access log records as parquet, the
// columnar layout the curated side of the bucket holds.
package columnar

import (
	"fmt"
	"io"

	"github.com/sdko-org/logmill/internal/parser"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Row is the flat parquet schema for one access log record. Optional
// combined-log fields map to OPTIONAL parquet columns via pointers.
type Row struct {
	Host      string  `parquet:"name=host, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Identity  *string `parquet:"name=identity, type=BYTE_ARRAY, convertedtype=UTF8"`
	User      *string `parquet:"name=user, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Method    string  `parquet:"name=method, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Endpoint  string  `parquet:"name=endpoint, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Protocol  string  `parquet:"name=protocol, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Status    int32   `parquet:"name=status, type=INT32"`
	BytesSent *int64  `parquet:"name=bytes_sent, type=INT64"`
	Referer   *string `parquet:"name=referer, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserAgent *string `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ToRow converts a parsed record into its parquet row.
func ToRow(rec *parser.Record) Row {
	var bytesSent *int64
	if rec.BytesSent != nil {
		n := int64(*rec.BytesSent)
		bytesSent = &n
	}
	return Row{
		Host:      rec.Host,
		Identity:  rec.Identity,
		User:      rec.User,
		Timestamp: rec.Timestamp.UnixMilli(),
		Method:    rec.Method,
		Endpoint:  rec.Endpoint,
		Protocol:  rec.Protocol,
		Status:    int32(rec.Status),
		BytesSent: bytesSent,
		Referer:   rec.Referer,
		UserAgent: rec.UserAgent,
	}
}

// Writer streams rows into a parquet file backed by an io.Writer.
type Writer struct {
	pw   *writer.ParquetWriter
	rows int64
}

func NewWriter(w io.Writer) (*Writer, error) {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(Row), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &Writer{pw: pw}, nil
}

func (w *Writer) Add(rec *parser.Record) error {
	if err := w.pw.Write(ToRow(rec)); err != nil {
		return fmt.Errorf("write parquet row: %w", err)
	}
	w.rows++
	return nil
}

// Rows reports how many records have been added.
func (w *Writer) Rows() int64 {
	return w.rows
}

// Close flushes row groups and writes the parquet footer.
func (w *Writer) Close() error {
	if err := w.pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	return nil
}
