package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
)

// errStopReading marks read errors after which the source cannot continue.
var errStopReading = errors.New("input is no longer readable")

// recordReader yields input records one at a time and returns io.EOF when
// the source is exhausted. Malformed rows return other errors and the
// caller may continue reading unless the error wraps errStopReading.
type recordReader interface {
	Next() (*Record, error)
	Close() error
}

func openReader(path string, format FileFormat) (recordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	switch format {
	case FormatCSV:
		r, err := newCSVReader(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		return r, nil
	case FormatParquet:
		return &parquetReader{file: file, reader: parquet.NewReader(file)}, nil
	case FormatJSON:
		return &jsonReader{file: file, decoder: json.NewDecoder(file)}, nil
	}
	file.Close()
	return nil, fmt.Errorf("unsupported file format: %s", format)
}

type csvReader struct {
	file    *os.File
	reader  *csv.Reader
	idCol   int
	textCol int
	row     int
}

// newCSVReader reads the header and locates the text and optional id
// columns. Rows without an id are numbered from 1.
func newCSVReader(file *os.File) (*csvReader, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	r := &csvReader{file: file, reader: reader, idCol: -1, textCol: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "id":
			r.idCol = i
		case "text":
			r.textCol = i
		}
	}
	if r.textCol < 0 {
		return nil, errors.New("CSV header has no text column")
	}
	return r, nil
}

func (r *csvReader) Next() (*Record, error) {
	row, err := r.reader.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) || err == io.EOF {
			r.row++
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errStopReading, err)
	}
	r.row++

	if r.textCol >= len(row) {
		return nil, fmt.Errorf("row %d has %d fields", r.row, len(row))
	}
	rec := &Record{Text: row[r.textCol], ID: strconv.Itoa(r.row)}
	if r.idCol >= 0 && r.idCol < len(row) && strings.TrimSpace(row[r.idCol]) != "" {
		rec.ID = strings.TrimSpace(row[r.idCol])
	}
	return rec, nil
}

func (r *csvReader) Close() error { return r.file.Close() }

type parquetReader struct {
	file   *os.File
	reader *parquet.Reader
}

func (r *parquetReader) Next() (*Record, error) {
	var rec Record
	if err := r.reader.Read(&rec); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errStopReading, err)
	}
	return &rec, nil
}

func (r *parquetReader) Close() error {
	r.reader.Close()
	return r.file.Close()
}

type jsonReader struct {
	file    *os.File
	decoder *json.Decoder
}

func (r *jsonReader) Next() (*Record, error) {
	var rec Record
	if err := r.decoder.Decode(&rec); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) || err == io.EOF {
			return nil, err
		}
		// the decoder cannot resynchronize after a syntax error
		return nil, fmt.Errorf("%w: %v", errStopReading, err)
	}
	return &rec, nil
}

func (r *jsonReader) Close() error { return r.file.Close() }

// recordWriter receives redacted output rows.
type recordWriter interface {
	Write(records []OutputRecord) error
	Close() error
}

func createWriter(path string) (recordWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	switch DetectFileFormat(path) {
	case FormatParquet:
		return &parquetWriter{file: file, writer: parquet.NewGenericWriter[OutputRecord](file)}, nil
	case FormatJSON:
		return &jsonWriter{file: file, encoder: json.NewEncoder(file)}, nil
	default:
		w := csv.NewWriter(file)
		if err := w.Write([]string{"id", "redacted_text", "redactions", "categories", "job_id"}); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		return &csvWriter{file: file, writer: w}, nil
	}
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[OutputRecord]
}

func (w *parquetWriter) Write(records []OutputRecord) error {
	_, err := w.writer.Write(records)
	return err
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

type jsonWriter struct {
	file    *os.File
	encoder *json.Encoder
}

func (w *jsonWriter) Write(records []OutputRecord) error {
	for i := range records {
		if err := w.encoder.Encode(&records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *jsonWriter) Close() error { return w.file.Close() }

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
}

func (w *csvWriter) Write(records []OutputRecord) error {
	for _, r := range records {
		row := []string{r.ID, r.RedactedText, strconv.FormatInt(r.Redactions, 10), r.Categories, r.JobID}
		if err := w.writer.Write(row); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

func (w *csvWriter) Close() error { return w.file.Close() }
