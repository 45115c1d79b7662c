package timeseries

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/gocarina/gocsv"
)

// Binary record layout: magic, version, record count, then count pairs
// of (unix seconds int64, value float64), all little-endian. The record
// occupies a contiguous span at the stream's current position; the
// series neither seeks nor owns stream positioning.
const (
	binaryMagic   uint32 = 0x534c5456 // "SLTV"
	binaryVersion uint16 = 1

	// maxBinaryRecords caps a single series record so a corrupt count
	// field cannot drive a huge allocation.
	maxBinaryRecords = 1 << 24
)

// WriteBinary writes the series at w's current position.
func (s *Series) WriteBinary(w io.Writer) error {
	hdr := struct {
		Magic   uint32
		Version uint16
		Count   uint32
	}{binaryMagic, binaryVersion, uint32(len(s.records))}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("timeseries: writing header: %w", err)
	}
	for _, r := range s.records {
		rec := struct {
			Unix  int64
			Value float64
		}{r.Time.Unix(), r.Value}
		if err := binary.Write(w, binary.LittleEndian, rec); err != nil {
			return fmt.Errorf("timeseries: writing record: %w", err)
		}
	}
	return nil
}

// ReadBinary reads one series record from r's current position into s.
// A truncated or corrupt stream returns ErrMalformed and leaves s
// unchanged.
func (s *Series) ReadBinary(r io.Reader) error {
	var hdr struct {
		Magic   uint32
		Version uint16
		Count   uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if hdr.Magic != binaryMagic {
		return fmt.Errorf("%w: bad magic %#x", ErrMalformed, hdr.Magic)
	}
	if hdr.Version != binaryVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, hdr.Version)
	}
	if hdr.Count > maxBinaryRecords {
		return fmt.Errorf("%w: implausible record count %d", ErrMalformed, hdr.Count)
	}

	records := make([]Record, hdr.Count)
	for i := range records {
		var rec struct {
			Unix  int64
			Value float64
		}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrMalformed, i, err)
		}
		records[i] = Record{Time: time.Unix(rec.Unix, 0).UTC(), Value: rec.Value}
	}

	// Build into a fresh series first so s is untouched on failure.
	loaded, err := New(records)
	if err != nil {
		return err
	}
	*s = *loaded
	return nil
}

// csvTime parses RFC 3339 timestamps in series CSV files.
type csvTime struct {
	time.Time
}

func (t *csvTime) UnmarshalCSV(field string) error {
	parsed, err := time.Parse(time.RFC3339, field)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t csvTime) MarshalCSV() (string, error) {
	return t.Format(time.RFC3339), nil
}

type csvRecord struct {
	Time  csvTime `csv:"time"`
	Value float64 `csv:"value"`
}

type csvVectorRecord struct {
	Time csvTime `csv:"time"`
	U    float64 `csv:"u"`
	V    float64 `csv:"v"`
}

// LoadCSV reads a series from a CSV file with `time` (RFC 3339) and
// `value` columns.
func LoadCSV(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("timeseries: %s: %w", path, err)
		}
		return nil, fmt.Errorf("timeseries: opening %s: %w", path, err)
	}
	defer f.Close()

	var rows []csvRecord
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record{Time: row.Time.Time, Value: row.Value}
	}
	s, err := New(records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadVectorCSV reads a pair of component series from a CSV file with
// `time` (RFC 3339), `u` and `v` columns. Both series share the same
// timestamps.
func LoadVectorCSV(path string) (u, v *Series, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("timeseries: %s: %w", path, err)
		}
		return nil, nil, fmt.Errorf("timeseries: opening %s: %w", path, err)
	}
	defer f.Close()

	var rows []csvVectorRecord
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	us := make([]Record, len(rows))
	vs := make([]Record, len(rows))
	for i, row := range rows {
		us[i] = Record{Time: row.Time.Time, Value: row.U}
		vs[i] = Record{Time: row.Time.Time, Value: row.V}
	}
	if u, err = New(us); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if v, err = New(vs); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, v, nil
}
