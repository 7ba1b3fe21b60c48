package eventlog

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects records. Zero fields match everything.
type Filter struct {
	Kind      Kind
	DeviceID  int64
	TimeStart *time.Time
	TimeEnd   *time.Time
}

func (f Filter) matches(r Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.DeviceID != 0 && r.DeviceID != f.DeviceID {
		return false
	}
	if f.TimeStart != nil && r.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !r.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

func NewReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: newDecoder(f), filter: filter}, nil
}

// Next returns the next matching record or io.EOF.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll returns every matching record in path.
func ReadAll(path string, filter Filter) ([]Record, error) {
	r, err := NewReader(path, filter)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
