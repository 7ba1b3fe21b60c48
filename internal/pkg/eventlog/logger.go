package eventlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/fxamacker/cbor/v2"
)

var ErrClosed = errors.New("eventlog: closed")

// FileLogger appends records to a CBOR file. It is safe for concurrent use.
type FileLogger struct {
	file    *os.File
	encoder *cbor.Encoder
	now     func() time.Time

	mu     sync.Mutex
	closed bool
}

// Open creates path if needed and appends to it.
func Open(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		file:    f,
		encoder: newEncoder(f),
		now:     time.Now,
	}, nil
}

func (l *FileLogger) Write(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.encoder.Encode(r)
}

func (l *FileLogger) PublishEvent(_ context.Context, e model.Event) error {
	return l.Write(eventRecord(e))
}

func (l *FileLogger) PublishState(_ context.Context, d model.Device) error {
	return l.Write(stateRecord(d, l.now()))
}

// Close is safe to call more than once.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
