package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pilotwatch/pilotwatch/agent/internal/config"
)

// maxLineBytes bounds a single sample line.
const maxLineBytes = 64 << 10

// Sample is one line read from a source.
type Sample struct {
	SourceID string
	PilotID  string
	Body     json.RawMessage
	ReadAt   time.Time
}

// Reader emits the samples of one source.
type Reader struct {
	src  config.Source
	open func() (io.ReadCloser, error)
	now  func() time.Time
}

// New returns the Reader for the given source configuration.
func New(src config.Source) (*Reader, error) {
	r := &Reader{src: src, now: time.Now}
	switch src.Type {
	case "file":
		r.open = func() (io.ReadCloser, error) { return os.Open(src.Path) }
	case "stdin":
		r.open = func() (io.ReadCloser, error) { return io.NopCloser(os.Stdin), nil }
	default:
		return nil, fmt.Errorf("source: unsupported type %q", src.Type)
	}
	return r, nil
}

// FromReader returns a Reader over rd. Used for tests and piping.
func FromReader(src config.Source, rd io.Reader) *Reader {
	return &Reader{
		src:  src,
		open: func() (io.ReadCloser, error) { return io.NopCloser(rd), nil },
		now:  time.Now,
	}
}

// Run reads samples and passes each to emit until the source is exhausted
// or ctx is cancelled. A followed source only returns on cancellation.
func (r *Reader) Run(ctx context.Context, emit func(Sample)) error {
	rc, err := r.open()
	if err != nil {
		return fmt.Errorf("source %q: open: %w", r.src.ID, err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, 4096)
	var (
		partial []byte
		tooLong bool // rest of the current line is skipped
	)
	for {
		if ctx.Err() != nil {
			return nil
		}
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			partial = append(partial, chunk...)
			if n := len(bytes.TrimRight(partial, "\r\n")); n > maxLineBytes {
				slog.Warn("source: line too long, dropped", "source", r.src.ID, "bytes", n)
				tooLong = true
				partial = partial[:0]
			}
		}
		switch {
		case err == nil:
			if !tooLong {
				r.handle(partial, emit)
			}
			partial = partial[:0]
			tooLong = false
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if !r.src.Follow {
				if len(partial) > 0 && !tooLong {
					r.handle(partial, emit)
				}
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.src.PollInterval):
			}
		default:
			return fmt.Errorf("source %q: read: %w", r.src.ID, err)
		}
	}
}

func (r *Reader) handle(line []byte, emit func(Sample)) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return
	}
	s, err := parse(line)
	if err != nil {
		slog.Warn("source: sample dropped", "source", r.src.ID, "err", err)
		return
	}
	s.SourceID = r.src.ID
	s.ReadAt = r.now()
	emit(s)
}

// parse extracts the pilot id from one JSON line. The body is copied.
func parse(line []byte) (Sample, error) {
	var head struct {
		PilotID string `json:"pilot_id"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return Sample{}, fmt.Errorf("decode: %w", err)
	}
	if head.PilotID == "" {
		return Sample{}, errors.New("pilot_id is missing")
	}
	return Sample{PilotID: head.PilotID, Body: append(json.RawMessage(nil), line...)}, nil
}
