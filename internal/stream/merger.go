// Package stream reassembles chunked upstream bodies into logical records.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// Strategy selects how a body is split into records.
type Strategy string

const (
	// Lines splits on the delimiter (default "\n") and trims a trailing "\r".
	Lines Strategy = "lines"
	// NDJSON splits on newlines; every record is one JSON value.
	NDJSON Strategy = "ndjson"
	// JSON decodes consecutive top-level values; a top-level array yields one record per element.
	JSON Strategy = "json"
	// SSE splits server-sent events on blank lines and emits the joined data fields.
	SSE Strategy = "sse"
)

// Defaults.
const (
	DefaultBufferSize    = 4 << 10
	JSONBufferSize       = 64 << 10
	DefaultReadTimeout   = 30 * time.Second
	DefaultMaxRecordSize = 8 << 20
)

// Config tunes a Merger.
type Config struct {
	BufferSize    int
	Delimiter     []byte
	ReadTimeout   time.Duration // per Read call; 0 disables (context still applies)
	MaxRecordSize int
	Strategy      Strategy
}

// DefaultConfig is line-oriented text with a 30s read timeout.
func DefaultConfig() Config {
	return Config{
		BufferSize:    DefaultBufferSize,
		Delimiter:     []byte("\n"),
		ReadTimeout:   DefaultReadTimeout,
		MaxRecordSize: DefaultMaxRecordSize,
		Strategy:      Lines,
	}
}

// Merger buffers a reader until complete records are available. Not safe for concurrent use;
// create one per response.
type Merger struct {
	cfg Config
}

// New creates a Merger, filling zero fields from DefaultConfig.
func New(cfg Config) *Merger {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if len(cfg.Delimiter) == 0 {
		cfg.Delimiter = def.Delimiter
	}
	if cfg.ReadTimeout < 0 {
		cfg.ReadTimeout = 0
	}
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = def.MaxRecordSize
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	return &Merger{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Merger) Config() Config { return m.cfg }

// OptimizeStreaming picks the strategy, delimiter and buffer size for a declared content type.
func (m *Merger) OptimizeStreaming(contentType string) Strategy {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == "application/x-ndjson", mediaType == "application/jsonl",
		mediaType == "application/json-seq", mediaType == "application/stream+json":
		m.cfg.Strategy = NDJSON
		m.cfg.Delimiter = []byte("\n")
		m.cfg.BufferSize = max(m.cfg.BufferSize, JSONBufferSize)
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		m.cfg.Strategy = JSON
		m.cfg.BufferSize = max(m.cfg.BufferSize, JSONBufferSize)
	case mediaType == "text/event-stream":
		m.cfg.Strategy = SSE
		m.cfg.Delimiter = []byte("\n\n")
	default:
		m.cfg.Strategy = Lines
		m.cfg.Delimiter = []byte("\n")
	}
	return m.cfg.Strategy
}

// ReadAll collects every record of r.
func (m *Merger) ReadAll(ctx context.Context, r io.Reader) ([][]byte, error) {
	var out [][]byte
	err := m.Merge(ctx, r, func(rec []byte) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Merge reads r and calls emit once per complete record, in order. Partial fragments are
// held across reads; a trailing fragment is flushed at EOF. A read that exceeds ReadTimeout
// returns a *domain.TimeoutError. The caller owns r and must close it to release a blocked read.
func (m *Merger) Merge(ctx context.Context, r io.Reader, emit func([]byte) error) error {
	src := newTimedReader(ctx, r, m.cfg.BufferSize, m.cfg.ReadTimeout)
	defer src.stop()

	if m.cfg.Strategy == JSON {
		return m.mergeJSON(src, emit)
	}
	return m.mergeDelimited(src, emit)
}

func (m *Merger) mergeDelimited(src *timedReader, emit func([]byte) error) error {
	delim := m.cfg.Delimiter
	var buf []byte

	flush := func(rec []byte) error {
		rec = m.shape(rec)
		if rec == nil {
			return nil
		}
		return emit(rec)
	}

	for {
		data, readErr := src.next()
		buf = append(buf, data...)

		for {
			idx := bytes.Index(buf, delim)
			if idx < 0 {
				break
			}
			rec := append([]byte(nil), buf[:idx]...)
			buf = buf[idx+len(delim):]
			if err := flush(rec); err != nil {
				return err
			}
		}

		if len(buf) > m.cfg.MaxRecordSize {
			return fmt.Errorf("%w: %d bytes without delimiter", domain.ErrRecordTooLarge, len(buf))
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				return readErr
			}
			if len(buf) > 0 {
				return flush(append([]byte(nil), buf...))
			}
			return nil
		}
	}
}

// shape post-processes one delimited record; nil means "skip".
func (m *Merger) shape(rec []byte) []byte {
	switch m.cfg.Strategy {
	case SSE:
		return sseData(rec)
	case NDJSON:
		rec = bytes.TrimSpace(rec)
	default:
		rec = bytes.TrimSuffix(rec, []byte("\r"))
	}
	if len(bytes.TrimSpace(rec)) == 0 {
		return nil
	}
	return rec
}

// sseData joins the "data:" lines of one event. Events without data (comments, keep-alives) are skipped.
func sseData(event []byte) []byte {
	var parts [][]byte
	for _, line := range bytes.Split(event, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		v := bytes.TrimPrefix(line, []byte("data:"))
		v = bytes.TrimPrefix(v, []byte(" "))
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return nil
	}
	return bytes.Join(parts, []byte("\n"))
}

func (m *Merger) mergeJSON(src *timedReader, emit func([]byte) error) error {
	br := bufio.NewReaderSize(src, m.cfg.BufferSize)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("decode json stream: %w", err)
		}
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return fmt.Errorf("decode json element: %w", err)
			}
			if err := emit(raw); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("decode json stream: %w", err)
		}
	}

	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode json record: %w", err)
		}
		if err := emit(raw); err != nil {
			return err
		}
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

type chunk struct {
	data []byte
	err  error
}

// timedReader moves blocking Read calls onto a goroutine so each one can be bounded
// by a timer and by ctx.
type timedReader struct {
	ctx     context.Context
	timeout time.Duration
	ch      chan chunk
	done    chan struct{}
	pending []byte
	err     error
}

func newTimedReader(ctx context.Context, r io.Reader, size int, timeout time.Duration) *timedReader {
	t := &timedReader{
		ctx:     ctx,
		timeout: timeout,
		ch:      make(chan chunk),
		done:    make(chan struct{}),
	}
	go t.pump(r, size)
	return t
}

func (t *timedReader) pump(r io.Reader, size int) {
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		select {
		case t.ch <- chunk{data: buf[:n], err: err}:
		case <-t.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (t *timedReader) stop() { close(t.done) }

// next returns the next chunk of data. err is io.EOF at the end of the stream.
func (t *timedReader) next() ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}

	var timeout <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case c := <-t.ch:
		if c.err != nil {
			t.err = c.err
		}
		return c.data, c.err
	case <-timeout:
		t.err = &domain.TimeoutError{Op: "stream read", Err: fmt.Errorf("no data within %s", t.timeout)}
		return nil, t.err
	case <-t.ctx.Done():
		t.err = &domain.TimeoutError{Op: "stream read", Err: t.ctx.Err()}
		return nil, t.err
	}
}

// Read lets the JSON decoder consume the same bounded reads.
func (t *timedReader) Read(p []byte) (int, error) {
	for len(t.pending) == 0 {
		data, err := t.next()
		t.pending = data
		if len(data) == 0 && err != nil {
			return 0, err
		}
		if err != nil {
			break
		}
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}
