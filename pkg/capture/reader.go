package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Result is what a capture produced once its stream resolved.
type Result struct {
	// Truncated is set when the stream carried more bytes than the budget.
	Truncated bool
	// Aborted is set when the consumer stopped before the stream ended.
	Aborted bool
	// Snippet is the captured prefix decoded as UTF-8.
	Snippet string
}

// Reader tees a body: every chunk read from the source is handed to the
// caller unchanged while up to budget bytes are decoded into a snippet.
//
// The completion callback runs exactly once, either when the source reports
// end of stream or when the consumer closes the reader early. Closing early
// closes the source too.
type Reader struct {
	src    io.ReadCloser
	budget int
	onDone func(Result)

	mu        sync.Mutex
	out       bytes.Buffer
	dec       *transform.Writer
	captured  int
	truncated bool
	aborted   bool
	done      bool
}

// NewReader wraps src. A budget of zero or less captures nothing but still
// records whether the stream had any bytes at all.
func NewReader(src io.ReadCloser, budget int, onDone func(Result)) *Reader {
	if budget < 0 {
		budget = 0
	}
	r := &Reader{
		src:    src,
		budget: budget,
		onDone: onDone,
	}
	r.dec = transform.NewWriter(&r.out, unicode.UTF8.NewDecoder())
	return r
}

// Read forwards the source read and records the chunk against the budget.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.record(p[:n])
	}
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		r.finish(false)
	case errors.Is(err, context.Canceled):
		// The downstream request context is gone: the client disconnected.
		r.finish(true)
	default:
		r.finish(false)
	}
	return n, err
}

// Close propagates cancellation to the source. If the stream had not ended
// yet the capture completes as aborted.
func (r *Reader) Close() error {
	err := r.src.Close()
	r.finish(true)
	return err
}

func (r *Reader) record(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}

	remaining := r.budget - r.captured
	if len(chunk) > remaining {
		r.truncated = true
		chunk = chunk[:max(remaining, 0)]
	}
	if len(chunk) == 0 {
		return
	}
	r.captured += len(chunk)
	// Writes into a bytes.Buffer only fail on invalid transforms, which the
	// UTF-8 decoder never reports.
	_, _ = r.dec.Write(chunk)
}

func (r *Reader) finish(aborted bool) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	r.aborted = aborted
	// Flush a multi-byte sequence left incomplete at the end of the capture.
	_ = r.dec.Close()
	res := Result{Truncated: r.truncated, Aborted: r.aborted, Snippet: r.out.String()}
	r.mu.Unlock()

	r.deliver(res)
}

func (r *Reader) deliver(res Result) {
	if r.onDone == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[CAPTURE] completion callback panicked: %v", rec)
		}
	}()
	r.onDone(res)
}

// ReadLimited reads at most limit bytes from src for capture purposes and
// reports whether more bytes were available. It stops reading as soon as the
// budget is exceeded.
func ReadLimited(src io.Reader, limit int) ([]byte, bool, error) {
	if limit < 0 {
		limit = 0
	}
	buf, err := io.ReadAll(io.LimitReader(src, int64(limit)+1))
	if len(buf) > limit {
		return buf[:limit], true, err
	}
	return buf, false, err
}

// Decode converts captured bytes to text, replacing invalid sequences.
func Decode(b []byte) string {
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
	}
	return string(out)
}
