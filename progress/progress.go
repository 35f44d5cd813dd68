// Package progress reports byte-count events for uploads and downloads to a
// caller-supplied observer, with optional throttling.
package progress

import (
	"io"
	"math"
)

// Event describes the state of one transfer at a point in time.
type Event struct {
	// Transferred is the number of bytes moved so far.
	Transferred int64
	// Total is the expected byte count, or 0 when unknown.
	Total int64
	// Known reports whether Total is meaningful.
	Known bool
	// Fraction is Transferred/Total clamped to [0, 1], or 0 when the total
	// is unknown or zero.
	Fraction float64
	// Percent is Fraction rounded to an integer percentage.
	Percent int
}

// NewEvent builds an Event, deriving Fraction and Percent from the counts.
func NewEvent(transferred, total int64) Event {
	e := Event{
		Transferred: transferred,
		Total:       total,
		Known:       total > 0,
	}
	if e.Known {
		e.Fraction = float64(transferred) / float64(total)
		if e.Fraction > 1 {
			e.Fraction = 1
		}
		e.Percent = int(math.Round(e.Fraction * 100))
	}
	return e
}

// Observer receives progress events. Implementations must be fast; they are
// invoked on the transfer path.
type Observer interface {
	OnProgress(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnProgress implements Observer.
func (f ObserverFunc) OnProgress(e Event) {
	f(e)
}

// Reader counts bytes flowing through an io.Reader and pushes an event to the
// observer after every read. Fraction is monotone non-decreasing because the
// byte count only grows.
type Reader struct {
	r           io.Reader
	total       int64
	transferred int64
	observer    Observer
}

// NewReader wraps r with progress accounting against the given total
// (0 = unknown). A nil observer yields a pass-through reader.
func NewReader(r io.Reader, total int64, observer Observer) *Reader {
	return &Reader{r: r, total: total, observer: observer}
}

// Read implements io.Reader.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
		if pr.observer != nil {
			pr.observer.OnProgress(NewEvent(pr.transferred, pr.total))
		}
	}
	return n, err
}

// Transferred returns the byte count moved so far.
func (pr *Reader) Transferred() int64 {
	return pr.transferred
}

// ReadCloser is a Reader over an io.ReadCloser; Close is forwarded.
type ReadCloser struct {
	Reader
	closer io.Closer
}

// NewReadCloser wraps rc with progress accounting.
func NewReadCloser(rc io.ReadCloser, total int64, observer Observer) *ReadCloser {
	return &ReadCloser{
		Reader: Reader{r: rc, total: total, observer: observer},
		closer: rc,
	}
}

// Close implements io.Closer.
func (pr *ReadCloser) Close() error {
	return pr.closer.Close()
}
