package mi

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrClosed is returned by Poll when the back-end's output stream has
// closed and every buffered record has been consumed. Observing it is the
// only way a wait loop learns the back-end is gone.
var ErrClosed = errors.New("mi: channel closed")

// recordBuffer bounds how many parsed records can pile up between polls.
// rr emits bursts around stops; 256 comfortably covers a backtrace burst.
const recordBuffer = 256

// Channel adapts the replay back-end's line streams into discrete parsed
// records. A single reader goroutine owns the output stream; Poll is the
// single-consumer accessor the synchronizer loops on.
type Channel struct {
	in      io.Writer
	records chan Record
	log     *slog.Logger
}

// NewChannel starts reading MI records from r and returns a channel that
// writes command lines to w. The reader goroutine exits when r reaches EOF
// or fails, which in turn makes Poll return ErrClosed once drained.
func NewChannel(w io.Writer, r io.Reader, log *slog.Logger) *Channel {
	c := &Channel{
		in:      w,
		records: make(chan Record, recordBuffer),
		log:     log,
	}
	go c.readLoop(r)
	return c
}

// readLoop parses each output line into a Record and buffers it for Poll.
func (c *Channel) readLoop(r io.Reader) {
	defer close(c.records)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rec := Parse(scanner.Text())
		c.log.Debug("record", "type", rec.Type.String(), "class", rec.Class, "raw", rec.Raw)
		c.records <- rec
	}
	if err := scanner.Err(); err != nil {
		c.log.Debug("output stream error", "error", err)
		return
	}
	c.log.Debug("output stream EOF")
}

// Send writes one command line to the back-end and then gathers whatever
// records arrive within window. The immediate batch lets a caller notice a
// command that settles instantly without entering its poll loop.
func (c *Channel) Send(cmd string, window time.Duration) ([]Record, error) {
	if _, err := fmt.Fprintf(c.in, "%s\n", cmd); err != nil {
		return nil, fmt.Errorf("failed to write command: %w", err)
	}
	recs, err := c.Poll(window)
	if errors.Is(err, ErrClosed) && len(recs) == 0 {
		// The write may have raced with back-end exit; surface closure.
		return nil, ErrClosed
	}
	return recs, nil
}

// Poll returns the records that become available within timeout, preserving
// arrival order. An empty slice on timeout is expected steady-state, not an
// error; ErrClosed is returned only once the stream has closed and no
// buffered records remain.
func (c *Channel) Poll(timeout time.Duration) ([]Record, error) {
	var out []Record

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec, ok := <-c.records:
		if !ok {
			return nil, ErrClosed
		}
		out = append(out, rec)
	case <-timer.C:
		return nil, nil
	}

	// Drain whatever else is already buffered without waiting further.
	for {
		select {
		case rec, ok := <-c.records:
			if !ok {
				return out, nil
			}
			out = append(out, rec)
		default:
			return out, nil
		}
	}
}
