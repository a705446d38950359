package debugger

import (
	"fmt"
	"strings"
	"time"

	"github.com/replaydev/rr-mcp/mi"
)

// Conn is the slice of a message channel the synchronizer needs. mi.Channel
// implements it; tests substitute a scripted fake.
type Conn interface {
	// Send writes one command line and returns the records that arrive
	// within window.
	Send(cmd string, window time.Duration) ([]mi.Record, error)

	// Poll returns the records available within timeout. An empty result
	// means nothing arrived yet; mi.ErrClosed means the stream is gone.
	Poll(timeout time.Duration) ([]mi.Record, error)
}

var _ Conn = (*mi.Channel)(nil)

// WaitFor polls conn until a record matching targets arrives, accumulating
// every record seen along the way. There is no overall deadline: commands
// like reverse-continue legitimately take a long time, and a dead back-end
// surfaces as mi.ErrClosed from Poll, which ends the wait with whatever
// was collected so far.
func WaitFor(conn Conn, targets TargetSet, interval time.Duration) ([]mi.Record, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("empty target set would wait forever")
	}

	var all []mi.Record
	for {
		batch, err := conn.Poll(interval)
		if err != nil {
			return all, err
		}
		if len(batch) == 0 {
			continue
		}
		all = append(all, batch...)
		if targets.AnyIn(batch) {
			return all, nil
		}
	}
}

// RunAndWait sends cmd and collects records until one matches targets.
// If the immediate response batch already contains a target, the poll loop
// is skipped entirely.
func RunAndWait(conn Conn, cmd string, targets TargetSet, interval time.Duration) ([]mi.Record, error) {
	batch, err := conn.Send(cmd, interval)
	if err != nil {
		return batch, err
	}
	if targets.AnyIn(batch) {
		return batch, nil
	}

	rest, err := WaitFor(conn, targets, interval)
	return append(batch, rest...), err
}

// Settle reduces a wait's accumulated records to the command's user-visible
// output: the concatenated payloads of every non-notification record that
// carries one. Notifications are machine-oriented state changes, not
// command output, so they are dropped.
func Settle(records []mi.Record) string {
	var b strings.Builder
	for _, rec := range records {
		if rec.IsNotify() || rec.Payload == "" {
			continue
		}
		b.WriteString(rec.Payload)
	}
	return b.String()
}

// Truncate caps s at max bytes, appending an ellipsis marker when output
// was dropped. Backtraces through deep recursion can be enormous and the
// consumer is an agent context window, not a human pager.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
