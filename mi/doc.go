// Package mi implements the message channel over rr's GDB/MI output stream.
//
// The replay back-end speaks the GDB Machine Interface: a line-oriented
// protocol where each line is a typed record. Asynchronous notifications
// ("*stopped,...", "=thread-created,...") arrive interleaved with
// synchronous command results ("^done", "^error,msg=...") and console
// stream output ("~\"text\""), in no guaranteed grouping relative to the
// command that caused them.
//
// Parse classifies one raw line into a Record. Channel owns the back-end's
// stdin/stdout pair and exposes the two operations the synchronizer needs:
// Send (write one command line, gather the immediate response batch) and
// Poll (bounded-timeout read of newly available records). An empty Poll
// result means "nothing yet, poll again"; ErrClosed means the back-end is
// gone and no further records will ever arrive.
package mi
