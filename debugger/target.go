package debugger

import "github.com/replaydev/rr-mcp/mi"

// Target is a (record type, class) pair a wait loop can settle on.
type Target struct {
	Type  mi.Type
	Class string
}

// TargetSet is the set of records that complete a wait. A wait with an
// empty set would never settle, so constructors always return non-empty
// sets and WaitFor rejects empty ones.
type TargetSet []Target

// Contains reports whether rec matches any target in the set.
func (s TargetSet) Contains(rec mi.Record) bool {
	for _, t := range s {
		if rec.Matches(t.Type, t.Class) {
			return true
		}
	}
	return false
}

// AnyIn reports whether any record in recs matches the set.
func (s TargetSet) AnyIn(recs []mi.Record) bool {
	for _, rec := range recs {
		if s.Contains(rec) {
			return true
		}
	}
	return false
}

// DefaultTargets is the settle set for ordinary debugger commands: the
// program stopped, the command completed, or the command failed.
func DefaultTargets() TargetSet {
	return TargetSet{
		{Type: mi.Notify, Class: "stopped"},
		{Type: mi.Result, Class: "done"},
		{Type: mi.Result, Class: "error"},
	}
}

// ReadyTargets is the settle set for session startup: rr's embedded gdb
// announces readiness with a stopped notification at the trace start.
func ReadyTargets() TargetSet {
	return TargetSet{{Type: mi.Notify, Class: "stopped"}}
}

// ExitTargets is the settle set for the exit command: the debuggee's
// thread group going away confirms teardown reached the back-end.
func ExitTargets() TargetSet {
	return TargetSet{{Type: mi.Notify, Class: "thread-group-exited"}}
}
