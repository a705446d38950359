package mi

import (
	"strconv"
	"strings"
)

// Type classifies a GDB/MI output record.
type Type int

const (
	// Notify is an out-of-band asynchronous notification ("*stopped,..."
	// exec records and "=thread-created,..." notify records).
	Notify Type = iota
	// Result is a synchronous command completion record ("^done", "^error,...").
	Result
	// Console is debugger console output ("~\"...\"") — the stream that
	// carries the text a user would see for a command.
	Console
	// Log is debugger internal log output ("&\"...\"").
	Log
	// Target is output from the program being debugged ("@\"...\"").
	Target
	// Prompt is the "(gdb)" ready marker.
	Prompt
	// Other is any line that matches no known record form.
	Other
)

// String returns the lowercase name of the record type.
func (t Type) String() string {
	switch t {
	case Notify:
		return "notify"
	case Result:
		return "result"
	case Console:
		return "console"
	case Log:
		return "log"
	case Target:
		return "target"
	case Prompt:
		return "prompt"
	default:
		return "other"
	}
}

// Record is one parsed unit of the MI output stream.
//
// Class is the record's sub-kind: for Result records it is the result class
// ("done", "running", "error", "exit"); for Notify records it is the async
// class ("stopped", "thread-group-exited", ...). It is empty for the stream
// record types.
//
// Payload carries the record's textual content: the unescaped string for
// Console/Log/Target records, the error message for "^error" results, and
// the raw property list for Notify records (retained for logging).
type Record struct {
	Type    Type
	Class   string
	Payload string
	Raw     string
}

// IsNotify reports whether the record is an asynchronous notification.
func (r Record) IsNotify() bool {
	return r.Type == Notify
}

// Matches reports whether the record's (type, class) pair equals the target.
func (r Record) Matches(t Type, class string) bool {
	return r.Type == t && r.Class == class
}

// Parse classifies one raw MI output line into a Record.
func Parse(line string) Record {
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return Record{Type: Other, Raw: line}
	}

	switch trimmed[0] {
	case '^':
		class, rest := splitClass(trimmed[1:])
		rec := Record{Type: Result, Class: class, Raw: line}
		if class == "error" {
			rec.Payload = errorMessage(rest)
		}
		return rec
	case '*', '=':
		class, rest := splitClass(trimmed[1:])
		return Record{Type: Notify, Class: class, Payload: rest, Raw: line}
	case '~':
		return Record{Type: Console, Payload: unquote(trimmed[1:]), Raw: line}
	case '&':
		return Record{Type: Log, Payload: unquote(trimmed[1:]), Raw: line}
	case '@':
		return Record{Type: Target, Payload: unquote(trimmed[1:]), Raw: line}
	}

	if strings.TrimSpace(trimmed) == "(gdb)" {
		return Record{Type: Prompt, Raw: line}
	}
	return Record{Type: Other, Payload: trimmed, Raw: line}
}

// splitClass splits "class,rest" into its class word and the remainder.
func splitClass(s string) (class, rest string) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// errorMessage extracts the msg="..." text from a ^error result body.
func errorMessage(body string) string {
	const key = `msg="`
	i := strings.Index(body, key)
	if i < 0 {
		return body
	}
	rest := body[i+len(key):]
	// Find the closing quote, skipping over backslash escapes. The escape
	// sequences stay intact here; unescape does the one decoding pass.
	end := len(rest)
	for j := 0; j < len(rest); j++ {
		if rest[j] == '\\' && j+1 < len(rest) {
			j++
			continue
		}
		if rest[j] == '"' {
			end = j
			break
		}
	}
	return unescape(rest[:end])
}

// unquote strips the surrounding double quotes from a C-string record body
// and decodes its escape sequences.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return unescape(s)
}

// unescape decodes the C-style escapes MI uses inside quoted stream output.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			// Octal escapes occasionally show up in target output.
			if isOctal(s[i]) && i+2 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) {
				if v, err := strconv.ParseUint(s[i:i+3], 8, 8); err == nil {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}
