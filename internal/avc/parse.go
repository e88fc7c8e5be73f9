// Package avc turns kernel audit text into structured SELinux denial
// records and advisory allow-rules. Nothing here is ever applied to the
// running policy.
package avc

import (
	"bufio"
	"io"
	"strings"
)

const maxLineBytes = 64 * 1024

// Denial is one parsed "avc: denied" record.
type Denial struct {
	RawLine       string
	SourceContext string
	TargetContext string
	TargetClass   string
	// Permission is the raw text inside the braces, possibly several
	// space-separated permissions. Empty when the line carries none.
	Permission string
	// Fields holds every other key=value token, first occurrence wins.
	Fields map[string]string
}

// Permissions splits Permission into its individual names.
func (d Denial) Permissions() []string {
	return strings.Fields(d.Permission)
}

// Qualifies reports whether a line is a candidate AVC denial.
func Qualifies(line string) bool {
	return strings.Contains(line, "avc") && strings.Contains(line, "denied")
}

// ParseLine extracts a denial from one audit line. Lines that are not
// denials, or lack scontext, tcontext or tclass, are rejected.
func ParseLine(line string) (Denial, bool) {
	if !Qualifies(line) {
		return Denial{}, false
	}

	rest, perm := splitPermissions(line)

	d := Denial{
		RawLine:    line,
		Permission: perm,
		Fields:     make(map[string]string),
	}

	for _, tok := range strings.Fields(rest) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" || value == "" {
			continue
		}
		value = unquote(value)

		switch key {
		case "scontext":
			if d.SourceContext == "" {
				d.SourceContext = value
			}
		case "tcontext":
			if d.TargetContext == "" {
				d.TargetContext = value
			}
		case "tclass":
			if d.TargetClass == "" {
				d.TargetClass = value
			}
		default:
			if _, seen := d.Fields[key]; !seen {
				d.Fields[key] = value
			}
		}
	}

	if d.SourceContext == "" || d.TargetContext == "" || d.TargetClass == "" {
		return Denial{}, false
	}

	return d, true
}

// Parse scans text line by line, silently dropping anything ParseLine
// rejects.
func Parse(text string) []Denial {
	denials, _ := ParseReader(strings.NewReader(text))
	return denials
}

// ParseReader is Parse over a stream. Lines longer than maxLineBytes are
// skipped and parsing continues with the next line. The error is only
// non-nil when r fails; parsed denials up to that point are still
// returned.
func ParseReader(r io.Reader) ([]Denial, error) {
	br := bufio.NewReaderSize(r, 4096)

	var (
		denials []Denial
		line    []byte
		tooLong bool
	)
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err == io.EOF {
			return denials, nil
		}
		if err != nil {
			return denials, err
		}

		if !tooLong {
			if len(line)+len(chunk) > maxLineBytes {
				tooLong = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if isPrefix {
			continue
		}

		if !tooLong {
			if d, ok := ParseLine(string(line)); ok {
				denials = append(denials, d)
			}
		}
		line = line[:0]
		tooLong = false
	}
}

// splitPermissions removes the first brace-delimited list from line and
// returns the remainder together with the normalized list contents.
func splitPermissions(line string) (string, string) {
	open := strings.IndexByte(line, '{')
	if open < 0 {
		return line, ""
	}

	end := strings.IndexByte(line[open+1:], '}')
	if end < 0 {
		return line[:open], ""
	}
	end += open + 1

	perm := strings.Join(strings.Fields(line[open+1:end]), " ")

	return line[:open] + " " + line[end+1:], perm
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}

	return s
}
