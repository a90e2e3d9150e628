package envfile

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/ochinchina/stackpanel/faults"
)

// keyRegex matches the keys this package manages. Keys must start with a letter
// or underscore and contain only alphanumerics and underscores.
var keyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Line is one line of the environment file. Lines that are not KEY=VALUE
// (comments, blanks, anything malformed) have an empty Key and are written
// back exactly as Raw.
type Line struct {
	Key   string
	Value string
	Raw   string
}

// IsPair returns true if the line is a KEY=VALUE pair
func (l Line) IsPair() bool {
	return l.Key != ""
}

// String renders the line as it is written to the file
func (l Line) String() string {
	if l.IsPair() {
		return l.Key + "=" + l.Value
	}
	return l.Raw
}

// Pair is a key and the value to store for it
type Pair struct {
	Key   string
	Value string
}

// Entries is the ordered content of an environment file
type Entries []Line

// ValidKey returns true if key can be stored
func ValidKey(key string) bool {
	return keyRegex.MatchString(key)
}

// ParseLine classifies a single line. Parsing never fails: anything that is not
// KEY=VALUE is kept as passthrough.
func ParseLine(raw string) Line {
	pos := strings.IndexByte(raw, '=')
	if pos <= 0 || !ValidKey(raw[:pos]) {
		return Line{Raw: raw}
	}
	return Line{Key: raw[:pos], Value: raw[pos+1:], Raw: raw}
}

// Parse reads all lines from r. Values are taken verbatim up to the end of line.
func Parse(r io.Reader) (Entries, error) {
	reader := bufio.NewReader(r)
	entries := make(Entries, 0)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		// the last line may not end with a newline
		if len(line) > 0 {
			entries = append(entries, ParseLine(strings.TrimSuffix(line, "\n")))
		}
		if err != nil {
			break
		}
	}
	return entries, nil
}

// ParseString parses the content of an environment file
func ParseString(content string) Entries {
	entries, _ := Parse(strings.NewReader(content))
	return entries
}

// Get returns the value of key. If the key appears more than once the last
// occurrence wins.
func (e Entries) Get(key string) (string, bool) {
	value, found := "", false
	for _, l := range e {
		if l.Key == key {
			value, found = l.Value, true
		}
	}
	return value, found
}

// Value returns the value of key or "" if absent
func (e Entries) Value(key string) string {
	v, _ := e.Get(key)
	return v
}

// Map returns the key/value pairs, last occurrence winning
func (e Entries) Map() map[string]string {
	m := make(map[string]string)
	for _, l := range e {
		if l.IsPair() {
			m[l.Key] = l.Value
		}
	}
	return m
}

// Keys returns the distinct keys in file order
func (e Entries) Keys() []string {
	seen := make(map[string]bool)
	keys := make([]string, 0)
	for _, l := range e {
		if l.IsPair() && !seen[l.Key] {
			seen[l.Key] = true
			keys = append(keys, l.Key)
		}
	}
	return keys
}

// Upsert applies all pairs in a single pass. A line starting with KEY= is
// replaced entirely, keys not found are appended in argument order. Other
// lines keep their position and content. The receiver is not modified.
func (e Entries) Upsert(pairs ...Pair) (Entries, error) {
	values := make(map[string]string, len(pairs))
	order := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if !ValidKey(p.Key) {
			return nil, faults.ValidationError("invalid environment key %q", p.Key)
		}
		if strings.ContainsAny(p.Value, "\r\n") {
			return nil, faults.ValidationError("value of %s must be a single line", p.Key)
		}
		if _, ok := values[p.Key]; !ok {
			order = append(order, p.Key)
		}
		values[p.Key] = p.Value
	}

	result := make(Entries, 0, len(e)+len(pairs))
	written := make(map[string]bool, len(pairs))
	for _, l := range e {
		v, ok := values[l.Key]
		if !l.IsPair() || !ok {
			result = append(result, l)
			continue
		}
		if written[l.Key] {
			// a duplicate of a key we already rewrote
			continue
		}
		written[l.Key] = true
		result = append(result, Line{Key: l.Key, Value: v, Raw: l.Key + "=" + v})
	}
	for _, k := range order {
		if !written[k] {
			result = append(result, Line{Key: k, Value: values[k], Raw: k + "=" + values[k]})
		}
	}
	return result, nil
}

// Normalize collapses duplicate keys: the first position is kept and the last
// value wins.
func (e Entries) Normalize() Entries {
	last := make(map[string]string)
	count := make(map[string]int)
	for _, l := range e {
		if l.IsPair() {
			last[l.Key] = l.Value
			count[l.Key]++
		}
	}
	result := make(Entries, 0, len(e))
	written := make(map[string]bool)
	for _, l := range e {
		if !l.IsPair() {
			result = append(result, l)
			continue
		}
		if written[l.Key] {
			continue
		}
		written[l.Key] = true
		if count[l.Key] > 1 {
			l = Line{Key: l.Key, Value: last[l.Key], Raw: l.Key + "=" + last[l.Key]}
		}
		result = append(result, l)
	}
	return result
}

// Bytes serializes the entries, one per line with a trailing newline
func (e Entries) Bytes() []byte {
	var buf bytes.Buffer
	for _, l := range e {
		buf.WriteString(l.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// String serializes the entries
func (e Entries) String() string {
	return string(e.Bytes())
}
