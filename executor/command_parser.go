package executor

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseCommand splits a command line into an argument vector.
//
// Words are separated by white space. Single quotes keep everything up to the
// closing quote literally, double quotes keep white space and honour backslash
// escapes, and a backslash outside quotes escapes the next character. Quotes may
// appear in the middle of a word (args="a b" becomes args=a b). No variable,
// glob or operator expansion is performed.
func ParseCommand(command string) ([]string, error) {
	args := make([]string, 0)
	var word strings.Builder
	inWord := false

	for i := 0; i < len(command); i++ {
		ch := command[i]
		switch {
		case ch == '\\':
			if i+1 < len(command) {
				i++
				word.WriteByte(command[i])
			}
			inWord = true
		case ch == '\'':
			k := strings.IndexByte(command[i+1:], '\'')
			if k == -1 {
				return nil, fmt.Errorf("unterminated single quote in %q", command)
			}
			word.WriteString(command[i+1 : i+1+k])
			i += k + 1
			inWord = true
		case ch == '"':
			k := findChar(command, i+1, '"')
			if k == -1 {
				return nil, fmt.Errorf("unterminated double quote in %q", command)
			}
			word.WriteString(unescape(command[i+1 : k]))
			i = k
			inWord = true
		case unicode.IsSpace(rune(ch)):
			if inWord {
				args = append(args, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteByte(ch)
			inWord = true
		}
	}
	if inWord {
		args = append(args, word.String())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no command from empty string")
	}
	return args, nil
}

// find the position of byte ch in s from offset, skipping escaped bytes
//
// return: -1 if ch is not found
func findChar(s string, offset int, ch byte) int {
	for i := offset; i < len(s); i++ {
		if s[i] == '\\' {
			i++
		} else if s[i] == ch {
			return i
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// QuoteArg quotes an argument so that ParseCommand returns it unchanged
func QuoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	if strings.IndexFunc(arg, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\'' || r == '"' || r == '\\'
	}) == -1 {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
