package cmake

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnclosedQuote is returned by SplitArgs for an unterminated quote.
var ErrUnclosedQuote = errors.New("unclosed quote in arguments")

// ErrTrailingEscape is returned by SplitArgs when input ends in a backslash.
var ErrTrailingEscape = errors.New("trailing escape in arguments")

// SplitArgs splits extra tool arguments the way a POSIX shell splits words.
// Single quotes are literal; inside double quotes a backslash only escapes
// '"', '\\', '$' and '`'.
func SplitArgs(input string) ([]string, error) {
	var (
		args    []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, ch := range input {
		switch {
		case escaped:
			if quote == '"' && !strings.ContainsRune("\"\\$`", ch) {
				word.WriteRune('\\')
			}
			word.WriteRune(ch)
			escaped = false
		case ch == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				word.WriteRune(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			inWord = true
		case unicode.IsSpace(ch):
			if inWord {
				args = append(args, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(ch)
			inWord = true
		}
	}

	if escaped {
		return nil, ErrTrailingEscape
	}
	if quote != 0 {
		return nil, ErrUnclosedQuote
	}
	if inWord {
		args = append(args, word.String())
	}
	return args, nil
}

// Join renders args as a single shell-safe line.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quoteArg(arg)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsFunc(arg, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("'\"\\$`", r)
	}) {
		return arg
	}
	if !strings.Contains(arg, "'") {
		return "'" + arg + "'"
	}

	var b strings.Builder
	b.WriteByte('"')
	for _, r := range arg {
		if strings.ContainsRune("\"\\$`", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
