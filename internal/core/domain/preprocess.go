package domain

import (
	"errors"
	"strings"
)

// ErrUnterminatedComment is returned when a block comment is opened but
// never closed. The preprocessor refuses to guess where it should end.
var ErrUnterminatedComment = errors.New("unterminated block comment")

// StripComments removes line (--) and block (/* */) comments from sql,
// replacing each comment with a single space so token boundaries survive.
// Block comments nest, as they do in Postgres. Comment delimiters inside
// single-quoted strings, double-quoted identifiers, or dollar-quoted
// strings are content, not comments, and are left untouched.
func StripComments(sql string) (string, error) {
	var out strings.Builder
	out.Grow(len(sql))

	for i := 0; i < len(sql); {
		c := sql[i]

		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			// Line comment runs to end of line; the newline is kept.
			j := strings.IndexByte(sql[i:], '\n')
			out.WriteByte(' ')
			if j < 0 {
				i = len(sql)
			} else {
				i += j
			}

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end, err := skipBlockComment(sql, i)
			if err != nil {
				return "", err
			}
			out.WriteByte(' ')
			i = end

		case c == '\'':
			end := skipSingleQuoted(sql, i)
			out.WriteString(sql[i:end])
			i = end

		case c == '"':
			end := skipDelimited(sql, i, '"')
			out.WriteString(sql[i:end])
			i = end

		case c == '$':
			if tag, ok := dollarTag(sql[i:]); ok {
				end := skipDollarQuoted(sql, i, tag)
				out.WriteString(sql[i:end])
				i = end
			} else {
				out.WriteByte(c)
				i++
			}

		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String(), nil
}

// skipBlockComment advances past a (possibly nested) block comment
// starting at sql[start]. Returns the index just past the closing */.
func skipBlockComment(sql string, start int) (int, error) {
	depth := 0
	i := start
	for i < len(sql) {
		switch {
		case i+1 < len(sql) && sql[i] == '/' && sql[i+1] == '*':
			depth++
			i += 2
		case i+1 < len(sql) && sql[i] == '*' && sql[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i, nil
			}
		default:
			i++
		}
	}
	return 0, ErrUnterminatedComment
}

// skipSingleQuoted advances past a single-quoted string starting at
// sql[start]. A doubled quote ('') is an escaped quote, not a terminator.
// An unterminated string runs to end of input; the parser will report it.
func skipSingleQuoted(sql string, start int) int {
	i := start + 1
	for i < len(sql) {
		if sql[i] == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

// skipDelimited advances past a delimited region (used for double-quoted
// identifiers), honouring doubled-delimiter escapes.
func skipDelimited(sql string, start int, delim byte) int {
	i := start + 1
	for i < len(sql) {
		if sql[i] == delim {
			if i+1 < len(sql) && sql[i+1] == delim {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

// dollarTag reports whether s starts a dollar-quote delimiter ($$, $tag$)
// and returns the full delimiter including both dollar signs.
func dollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !isTagChar(c) {
			return "", false
		}
	}
	return "", false
}

func isTagChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// skipDollarQuoted advances past a dollar-quoted string whose opening tag
// begins at sql[start]. Unterminated strings run to end of input.
func skipDollarQuoted(sql string, start int, tag string) int {
	body := start + len(tag)
	if end := strings.Index(sql[body:], tag); end >= 0 {
		return body + end + len(tag)
	}
	return len(sql)
}
