package cypher

import (
	"errors"
	"fmt"
	"strings"
)

// The dialect transformer turns a rendered SQL boolean expression into
// openCypher. It works on tokens so string literals are never rewritten.

type tokKind int

const (
	tkSpace tokKind = iota
	tkWord
	tkNumber
	tkString
	tkPunct
)

type token struct {
	kind tokKind
	text   string // as emitted
	val    string // decoded literal content, strings only
	quoted bool   // word came from a quoted identifier
}

var errUnterminated = errors.New("unterminated literal")

func isWordStart(c byte) bool {
	return c == '_' || c == '@' || c == '$' || (c|0x20) >= 'a' && (c|0x20) <= 'z' || c >= 0x80
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool { return isWordStart(c) || isDigit(c) }

func tokenize(s string) ([]token, error) {
	var out []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			j := i
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			out = append(out, token{kind: tkSpace, text: " "})
			i = j
		case c == '\'':
			val, n, err := readString(s[i:])
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tkString, text: s[i : i+n], val: val})
			i += n
		case c == '"' || c == '`':
			// quoted identifier: keep the name, drop the quoting
			var b strings.Builder
			j := i + 1
			for {
				if j >= len(s) {
					return nil, fmt.Errorf("identifier at %d: %w", i, errUnterminated)
				}
				if s[j] == c {
					if j+1 < len(s) && s[j+1] == c {
						b.WriteByte(c)
						j += 2
						continue
					}
					break
				}
				b.WriteByte(s[j])
				j++
			}
			out = append(out, token{kind: tkWord, text: b.String(), quoted: true})
			i = j + 1
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := i
			for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
				j++
			}
			if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
				k := j + 1
				if k < len(s) && (s[k] == '+' || s[k] == '-') {
					k++
				}
				if k < len(s) && isDigit(s[k]) {
					j = k
					for j < len(s) && isDigit(s[j]) {
						j++
					}
				}
			}
			out = append(out, token{kind: tkNumber, text: s[i:j]})
			i = j
		case isWordStart(c):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			out = append(out, token{kind: tkWord, text: s[i:j]})
			i = j
		default:
			n := 1
			for _, op := range []string{"<=>", "!=", "<>", "<=", ">="} {
				if strings.HasPrefix(s[i:], op) {
					n = len(op)
					break
				}
			}
			out = append(out, token{kind: tkPunct, text: s[i : i+n]})
			i += n
		}
	}
	return out, nil
}

// readString reads a single-quoted literal at the start of s, honouring both
// backslash escapes and doubled quotes.
func readString(s string) (string, int, error) {
	var b strings.Builder
	for j := 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			if j+1 >= len(s) {
				return "", 0, errUnterminated
			}
			j++
			b.WriteByte(unescape(s[j]))
		case '\'':
			if j+1 < len(s) && s[j+1] == '\'' {
				b.WriteByte('\'')
				j++
				continue
			}
			return b.String(), j + 1, nil
		default:
			b.WriteByte(s[j])
		}
	}
	return "", 0, errUnterminated
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return c
	}
}

// quote renders s as a Cypher string literal.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '\'':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// likeToRegex converts a LIKE pattern to an anchored-by-=~ regular expression.
func likeToRegex(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		case '.', '^', '$', '*', '+', '?', '(', ')', '[', ']', '{', '}', '|', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isKeyword(t token, kw string) bool {
	return t.kind == tkWord && strings.EqualFold(t.text, kw)
}

// next returns the index of the first non-space token at or after i.
func next(toks []token, i int) int {
	for i < len(toks) && toks[i].kind == tkSpace {
		i++
	}
	return i
}

// popOperand removes the trailing operand (a dotted name or a literal) from out
// and returns it rendered.
func popOperand(out []token) ([]token, string) {
	end := len(out)
	for end > 0 && out[end-1].kind == tkSpace {
		end--
	}
	start := end
	for start > 0 {
		t := out[start-1]
		if t.kind == tkSpace || (t.kind == tkPunct && t.text != ".") {
			break
		}
		start--
	}
	return out[:start], render(out[start:end])
}

func render(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.text)
	}
	return b.String()
}

// readList consumes a parenthesised list starting at toks[i] == "(" and
// returns its items and the index after the closing parenthesis.
func readList(toks []token, i int) ([]string, int, error) {
	depth := 0
	var items []string
	var cur []token
	for ; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tkPunct {
			switch t.text {
			case "(":
				depth++
				if depth == 1 {
					continue
				}
			case ")":
				depth--
				if depth == 0 {
					items = append(items, strings.TrimSpace(render(cur)))
					return items, i + 1, nil
				}
			case ",":
				if depth == 1 {
					items = append(items, strings.TrimSpace(render(cur)))
					cur = cur[:0]
					continue
				}
			}
		}
		cur = append(cur, t)
	}
	return nil, 0, errors.New("unbalanced parentheses in list")
}

// ToCypher rewrites a rendered SQL boolean expression into openCypher syntax:
// identifier quoting is dropped, IN lists become Cypher lists, != becomes <>
// and LIKE patterns become regular expression matches.
func ToCypher(sql string) (string, error) {
	toks, err := tokenize(sql)
	if err != nil {
		return "", err
	}
	var out []token
	emit := func(s string) { out = append(out, token{kind: tkPunct, text: s}) }

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.kind == tkPunct && t.text == "!=":
			emit("<>")

		case t.kind == tkWord && strings.HasPrefix(t.text, typedPrefix):
			emit(typedLiteralFuncs[strings.TrimPrefix(t.text, typedPrefix)])

		case isKeyword(t, "not"):
			j := next(toks, i+1)
			if j < len(toks) && (isKeyword(toks[j], "in") || isKeyword(toks[j], "like")) {
				op := toks[j]
				var left string
				out, left = popOperand(out)
				expr, end, err := rewriteOperator(toks, j, op, left)
				if err != nil {
					return "", err
				}
				emit("NOT (" + expr + ")")
				i = end - 1
				continue
			}
			out = append(out, t)

		case isKeyword(t, "in") || isKeyword(t, "like"):
			var left string
			out, left = popOperand(out)
			expr, end, err := rewriteOperator(toks, i, t, left)
			if err != nil {
				return "", err
			}
			emit(expr)
			i = end - 1

		default:
			out = append(out, t)
		}
	}
	return strings.TrimSpace(render(out)), nil
}

// rewriteOperator renders "<left> IN [...]" or "<left> =~ '...'" for the
// operator at toks[i] and returns the index after its right operand.
func rewriteOperator(toks []token, i int, op token, left string) (string, int, error) {
	j := next(toks, i+1)
	if j >= len(toks) {
		return "", 0, fmt.Errorf("missing operand after %s", op.text)
	}
	if isKeyword(op, "in") {
		if toks[j].kind != tkPunct || toks[j].text != "(" {
			return "", 0, errors.New("IN expects a parenthesised list")
		}
		items, end, err := readList(toks, j)
		if err != nil {
			return "", 0, err
		}
		return left + " IN [" + strings.Join(items, ",") + "]", end, nil
	}
	if toks[j].kind != tkString {
		return "", 0, errors.New("LIKE expects a string pattern")
	}
	return left + " =~ " + quote(likeToRegex(toks[j].val)), j + 1, nil
}

// typedPrefix marks the placeholder functions that carry typed SQL literals
// (DATE '...', TIMESTAMP '...') through the SQL parser, which rejects them.
const typedPrefix = "kgtyped_"

var typedLiteralFuncs = map[string]string{
	"date":      "date",
	"timestamp": "datetime",
}

// prepareSQL rewrites a where clause into the MySQL flavour the SQL parser
// reads: double-quoted identifiers become backtick-quoted and typed literals
// become placeholder calls. String literals are kept as written.
func prepareSQL(where string) (string, error) {
	toks, err := tokenize(where)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.kind == tkWord && t.quoted:
			b.WriteString("`" + strings.ReplaceAll(t.text, "`", "``") + "`")
		case t.kind == tkWord:
			j := next(toks, i+1)
			if _, ok := typedLiteralFuncs[strings.ToLower(t.text)]; ok && j < len(toks) && toks[j].kind == tkString {
				b.WriteString(typedPrefix + strings.ToLower(t.text) + "(" + toks[j].text + ")")
				i = j
				continue
			}
			b.WriteString(t.text)
		default:
			b.WriteString(t.text)
		}
	}
	return b.String(), nil
}
