// Package keys builds the Redis keys of the result cache and its
// invalidation index.
package keys

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxQueryTextLen = 96

// Key identifies one cached query result. The readable part is informative
// only; the hash covers the exact query text and the token, so results are
// never shared across credentials.
func Key(service, entity, query, token string) string {
	readable := sanitize(normalizeQuery(query), true)
	if len(readable) > maxQueryTextLen {
		readable = readable[:maxQueryTextLen]
	}

	h := xxhash.New()
	_, _ = h.WriteString(query)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(token)

	return fmt.Sprintf("kg:%s:%s:q=%s:h=%016x", name(service), name(entity), readable, h.Sum64())
}

// EntityIndexKey is the set of every cached key for an entity type.
func EntityIndexKey(service, entity string) string {
	return fmt.Sprintf("kgidx:%s:%s:all", name(service), name(entity))
}

// UnboundedIndexKey is the set of cached keys for queries with no spatial
// filter; any spatial change to the entity touches them.
func UnboundedIndexKey(service, entity string) string {
	return fmt.Sprintf("kgidx:%s:%s:unbounded", name(service), name(entity))
}

// CellIndexKey is the set of cached keys whose query envelope covers cell.
func CellIndexKey(service, entity string, res int, cell string) string {
	return fmt.Sprintf("kgidx:%s:%s:%d:%s", name(service), name(entity), res, cell)
}

var punctSpace = regexp.MustCompile(`\s*([=<>!\.,\(\)\[\]])\s*`)

func normalizeQuery(s string) string {
	if s == "" {
		return ""
	}
	s = collapseASCIIWhitespace(strings.TrimSpace(s))
	return punctSpace.ReplaceAllString(s, "$1")
}

func name(s string) string {
	return strings.ToLower(sanitize(strings.TrimSpace(s), false))
}

func sanitize(s string, allowEq bool) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || (allowEq && (r == '=' || r == ':')):
			out = r
		default:
			// any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
