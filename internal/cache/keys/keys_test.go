package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

var keyChars = regexp.MustCompile(`^[A-Za-z0-9:_=\-]+$`)

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	q := "match (n:Well) where n.objectid IN [1,2,3] return n"
	k1 := Key("wells", "Well", q, "tok")
	k2 := Key("wells", "Well", q, "tok")
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
	if !keyChars.MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
	if !strings.HasPrefix(k1, "kg:wells:well:q=match-n:Well-where_n-objectid") {
		t.Fatalf("unexpected key layout: %s", k1)
	}
}

func TestTokenAndLiteralsChangeTheHash(t *testing.T) {
	q := "match (n:Well) where n.name = 'a  b' return n"
	if Key("s", "Well", q, "t1") == Key("s", "Well", q, "t2") {
		t.Fatalf("different tokens must produce different keys")
	}
	// readable part collapses the spaces, the hash must not
	other := "match (n:Well) where n.name = 'a b' return n"
	if Key("s", "Well", q, "") == Key("s", "Well", other, "") {
		t.Fatalf("literal whitespace must be significant")
	}
	if strings.Contains(Key("s", "Well", q, "secret-token"), "secret") {
		t.Fatalf("token leaked into key")
	}
}

func TestUnicodeSafetyAndLength(t *testing.T) {
	q := "match (n:Stad) where n.name = 'Göteborg' and n.note = '雪' return n" + strings.Repeat(" and n.x = 1", 40)
	k := Key("städer", "Stad", q, "")
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !regexp.MustCompile(`:h=[0-9a-f]{16}$`).MatchString(k) {
		t.Fatalf("missing hash suffix: %s", k)
	}
	readable := k[strings.Index(k, ":q=")+3 : strings.LastIndex(k, ":h=")]
	if len(readable) > maxQueryTextLen {
		t.Fatalf("readable part not truncated: %d", len(readable))
	}
}

func TestIndexKeys(t *testing.T) {
	if got := EntityIndexKey("Wells", "Well"); got != "kgidx:wells:well:all" {
		t.Fatalf("entity index=%s", got)
	}
	if got := UnboundedIndexKey("wells", "Well"); got != "kgidx:wells:well:unbounded" {
		t.Fatalf("unbounded index=%s", got)
	}
	if got := CellIndexKey("wells", "Well", 3, "832a10fffffffff"); got != "kgidx:wells:well:3:832a10fffffffff" {
		t.Fatalf("cell index=%s", got)
	}
}
