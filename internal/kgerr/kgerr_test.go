package kgerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_SurvivesWrapping(t *testing.T) {
	base := New(KindGraphQuery, "execute query", "Invalid openCypher")
	wrapped := fmt.Errorf("query layer 3: %w", base)

	if got := KindOf(wrapped); got != KindGraphQuery {
		t.Fatalf("KindOf=%v want %v", got, KindGraphQuery)
	}
	if !Is(wrapped, KindGraphQuery) {
		t.Fatalf("Is(wrapped, KindGraphQuery)=false")
	}
	if Is(nil, KindGraphQuery) {
		t.Fatalf("Is(nil) must be false")
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Fatalf("KindOf(plain)=%v want unknown", got)
	}
}

func TestMessage_PrefersRemoteText(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Error{Kind: KindGraphQuery, Op: "execute query", Msg: "bad property"})
	if got := Message(err); got != "bad property" {
		t.Fatalf("Message=%q want %q", got, "bad property")
	}

	wrapped := Wrap(KindTransport, "fetch schema", errors.New("connection refused"))
	if got := wrapped.Error(); got != "fetch schema: connection refused" {
		t.Fatalf("Error()=%q", got)
	}
	if got := Message(wrapped); got != "fetch schema: connection refused" {
		t.Fatalf("Message=%q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindServiceNotFound: http.StatusNotFound,
		KindInvalidLayerID:  http.StatusBadRequest,
		KindFilterParse:     http.StatusBadRequest,
		KindTransport:       http.StatusBadGateway,
		KindGraphQuery:      http.StatusInternalServerError,
		KindUnknown:         http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := HTTPStatus(k); got != want {
			t.Fatalf("HTTPStatus(%v)=%d want %d", k, got, want)
		}
	}
}

func TestMessage_FindsInnerRemoteText(t *testing.T) {
	inner := &Error{Kind: KindSchemaFetch, Op: "fetch schema", Msg: "Invalid token."}
	outer := Wrap(KindSchemaFetch, "load schema", inner)
	if got := Message(outer); got != "Invalid token." {
		t.Fatalf("Message=%q", got)
	}
}
