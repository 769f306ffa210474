package composer

import (
	"bytes"
	"testing"
)

func TestNegotiateFormat_OrderOfPrecedence(t *testing.T) {
	neg := NegotiateFormat(NegotiationInput{
		OutputFormat:  "geojson",
		AcceptHeader:  "application/json",
		DefaultFormat: FormatGeoJSON,
	})
	if neg.Format != FormatGeoJSON || neg.ContentType != "application/geo+json" {
		t.Fatalf("f parameter must win; got %+v", neg)
	}

	neg = NegotiateFormat(NegotiationInput{
		AcceptHeader:  "application/geo+json;q=0.4,application/json;q=0.9",
		DefaultFormat: FormatGeoJSON,
	})
	if neg.Format != FormatJSON {
		t.Fatalf("expected JSON via Accept q, got %+v", neg)
	}

	neg = NegotiateFormat(NegotiationInput{OutputFormat: "pjson"})
	if neg.Format != FormatPrettyJSON || neg.ContentType != "application/json" {
		t.Fatalf("pjson=%+v", neg)
	}

	neg = NegotiateFormat(NegotiationInput{AcceptHeader: "text/html, */*;q=0.1", DefaultFormat: FormatJSON})
	if neg.Format != FormatJSON {
		t.Fatalf("*/* should take the default, got %+v", neg)
	}
}

func TestCompose_PayloadAndCached(t *testing.T) {
	fc := emptyCollection()
	res, err := Compose(Request{Payload: fc.Decorate()})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	want := `{"type":"FeatureCollection","features":[],"metadata":{"idField":"OBJECTID"},"filtersApplied":{"where":true,"geometry":true}}`
	if string(res.Body) != want || res.HitClass != HitClassMiss || res.StatusCode != 200 {
		t.Fatalf("res=%s %s %d", res.Body, res.HitClass, res.StatusCode)
	}

	cached, err := Compose(Request{Cached: res.Body, OutputFormat: "pjson"})
	if err != nil {
		t.Fatalf("compose cached: %v", err)
	}
	if cached.HitClass != HitClassHit || !bytes.Contains(cached.Body, []byte("\n  \"features\"")) {
		t.Fatalf("cached=%s %s", cached.Body, cached.HitClass)
	}
}
