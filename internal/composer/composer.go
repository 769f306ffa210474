// Package composer assembles graph query rows into GeoJSON and renders the
// response body in the negotiated format.
package composer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type HitClass string

const (
	HitClassHit  HitClass = "hit"
	HitClassMiss HitClass = "miss"
)

type Format int

const (
	FormatGeoJSON Format = iota
	FormatJSON
	FormatPrettyJSON
)

const (
	contentTypeGeoJSON = "application/geo+json"
	contentTypeJSON    = "application/json"
)

type NegotiationInput struct {
	AcceptHeader  string
	OutputFormat  string
	DefaultFormat Format
}

type Negotiation struct {
	Format      Format
	ContentType string
}

func negotiation(f Format) Negotiation {
	switch f {
	case FormatJSON:
		return Negotiation{Format: FormatJSON, ContentType: contentTypeJSON}
	case FormatPrettyJSON:
		return Negotiation{Format: FormatPrettyJSON, ContentType: contentTypeJSON}
	default:
		return Negotiation{Format: FormatGeoJSON, ContentType: contentTypeGeoJSON}
	}
}

// NegotiateFormat picks the output format. An explicit f parameter wins over
// the Accept header, which wins over the default.
func NegotiateFormat(in NegotiationInput) Negotiation {
	of := strings.ToLower(strings.TrimSpace(in.OutputFormat))
	switch {
	case of == "geojson", strings.HasPrefix(of, contentTypeGeoJSON):
		return negotiation(FormatGeoJSON)
	case of == "pjson":
		return negotiation(FormatPrettyJSON)
	case of == "json", strings.HasPrefix(of, contentTypeJSON):
		return negotiation(FormatJSON)
	}

	bestQ := -1.0
	best := Negotiation{}
	for part := range strings.SplitSeq(strings.ToLower(in.AcceptHeader), ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		mt := token
		params := ""
		if i := strings.Index(token, ";"); i >= 0 {
			mt = strings.TrimSpace(token[:i])
			params = token[i+1:]
		}
		q := 1.0
		for p := range strings.SplitSeq(params, ";") {
			p = strings.TrimSpace(p)
			if after, ok := strings.CutPrefix(p, "q="); ok {
				if v, err := strconv.ParseFloat(after, 64); err == nil {
					q = v
				}
			}
		}
		var cand Negotiation
		switch {
		case mt == "*/*":
			cand = negotiation(in.DefaultFormat)
		case strings.Contains(mt, "geo+json"):
			cand = negotiation(FormatGeoJSON)
		case mt == contentTypeJSON:
			cand = negotiation(FormatJSON)
		default:
			continue
		}
		if q > bestQ {
			bestQ = q
			best = cand
		}
	}
	if bestQ >= 0 {
		return best
	}
	return negotiation(in.DefaultFormat)
}

type Request struct {
	Payload      any
	Cached       []byte
	AcceptHeader string
	OutputFormat string
}

type Result struct {
	StatusCode  int
	Body        []byte
	ContentType string
	HitClass    HitClass
}

// Compose renders a payload, or passes through a cached body, in the
// negotiated format.
func Compose(req Request) (Result, error) {
	neg := NegotiateFormat(NegotiationInput{
		AcceptHeader:  req.AcceptHeader,
		OutputFormat:  req.OutputFormat,
		DefaultFormat: FormatGeoJSON,
	})

	if req.Cached != nil {
		body := req.Cached
		if neg.Format == FormatPrettyJSON {
			var v any
			if err := json.Unmarshal(body, &v); err != nil {
				return Result{}, fmt.Errorf("decode cached body: %w", err)
			}
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return Result{}, fmt.Errorf("indent cached body: %w", err)
			}
			body = b
		}
		return Result{StatusCode: http.StatusOK, Body: body, ContentType: neg.ContentType, HitClass: HitClassHit}, nil
	}

	body, err := Encode(req.Payload, neg.Format)
	if err != nil {
		return Result{}, err
	}
	return Result{StatusCode: http.StatusOK, Body: body, ContentType: neg.ContentType, HitClass: HitClassMiss}, nil
}

// Encode marshals v, indented for FormatPrettyJSON.
func Encode(v any, f Format) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if f == FormatPrettyJSON {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return b, nil
}
