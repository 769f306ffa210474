// Package kgerr classifies the failures surfaced by the bridge so callers can
// tell "no data" apart from "malformed data" and map both to responses.
package kgerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindSchemaFetch
	KindTransport
	KindDecode
	KindInvalidLayerID
	KindFilterParse
	KindGraphQuery
	KindEdits
	KindInvalidSpatialFilter
	KindInvalidRelationship
	KindServiceNotFound
)

func (k Kind) String() string {
	switch k {
	case KindSchemaFetch:
		return "schema_fetch"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindInvalidLayerID:
		return "invalid_layer_id"
	case KindFilterParse:
		return "filter_parse"
	case KindGraphQuery:
		return "graph_query"
	case KindEdits:
		return "edits"
	case KindInvalidSpatialFilter:
		return "invalid_spatial_filter"
	case KindInvalidRelationship:
		return "invalid_relationship"
	case KindServiceNotFound:
		return "service_not_found"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus whatever the remote service told us.
// Code is the server-reported error code when one exists; Payload holds a raw
// non-binary error body (JSON) returned instead of protobuf.
type Error struct {
	Kind    Kind
	Op      string
	Msg     string
	Code    int
	Payload []byte
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the text shown to callers. It prefers the first remote
// message found in the chain so upstream errors keep their original wording.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ke, ok := e.(*Error); ok && ke.Msg != "" {
			return ke.Msg
		}
	}
	return err.Error()
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindServiceNotFound:
		return http.StatusNotFound
	case KindInvalidLayerID, KindFilterParse, KindInvalidSpatialFilter, KindInvalidRelationship:
		return http.StatusBadRequest
	case KindTransport, KindSchemaFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
