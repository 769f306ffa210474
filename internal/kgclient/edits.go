package kgclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgpb"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/quantize"
)

// editsMinorVersion is the applyEdits protocol revision the bridge speaks.
const editsMinorVersion = 2

// EditsResult is what SubmitEdits always returns. Err is set when the request
// failed, the reply could not be decoded, or the service reported an error.
type EditsResult struct {
	Result *kgpb.ApplyEditsResult
	Err    error
}

// EncodeEdits builds the applyEdits body: the delimited header followed by the
// gzip-compressed frame, itself length-prefixed.
func EncodeEdits(header *kgpb.ApplyEditsHeader, frame *kgpb.ApplyEditsFrame) ([]byte, error) {
	var zbuf bytes.Buffer
	zw := gzip.NewWriter(&zbuf)
	if _, err := zw.Write(kgpb.MarshalApplyEditsFrame(frame)); err != nil {
		return nil, fmt.Errorf("compress frame: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress frame: %w", err)
	}
	body := kgpb.AppendDelimited(nil, kgpb.MarshalApplyEditsHeader(header))
	return kgpb.AppendDelimited(body, zbuf.Bytes()), nil
}

// SubmitEdits posts an edit header and frame and decodes the service's result.
func (c *Client) SubmitEdits(ctx context.Context, url string, header *kgpb.ApplyEditsHeader, frame *kgpb.ApplyEditsFrame) *EditsResult {
	const op = "submit edits"
	body, err := EncodeEdits(header, frame)
	if err != nil {
		return &EditsResult{Err: kgerr.Wrap(kgerr.KindEdits, op, err)}
	}
	r, err := c.do(ctx, "applyEdits", http.MethodPost, url, body)
	if err != nil {
		return &EditsResult{Err: err}
	}
	if isJSON(r.contentType) {
		return &EditsResult{Err: &kgerr.Error{Kind: kgerr.KindEdits, Op: op, Msg: "service returned an error payload", Payload: r.body}}
	}
	res, err := kgpb.DecodeApplyEditsResult(r.body)
	if err != nil {
		return &EditsResult{Err: kgerr.Wrap(kgerr.KindEdits, op, err)}
	}
	out := &EditsResult{Result: res}
	if res.Error != nil {
		out.Err = &kgerr.Error{Kind: kgerr.KindEdits, Op: op, Msg: res.Error.Message, Code: int(res.Error.Code)}
	}
	return out
}

// NewEntity is one entity to create. When Point is set it is stored in
// GeometryField, quantized with the header transform.
type NewEntity struct {
	TypeName      string
	Properties    []kgpb.PropertyValue
	GeometryField string
	Point         *[2]float64
}

// AddEntityFrame builds the header and frame that create e.
func AddEntityFrame(e NewEntity, p quantize.Params) (*kgpb.ApplyEditsHeader, *kgpb.ApplyEditsFrame) {
	props := append([]kgpb.PropertyValue(nil), e.Properties...)
	if e.Point != nil && e.GeometryField != "" {
		qx, qy := quantize.Quantize(p, e.Point[0], e.Point[1])
		props = append(props, kgpb.PropertyValue{
			Name: e.GeometryField,
			Value: kgpb.Geometry(kgpb.GeometryValue{
				GeometryType: kgpb.GeometryPoint,
				Lengths:      []uint32{1},
				Coords:       []int64{qx, qy},
			}),
		})
	}
	header := &kgpb.ApplyEditsHeader{MinorVersion: editsMinorVersion, InputTransform: &p}
	frame := &kgpb.ApplyEditsFrame{
		Entities: []kgpb.TypedAdds{{
			TypeName: e.TypeName,
			Objects:  []kgpb.NamedObjectAdd{{Properties: props}},
		}},
	}
	return header, frame
}

// ParseGlobalID accepts a global id with or without surrounding braces.
func ParseGlobalID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.Trim(strings.TrimSpace(s), "{}"))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse global id %q: %w", s, err)
	}
	return id, nil
}

// AddRelationshipFrame builds the header and frame that link two entities by
// their global ids.
func AddRelationshipFrame(origin, destination, relType string) (*kgpb.ApplyEditsHeader, *kgpb.ApplyEditsFrame, error) {
	o, err := ParseGlobalID(origin)
	if err != nil {
		return nil, nil, kgerr.Wrap(kgerr.KindInvalidRelationship, "add relationship", err)
	}
	d, err := ParseGlobalID(destination)
	if err != nil {
		return nil, nil, kgerr.Wrap(kgerr.KindInvalidRelationship, "add relationship", err)
	}
	header := &kgpb.ApplyEditsHeader{MinorVersion: editsMinorVersion}
	frame := &kgpb.ApplyEditsFrame{
		Relationships: []kgpb.TypedAdds{{
			TypeName: relType,
			Objects: []kgpb.NamedObjectAdd{{Properties: []kgpb.PropertyValue{
				{Name: "id", Value: kgpb.Int64(-1)},
				{Name: "originGlobalID", Value: kgpb.UUID(o)},
				{Name: "destinationGlobalID", Value: kgpb.UUID(d)},
			}}},
		}},
	}
	return header, frame, nil
}
