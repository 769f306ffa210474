package kgpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/quantize"
)

// DecodeDataModel decodes a data model message.
func DecodeDataModel(b []byte) (*DataModel, error) {
	dm := &DataModel{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fDMTimestamp:
			v, n, err := consumeVarint(typ, b)
			dm.Timestamp = v
			return n, err
		case fDMSpatialReference:
			sr, n, err := consumeSpatialReference(typ, b)
			dm.SpatialReference = sr
			return n, err
		case fDMEntityTypes:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			et, err := decodeEntityType(msg)
			if err != nil {
				return 0, err
			}
			dm.EntityTypes = append(dm.EntityTypes, et)
			return n, nil
		case fDMRelationshipTypes:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			rt, err := decodeRelationshipType(msg)
			if err != nil {
				return 0, err
			}
			dm.RelationshipTypes = append(dm.RelationshipTypes, rt)
			return n, nil
		case fDMStrict:
			v, n, err := consumeBool(typ, b)
			dm.Strict = v
			return n, err
		case fDMObjectIDProperty:
			v, n, err := consumeString(typ, b)
			dm.ObjectIDProperty = v
			return n, err
		case fDMGlobalIDProperty:
			v, n, err := consumeString(typ, b)
			dm.GlobalIDProperty = v
			return n, err
		case fDMArcGISManaged:
			v, n, err := consumeBool(typ, b)
			dm.ArcGISManaged = v
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("decode data model: %w", err)
	}
	return dm, nil
}

func consumeSpatialReference(typ protowire.Type, b []byte) (*SpatialReference, int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return nil, 0, err
	}
	sr := &SpatialReference{}
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fSRWKID:
			v, n, err := consumeInt32(typ, b)
			sr.WKID = v
			return n, err
		case fSRLatestWKID:
			v, n, err := consumeInt32(typ, b)
			sr.LatestWKID = v
			return n, err
		case fSRWKT:
			v, n, err := consumeString(typ, b)
			sr.WKT = v
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, 0, fmt.Errorf("spatial reference: %w", err)
	}
	return sr, n, nil
}

func consumeError(typ protowire.Type, b []byte) (*Error, int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return nil, 0, err
	}
	e := &Error{}
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fErrCode:
			v, n, err := consumeInt32(typ, b)
			e.Code = v
			return n, err
		case fErrMessage:
			v, n, err := consumeString(typ, b)
			e.Message = v
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, 0, fmt.Errorf("error message: %w", err)
	}
	return e, n, nil
}

func consumeXY(typ protowire.Type, b []byte) (x, y float64, n int, err error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, 0, 0, err
	}
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fXYX:
			v, n, err := consumeDouble(typ, b)
			x = v
			return n, err
		case fXYY:
			v, n, err := consumeDouble(typ, b)
			y = v
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	return x, y, n, err
}

func consumeTransform(typ protowire.Type, b []byte) (*quantize.Params, int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return nil, 0, err
	}
	p := &quantize.Params{}
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fTransformScale:
			x, y, n, err := consumeXY(typ, b)
			p.Scale = quantize.Scale{X: x, Y: y}
			return n, err
		case fTransformTranslate:
			x, y, n, err := consumeXY(typ, b)
			p.Translate = quantize.Translate{X: x, Y: y}
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, 0, fmt.Errorf("transform: %w", err)
	}
	return p, n, nil
}

func decodeEntityType(b []byte) (EntityType, error) {
	var et EntityType
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fETName:
			v, n, err := consumeString(typ, b)
			et.Name = v
			return n, err
		case fETAlias:
			v, n, err := consumeString(typ, b)
			et.Alias = v
			return n, err
		case fETRole:
			v, n, err := consumeInt32(typ, b)
			et.Role = v
			return n, err
		case fETStrict:
			v, n, err := consumeBool(typ, b)
			et.Strict = v
			return n, err
		case fETProperties:
			p, n, err := consumeProperty(typ, b)
			if err == nil {
				et.Properties = append(et.Properties, p)
			}
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return EntityType{}, fmt.Errorf("entity type: %w", err)
	}
	return et, nil
}

func decodeRelationshipType(b []byte) (RelationshipType, error) {
	var rt RelationshipType
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fETName:
			v, n, err := consumeString(typ, b)
			rt.Name = v
			return n, err
		case fETAlias:
			v, n, err := consumeString(typ, b)
			rt.Alias = v
			return n, err
		case fETStrict:
			v, n, err := consumeBool(typ, b)
			rt.Strict = v
			return n, err
		case fETProperties:
			p, n, err := consumeProperty(typ, b)
			if err == nil {
				rt.Properties = append(rt.Properties, p)
			}
			return n, err
		case fRTOrigins:
			v, n, err := consumeString(typ, b)
			rt.Origins = append(rt.Origins, v)
			return n, err
		case fRTDestinations:
			v, n, err := consumeString(typ, b)
			rt.Destinations = append(rt.Destinations, v)
			return n, err
		case fRTCardinality:
			v, n, err := consumeInt32(typ, b)
			rt.Cardinality = Cardinality(v)
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return RelationshipType{}, fmt.Errorf("relationship type: %w", err)
	}
	return rt, nil
}

func consumeProperty(typ protowire.Type, b []byte) (Property, int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return Property{}, 0, err
	}
	var p Property
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fPropName:
			v, n, err := consumeString(typ, b)
			p.Name = v
			return n, err
		case fPropAlias:
			v, n, err := consumeString(typ, b)
			p.Alias = v
			return n, err
		case fPropDomain:
			v, n, err := consumeString(typ, b)
			p.Domain = v
			return n, err
		case fPropFieldType:
			v, n, err := consumeInt32(typ, b)
			p.FieldType = FieldType(v)
			return n, err
		case fPropGeometryType:
			v, n, err := consumeInt32(typ, b)
			p.GeometryType = GeometryType(v)
			return n, err
		case fPropHasZ:
			v, n, err := consumeBool(typ, b)
			p.HasZ = v
			return n, err
		case fPropHasM:
			v, n, err := consumeBool(typ, b)
			p.HasM = v
			return n, err
		case fPropNullable:
			v, n, err := consumeBool(typ, b)
			p.Nullable = v
			return n, err
		case fPropEditable:
			v, n, err := consumeBool(typ, b)
			p.Editable = v
			return n, err
		case fPropVisible:
			v, n, err := consumeBool(typ, b)
			p.Visible = v
			return n, err
		case fPropRequired:
			v, n, err := consumeBool(typ, b)
			p.Required = v
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return Property{}, 0, fmt.Errorf("property: %w", err)
	}
	return p, n, nil
}

// DecodeQueryResultHeader decodes the first message of a query response.
func DecodeQueryResultHeader(b []byte) (*QueryResultHeader, error) {
	h := &QueryResultHeader{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fHdrError:
			e, n, err := consumeError(typ, b)
			h.Error = e
			return n, err
		case fHdrMajorVersion:
			v, n, err := consumeVarint(typ, b)
			h.MajorVersion = uint32(v)
			return n, err
		case fHdrMinorVersion:
			v, n, err := consumeVarint(typ, b)
			h.MinorVersion = uint32(v)
			return n, err
		case fHdrSpatialReference:
			sr, n, err := consumeSpatialReference(typ, b)
			h.SpatialReference = sr
			return n, err
		case fHdrTransform:
			p, n, err := consumeTransform(typ, b)
			h.Transform = p
			return n, err
		case fHdrHeaderKeys:
			v, n, err := consumeString(typ, b)
			h.HeaderKeys = append(h.HeaderKeys, v)
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("decode query header: %w", err)
	}
	return h, nil
}

// DecodeQueryResultFrame decodes one frame of result rows.
func DecodeQueryResultFrame(b []byte) (*QueryResultFrame, error) {
	f := &QueryResultFrame{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fFrameError:
			e, n, err := consumeError(typ, b)
			f.Error = e
			return n, err
		case fFrameRows:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			row, err := decodeRow(msg)
			if err != nil {
				return 0, err
			}
			f.Rows = append(f.Rows, row)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("decode query frame: %w", err)
	}
	return f, nil
}

func decodeRow(b []byte) (Row, error) {
	var r Row
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fRowValues {
			return skipField(num, typ, b)
		}
		v, n, err := consumeAnyValue(typ, b)
		if err == nil {
			r.Values = append(r.Values, v)
		}
		return n, err
	})
	if err != nil {
		return Row{}, fmt.Errorf("row: %w", err)
	}
	return r, nil
}

func consumeAnyValue(typ protowire.Type, b []byte) (AnyValue, int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return AnyValue{}, 0, err
	}
	v, err := decodeAnyValue(msg)
	return v, n, err
}

func decodeAnyValue(b []byte) (AnyValue, error) {
	var v AnyValue
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		msg, n, err := consumeBytes(typ, b)
		if err != nil {
			if num > fAnyRelationship {
				return skipField(num, typ, b)
			}
			return 0, err
		}
		switch num {
		case fAnyPrimitive:
			p, err := decodePrimitive(msg)
			v = AnyValue{Primitive: p}
			return n, err
		case fAnyArray:
			a, err := decodeArray(msg)
			v = AnyValue{Array: a}
			return n, err
		case fAnyEntity:
			e, err := decodeEntityValue(msg)
			v = AnyValue{Entity: e}
			return n, err
		case fAnyRelationship:
			r, err := decodeRelationshipValue(msg)
			v = AnyValue{Relationship: r}
			return n, err
		default:
			return n, nil
		}
	})
	if err != nil {
		return AnyValue{}, fmt.Errorf("value: %w", err)
	}
	if v.Primitive == nil && v.Array == nil && v.Entity == nil && v.Relationship == nil {
		v = Null()
	}
	return v, nil
}

func decodeArray(b []byte) (*ArrayValue, error) {
	a := &ArrayValue{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fArrayValues {
			return skipField(num, typ, b)
		}
		v, n, err := consumeAnyValue(typ, b)
		if err == nil {
			a.Values = append(a.Values, v)
		}
		return n, err
	})
	return a, err
}

func consumePropertyValues(typ protowire.Type, b []byte, dst *[]PropertyValue) (int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	var pv PropertyValue
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fEntryKey:
			v, n, err := consumeString(typ, b)
			pv.Name = v
			return n, err
		case fEntryValue:
			v, n, err := consumeAnyValue(typ, b)
			pv.Value = v
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("property entry: %w", err)
	}
	if pv.Value.Primitive == nil && pv.Value.Array == nil && pv.Value.Entity == nil && pv.Value.Relationship == nil {
		pv.Value = Null()
	}
	*dst = append(*dst, pv)
	return n, nil
}

func consumeAnyValuePtr(typ protowire.Type, b []byte) (*AnyValue, int, error) {
	v, n, err := consumeAnyValue(typ, b)
	if err != nil {
		return nil, 0, err
	}
	return &v, n, nil
}

func decodeEntityValue(b []byte) (*EntityValue, error) {
	e := &EntityValue{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fEntTypeName:
			v, n, err := consumeString(typ, b)
			e.TypeName = v
			return n, err
		case fEntID:
			v, n, err := consumeAnyValuePtr(typ, b)
			e.ID = v
			return n, err
		case fEntProperties:
			return consumePropertyValues(typ, b, &e.Properties)
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("entity: %w", err)
	}
	return e, nil
}

func decodeRelationshipValue(b []byte) (*RelationshipValue, error) {
	r := &RelationshipValue{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fRelTypeName:
			v, n, err := consumeString(typ, b)
			r.TypeName = v
			return n, err
		case fRelID:
			v, n, err := consumeAnyValuePtr(typ, b)
			r.ID = v
			return n, err
		case fRelOriginID:
			v, n, err := consumeAnyValuePtr(typ, b)
			r.OriginID = v
			return n, err
		case fRelDestID:
			v, n, err := consumeAnyValuePtr(typ, b)
			r.DestID = v
			return n, err
		case fRelProperties:
			return consumePropertyValues(typ, b, &r.Properties)
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("relationship: %w", err)
	}
	return r, nil
}

func decodePrimitive(b []byte) (*Primitive, error) {
	p := &Primitive{Kind: KindNull}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fPrimNull:
			*p = Primitive{Kind: KindNull}
			return skipField(num, typ, b)
		case fPrimBool:
			v, n, err := consumeBool(typ, b)
			*p = Primitive{Kind: KindBool, Bool: v}
			return n, err
		case fPrimSint32:
			v, n, err := consumeVarint(typ, b)
			*p = Primitive{Kind: KindInt32, Int: int64(int32(protowire.DecodeZigZag(v)))}
			return n, err
		case fPrimUint32:
			v, n, err := consumeVarint(typ, b)
			*p = Primitive{Kind: KindUint32, Uint: uint64(uint32(v))}
			return n, err
		case fPrimSint64:
			v, n, err := consumeVarint(typ, b)
			*p = Primitive{Kind: KindInt64, Int: protowire.DecodeZigZag(v)}
			return n, err
		case fPrimUint64:
			v, n, err := consumeVarint(typ, b)
			*p = Primitive{Kind: KindUint64, Uint: v}
			return n, err
		case fPrimFloat:
			v, n, err := consumeFloat(typ, b)
			*p = Primitive{Kind: KindFloat, Float: v}
			return n, err
		case fPrimDouble:
			v, n, err := consumeDouble(typ, b)
			*p = Primitive{Kind: KindDouble, Float: v}
			return n, err
		case fPrimString:
			v, n, err := consumeString(typ, b)
			*p = Primitive{Kind: KindString, Str: v}
			return n, err
		case fPrimDate:
			v, n, err := consumeVarint(typ, b)
			*p = Primitive{Kind: KindDate, Int: protowire.DecodeZigZag(v)}
			return n, err
		case fPrimUUID:
			v, n, err := consumeBytes(typ, b)
			*p = Primitive{Kind: KindUUID, Bytes: append([]byte(nil), v...)}
			return n, err
		case fPrimGeometry:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			g, err := decodeGeometry(msg)
			*p = Primitive{Kind: KindGeometry, Geometry: g}
			return n, err
		case fPrimBlob:
			v, n, err := consumeBytes(typ, b)
			*p = Primitive{Kind: KindBlob, Bytes: append([]byte(nil), v...)}
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("primitive: %w", err)
	}
	return p, nil
}

func decodeGeometry(b []byte) (*GeometryValue, error) {
	g := &GeometryValue{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fGeomType:
			v, n, err := consumeInt32(typ, b)
			g.GeometryType = GeometryType(v)
			return n, err
		case fGeomHasZ:
			v, n, err := consumeBool(typ, b)
			g.HasZ = v
			return n, err
		case fGeomHasM:
			v, n, err := consumeBool(typ, b)
			g.HasM = v
			return n, err
		case fGeomGeometry:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, decodeGeometryBody(msg, g)
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}
	return g, nil
}

func decodeGeometryBody(b []byte, g *GeometryValue) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fGeomLengths:
			return consumePackedVarints(typ, b, func(v uint64) {
				g.Lengths = append(g.Lengths, uint32(v))
			})
		case fGeomCoords:
			return consumePackedVarints(typ, b, func(v uint64) {
				g.Coords = append(g.Coords, protowire.DecodeZigZag(v))
			})
		default:
			return skipField(num, typ, b)
		}
	})
}

// DecodeApplyEditsResult decodes the response of an applyEdits call.
func DecodeApplyEditsResult(b []byte) (*ApplyEditsResult, error) {
	r := &ApplyEditsResult{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fResultError:
			e, n, err := consumeError(typ, b)
			r.Error = e
			return n, err
		case fResultEntities:
			return consumeTypedResults(typ, b, &r.EntityResults)
		case fResultRelationships:
			return consumeTypedResults(typ, b, &r.RelationshipResults)
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("decode edits result: %w", err)
	}
	return r, nil
}

func consumeTypedResults(typ protowire.Type, b []byte, dst *[]TypedEditResults) (int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	var tr TypedEditResults
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fEntryKey:
			v, n, err := consumeString(typ, b)
			tr.TypeName = v
			return n, err
		case fEntryValue:
			inner, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, walkFields(inner, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num != fEditResultsAdds {
					return skipField(num, typ, b)
				}
				res, n, err := consumeEditResult(typ, b)
				if err == nil {
					tr.AddResults = append(tr.AddResults, res)
				}
				return n, err
			})
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("typed results: %w", err)
	}
	*dst = append(*dst, tr)
	return n, nil
}

func consumeEditResult(typ protowire.Type, b []byte) (EditResult, int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return EditResult{}, 0, err
	}
	var res EditResult
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fEditResultID:
			v, n, err := consumeAnyValuePtr(typ, b)
			res.ID = v
			return n, err
		case fEditResultError:
			e, n, err := consumeError(typ, b)
			res.Error = e
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	return res, n, err
}

// DecodeApplyEditsHeader and DecodeApplyEditsFrame exist for round-trip tests
// and for fake upstreams.
func DecodeApplyEditsHeader(b []byte) (*ApplyEditsHeader, error) {
	h := &ApplyEditsHeader{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fEditsHdrMajorVersion:
			v, n, err := consumeVarint(typ, b)
			h.MajorVersion = uint32(v)
			return n, err
		case fEditsHdrMinorVersion:
			v, n, err := consumeVarint(typ, b)
			h.MinorVersion = uint32(v)
			return n, err
		case fEditsHdrInputSR:
			sr, n, err := consumeSpatialReference(typ, b)
			h.InputSpatialReference = sr
			return n, err
		case fEditsHdrTransform:
			p, n, err := consumeTransform(typ, b)
			h.InputTransform = p
			return n, err
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("decode edits header: %w", err)
	}
	return h, nil
}

func DecodeApplyEditsFrame(b []byte) (*ApplyEditsFrame, error) {
	f := &ApplyEditsFrame{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fFrameAdds {
			return skipField(num, typ, b)
		}
		msg, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		return n, walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case fAddsEntities:
				return consumeTypedAdds(typ, b, &f.Entities)
			case fAddsRelationships:
				return consumeTypedAdds(typ, b, &f.Relationships)
			default:
				return skipField(num, typ, b)
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("decode edits frame: %w", err)
	}
	return f, nil
}

func consumeTypedAdds(typ protowire.Type, b []byte, dst *[]TypedAdds) (int, error) {
	msg, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	var ta TypedAdds
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fEntryKey:
			v, n, err := consumeString(typ, b)
			ta.TypeName = v
			return n, err
		case fEntryValue:
			adds, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, walkFields(adds, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num != fNamedObjectAdds {
					return skipField(num, typ, b)
				}
				obj, n, err := consumeBytes(typ, b)
				if err != nil {
					return 0, err
				}
				var add NamedObjectAdd
				err = walkFields(obj, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					if num != fNamedObjectAddProp {
						return skipField(num, typ, b)
					}
					return consumePropertyValues(typ, b, &add.Properties)
				})
				if err == nil {
					ta.Objects = append(ta.Objects, add)
				}
				return n, err
			})
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("typed adds: %w", err)
	}
	*dst = append(*dst, ta)
	return n, nil
}
