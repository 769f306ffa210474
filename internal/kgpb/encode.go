package kgpb

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/quantize"
)

func appendSpatialReference(b []byte, num protowire.Number, sr *SpatialReference) []byte {
	if sr == nil {
		return b
	}
	return appendMessage(b, num, func(b []byte) []byte {
		b = appendVarint(b, fSRWKID, uint64(sr.WKID))
		b = appendVarint(b, fSRLatestWKID, uint64(sr.LatestWKID))
		return appendString(b, fSRWKT, sr.WKT)
	})
}

func appendError(b []byte, num protowire.Number, e *Error) []byte {
	if e == nil {
		return b
	}
	return appendMessage(b, num, func(b []byte) []byte {
		b = appendVarint(b, fErrCode, uint64(e.Code))
		return appendString(b, fErrMessage, e.Message)
	})
}

func appendTransform(b []byte, num protowire.Number, p *quantize.Params) []byte {
	if p == nil {
		return b
	}
	xy := func(x, y float64) func([]byte) []byte {
		return func(b []byte) []byte {
			b = appendDouble(b, fXYX, x)
			return appendDouble(b, fXYY, y)
		}
	}
	return appendMessage(b, num, func(b []byte) []byte {
		b = appendMessage(b, fTransformScale, xy(p.Scale.X, p.Scale.Y))
		return appendMessage(b, fTransformTranslate, xy(p.Translate.X, p.Translate.Y))
	})
}

func appendProperty(b []byte, num protowire.Number, p Property) []byte {
	return appendMessage(b, num, func(b []byte) []byte {
		b = appendString(b, fPropName, p.Name)
		b = appendString(b, fPropAlias, p.Alias)
		b = appendString(b, fPropDomain, p.Domain)
		b = appendVarint(b, fPropFieldType, uint64(p.FieldType))
		b = appendVarint(b, fPropGeometryType, uint64(p.GeometryType))
		b = appendBool(b, fPropHasZ, p.HasZ)
		b = appendBool(b, fPropHasM, p.HasM)
		b = appendBool(b, fPropNullable, p.Nullable)
		b = appendBool(b, fPropEditable, p.Editable)
		b = appendBool(b, fPropVisible, p.Visible)
		return appendBool(b, fPropRequired, p.Required)
	})
}

// MarshalDataModel encodes dm.
func MarshalDataModel(dm *DataModel) []byte {
	var b []byte
	b = appendVarint(b, fDMTimestamp, dm.Timestamp)
	b = appendSpatialReference(b, fDMSpatialReference, dm.SpatialReference)
	for _, et := range dm.EntityTypes {
		b = appendMessage(b, fDMEntityTypes, func(b []byte) []byte {
			b = appendString(b, fETName, et.Name)
			b = appendString(b, fETAlias, et.Alias)
			b = appendVarint(b, fETRole, uint64(et.Role))
			b = appendBool(b, fETStrict, et.Strict)
			for _, p := range et.Properties {
				b = appendProperty(b, fETProperties, p)
			}
			return b
		})
	}
	for _, rt := range dm.RelationshipTypes {
		b = appendMessage(b, fDMRelationshipTypes, func(b []byte) []byte {
			b = appendString(b, fETName, rt.Name)
			b = appendString(b, fETAlias, rt.Alias)
			b = appendBool(b, fETStrict, rt.Strict)
			for _, p := range rt.Properties {
				b = appendProperty(b, fETProperties, p)
			}
			for _, o := range rt.Origins {
				b = appendString(b, fRTOrigins, o)
			}
			for _, d := range rt.Destinations {
				b = appendString(b, fRTDestinations, d)
			}
			return appendVarint(b, fRTCardinality, uint64(rt.Cardinality))
		})
	}
	b = appendBool(b, fDMStrict, dm.Strict)
	b = appendString(b, fDMObjectIDProperty, dm.ObjectIDProperty)
	b = appendString(b, fDMGlobalIDProperty, dm.GlobalIDProperty)
	return appendBool(b, fDMArcGISManaged, dm.ArcGISManaged)
}

// MarshalQueryResultHeader encodes h.
func MarshalQueryResultHeader(h *QueryResultHeader) []byte {
	var b []byte
	b = appendError(b, fHdrError, h.Error)
	b = appendVarint(b, fHdrMajorVersion, uint64(h.MajorVersion))
	b = appendVarint(b, fHdrMinorVersion, uint64(h.MinorVersion))
	b = appendSpatialReference(b, fHdrSpatialReference, h.SpatialReference)
	b = appendTransform(b, fHdrTransform, h.Transform)
	for _, k := range h.HeaderKeys {
		b = protowire.AppendTag(b, fHdrHeaderKeys, protowire.BytesType)
		b = protowire.AppendString(b, k)
	}
	return b
}

// MarshalQueryResultFrame encodes f.
func MarshalQueryResultFrame(f *QueryResultFrame) []byte {
	var b []byte
	b = appendError(b, fFrameError, f.Error)
	for _, r := range f.Rows {
		b = appendMessage(b, fFrameRows, func(b []byte) []byte {
			for _, v := range r.Values {
				b = appendAnyValue(b, fRowValues, v)
			}
			return b
		})
	}
	return b
}

func appendAnyValue(b []byte, num protowire.Number, v AnyValue) []byte {
	return appendMessage(b, num, func(b []byte) []byte {
		switch {
		case v.Primitive != nil:
			return appendMessage(b, fAnyPrimitive, func(b []byte) []byte {
				return appendPrimitive(b, v.Primitive)
			})
		case v.Array != nil:
			return appendMessage(b, fAnyArray, func(b []byte) []byte {
				for _, e := range v.Array.Values {
					b = appendAnyValue(b, fArrayValues, e)
				}
				return b
			})
		case v.Entity != nil:
			e := v.Entity
			return appendMessage(b, fAnyEntity, func(b []byte) []byte {
				b = appendString(b, fEntTypeName, e.TypeName)
				if e.ID != nil {
					b = appendAnyValue(b, fEntID, *e.ID)
				}
				return appendPropertyValues(b, fEntProperties, e.Properties)
			})
		case v.Relationship != nil:
			r := v.Relationship
			return appendMessage(b, fAnyRelationship, func(b []byte) []byte {
				b = appendString(b, fRelTypeName, r.TypeName)
				if r.ID != nil {
					b = appendAnyValue(b, fRelID, *r.ID)
				}
				if r.OriginID != nil {
					b = appendAnyValue(b, fRelOriginID, *r.OriginID)
				}
				if r.DestID != nil {
					b = appendAnyValue(b, fRelDestID, *r.DestID)
				}
				return appendPropertyValues(b, fRelProperties, r.Properties)
			})
		default:
			return b
		}
	})
}

func appendPropertyValues(b []byte, num protowire.Number, props []PropertyValue) []byte {
	for _, p := range props {
		b = appendMessage(b, num, func(b []byte) []byte {
			b = protowire.AppendTag(b, fEntryKey, protowire.BytesType)
			b = protowire.AppendString(b, p.Name)
			return appendAnyValue(b, fEntryValue, p.Value)
		})
	}
	return b
}

func appendPrimitive(b []byte, p *Primitive) []byte {
	switch p.Kind {
	case KindBool:
		b = protowire.AppendTag(b, fPrimBool, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(p.Bool))
	case KindInt32:
		b = protowire.AppendTag(b, fPrimSint32, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(int32(p.Int))))
	case KindUint32:
		b = protowire.AppendTag(b, fPrimUint32, protowire.VarintType)
		return protowire.AppendVarint(b, uint64(uint32(p.Uint)))
	case KindInt64:
		b = protowire.AppendTag(b, fPrimSint64, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(p.Int))
	case KindUint64:
		b = protowire.AppendTag(b, fPrimUint64, protowire.VarintType)
		return protowire.AppendVarint(b, p.Uint)
	case KindFloat:
		b = protowire.AppendTag(b, fPrimFloat, protowire.Fixed32Type)
		return protowire.AppendFixed32(b, float32bits(p.Float))
	case KindDouble:
		return appendDouble(b, fPrimDouble, p.Float)
	case KindString:
		b = protowire.AppendTag(b, fPrimString, protowire.BytesType)
		return protowire.AppendString(b, p.Str)
	case KindDate:
		b = protowire.AppendTag(b, fPrimDate, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(p.Int))
	case KindUUID:
		b = protowire.AppendTag(b, fPrimUUID, protowire.BytesType)
		return protowire.AppendBytes(b, p.Bytes)
	case KindBlob:
		b = protowire.AppendTag(b, fPrimBlob, protowire.BytesType)
		return protowire.AppendBytes(b, p.Bytes)
	case KindGeometry:
		if p.Geometry == nil {
			return b
		}
		return appendMessage(b, fPrimGeometry, func(b []byte) []byte {
			return appendGeometry(b, p.Geometry)
		})
	default:
		b = protowire.AppendTag(b, fPrimNull, protowire.VarintType)
		return protowire.AppendVarint(b, 0)
	}
}

func appendGeometry(b []byte, g *GeometryValue) []byte {
	b = appendVarint(b, fGeomType, uint64(g.GeometryType))
	b = appendBool(b, fGeomHasZ, g.HasZ)
	b = appendBool(b, fGeomHasM, g.HasM)
	return appendMessage(b, fGeomGeometry, func(b []byte) []byte {
		if len(g.Lengths) > 0 {
			var packed []byte
			for _, l := range g.Lengths {
				packed = protowire.AppendVarint(packed, uint64(l))
			}
			b = protowire.AppendTag(b, fGeomLengths, protowire.BytesType)
			b = protowire.AppendBytes(b, packed)
		}
		if len(g.Coords) > 0 {
			var packed []byte
			for _, c := range g.Coords {
				packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(c))
			}
			b = protowire.AppendTag(b, fGeomCoords, protowire.BytesType)
			b = protowire.AppendBytes(b, packed)
		}
		return b
	})
}

// MarshalApplyEditsHeader encodes h.
func MarshalApplyEditsHeader(h *ApplyEditsHeader) []byte {
	var b []byte
	b = appendVarint(b, fEditsHdrMajorVersion, uint64(h.MajorVersion))
	b = appendVarint(b, fEditsHdrMinorVersion, uint64(h.MinorVersion))
	b = appendSpatialReference(b, fEditsHdrInputSR, h.InputSpatialReference)
	return appendTransform(b, fEditsHdrTransform, h.InputTransform)
}

// MarshalApplyEditsFrame encodes f. Entity and relationship adds are keyed by
// type name in the order given.
func MarshalApplyEditsFrame(f *ApplyEditsFrame) []byte {
	var b []byte
	return appendMessage(b, fFrameAdds, func(b []byte) []byte {
		b = appendTypedAdds(b, fAddsEntities, f.Entities)
		return appendTypedAdds(b, fAddsRelationships, f.Relationships)
	})
}

func appendTypedAdds(b []byte, num protowire.Number, adds []TypedAdds) []byte {
	for _, ta := range adds {
		b = appendMessage(b, num, func(b []byte) []byte {
			b = protowire.AppendTag(b, fEntryKey, protowire.BytesType)
			b = protowire.AppendString(b, ta.TypeName)
			return appendMessage(b, fEntryValue, func(b []byte) []byte {
				for _, obj := range ta.Objects {
					b = appendMessage(b, fNamedObjectAdds, func(b []byte) []byte {
						return appendPropertyValues(b, fNamedObjectAddProp, obj.Properties)
					})
				}
				return b
			})
		})
	}
	return b
}

// MarshalApplyEditsResult encodes r.
func MarshalApplyEditsResult(r *ApplyEditsResult) []byte {
	var b []byte
	b = appendError(b, fResultError, r.Error)
	b = appendTypedResults(b, fResultEntities, r.EntityResults)
	return appendTypedResults(b, fResultRelationships, r.RelationshipResults)
}

func appendTypedResults(b []byte, num protowire.Number, results []TypedEditResults) []byte {
	for _, tr := range results {
		b = appendMessage(b, num, func(b []byte) []byte {
			b = protowire.AppendTag(b, fEntryKey, protowire.BytesType)
			b = protowire.AppendString(b, tr.TypeName)
			return appendMessage(b, fEntryValue, func(b []byte) []byte {
				for _, res := range tr.AddResults {
					b = appendMessage(b, fEditResultsAdds, func(b []byte) []byte {
						if res.ID != nil {
							b = appendAnyValue(b, fEditResultID, *res.ID)
						}
						return appendError(b, fEditResultError, res.Error)
					})
				}
				return b
			})
		})
	}
	return b
}
