package kgpb

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers of the graph service schema. The query header and frame share
// field 1 (error) so an error-only frame still surfaces when read as a header,
// while header field 2 is a varint and frame field 2 is a message: a stream
// that starts with a row frame fails header decoding.
const (
	fSRWKID       protowire.Number = 1
	fSRLatestWKID protowire.Number = 2
	fSRWKT        protowire.Number = 5

	fErrCode    protowire.Number = 1
	fErrMessage protowire.Number = 2

	fTransformScale     protowire.Number = 2
	fTransformTranslate protowire.Number = 3
	fXYX                protowire.Number = 1
	fXYY                protowire.Number = 2

	fDMTimestamp         protowire.Number = 1
	fDMSpatialReference  protowire.Number = 2
	fDMEntityTypes       protowire.Number = 3
	fDMRelationshipTypes protowire.Number = 4
	fDMStrict            protowire.Number = 5
	fDMObjectIDProperty  protowire.Number = 6
	fDMGlobalIDProperty  protowire.Number = 7
	fDMArcGISManaged     protowire.Number = 8

	fETName       protowire.Number = 1
	fETAlias      protowire.Number = 2
	fETRole       protowire.Number = 3
	fETStrict     protowire.Number = 4
	fETProperties protowire.Number = 5

	fRTOrigins      protowire.Number = 6
	fRTDestinations protowire.Number = 7
	fRTCardinality  protowire.Number = 8

	fPropName         protowire.Number = 1
	fPropAlias        protowire.Number = 2
	fPropDomain       protowire.Number = 3
	fPropFieldType    protowire.Number = 4
	fPropGeometryType protowire.Number = 5
	fPropHasZ         protowire.Number = 6
	fPropHasM         protowire.Number = 7
	fPropNullable     protowire.Number = 8
	fPropEditable     protowire.Number = 9
	fPropVisible      protowire.Number = 10
	fPropRequired     protowire.Number = 11

	fHdrError            protowire.Number = 1
	fHdrMajorVersion     protowire.Number = 2
	fHdrMinorVersion     protowire.Number = 3
	fHdrSpatialReference protowire.Number = 4
	fHdrTransform        protowire.Number = 5
	fHdrHeaderKeys       protowire.Number = 6

	fFrameError protowire.Number = 1
	fFrameRows  protowire.Number = 2

	fRowValues protowire.Number = 1

	fAnyPrimitive    protowire.Number = 1
	fAnyArray        protowire.Number = 2
	fAnyEntity       protowire.Number = 3
	fAnyRelationship protowire.Number = 4

	fArrayValues protowire.Number = 1

	fEntTypeName   protowire.Number = 1
	fEntID         protowire.Number = 2
	fEntProperties protowire.Number = 3

	fRelTypeName   protowire.Number = 1
	fRelID         protowire.Number = 2
	fRelOriginID   protowire.Number = 3
	fRelDestID     protowire.Number = 4
	fRelProperties protowire.Number = 5

	fEntryKey   protowire.Number = 1
	fEntryValue protowire.Number = 2

	fPrimNull     protowire.Number = 1
	fPrimBool     protowire.Number = 2
	fPrimSint32   protowire.Number = 3
	fPrimUint32   protowire.Number = 4
	fPrimSint64   protowire.Number = 5
	fPrimUint64   protowire.Number = 6
	fPrimFloat    protowire.Number = 7
	fPrimDouble   protowire.Number = 8
	fPrimString   protowire.Number = 9
	fPrimDate     protowire.Number = 10
	fPrimUUID     protowire.Number = 11
	fPrimGeometry protowire.Number = 12
	fPrimBlob     protowire.Number = 13

	fGeomType     protowire.Number = 1
	fGeomHasZ     protowire.Number = 2
	fGeomHasM     protowire.Number = 3
	fGeomGeometry protowire.Number = 4
	fGeomLengths  protowire.Number = 1
	fGeomCoords   protowire.Number = 2

	fEditsHdrMajorVersion protowire.Number = 1
	fEditsHdrMinorVersion protowire.Number = 2
	fEditsHdrInputSR      protowire.Number = 3
	fEditsHdrTransform    protowire.Number = 4

	fFrameAdds          protowire.Number = 1
	fAddsEntities       protowire.Number = 1
	fAddsRelationships  protowire.Number = 2
	fNamedObjectAdds    protowire.Number = 1
	fNamedObjectAddProp protowire.Number = 1

	fResultError         protowire.Number = 1
	fResultEntities      protowire.Number = 2
	fResultRelationships protowire.Number = 3
	fEditResultsAdds     protowire.Number = 1
	fEditResultID        protowire.Number = 1
	fEditResultError     protowire.Number = 2
)
